package speakerstore

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/haivivi/automuter/pkg/kv"
	"github.com/haivivi/automuter/pkg/voiceprint"
)

func backends(t *testing.T) map[string]*Store {
	t.Helper()
	b, err := kv.NewBadger(kv.BadgerOptions{InMemory: true})
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return map[string]*Store{
		"memory": New(kv.NewMemory(nil)),
		"badger": New(b),
	}
}

func src(url, ts string, v ...float32) Source {
	return Source{URL: url, Timestamp: ts, Embedding: voiceprint.EncodeFloat32LE(v)}
}

func TestAddSourceCreatesSpeaker(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			first, err := s.AddSource(ctx, "u1", "alice", src("https://a/1", "0-10", 1, 0))
			if err != nil {
				t.Fatalf("AddSource: %v", err)
			}
			second, err := s.AddSource(ctx, "u1", "alice", src("https://a/2", "", 0, 1))
			if err != nil {
				t.Fatalf("AddSource: %v", err)
			}
			if first.SpeakerID != second.SpeakerID || second.ID <= first.ID {
				t.Errorf("ids: first %+v second %+v", first, second)
			}
			if first.CreatedAt.IsZero() {
				t.Error("CreatedAt not set")
			}

			speakers, err := s.Speakers(ctx, "u1")
			if err != nil || len(speakers) != 1 || speakers[0].Name != "alice" {
				t.Fatalf("Speakers = %+v, %v", speakers, err)
			}

			srcs, err := s.Sources(ctx, "u1", "alice")
			if err != nil || len(srcs) != 2 {
				t.Fatalf("Sources = %+v, %v", srcs, err)
			}
			if srcs[0].URL != "https://a/1" || srcs[0].Timestamp != "0-10" {
				t.Errorf("first source = %+v", srcs[0])
			}
			v, err := srcs[1].Vector()
			if err != nil || v[0] != 0 || v[1] != 1 {
				t.Errorf("Vector = %v, %v", v, err)
			}
		})
	}
}

func TestAllSourcesOrder(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s.AddSource(ctx, "u1", "zed", src("z1", "", 1))
			s.AddSource(ctx, "u1", "amy", src("a1", "", 2))
			s.AddSource(ctx, "u1", "zed", src("z2", "", 3))
			s.AddSource(ctx, "u2", "other", src("o1", "", 4))

			all, err := s.AllSources(ctx, "u1")
			if err != nil {
				t.Fatalf("AllSources: %v", err)
			}
			if len(all) != 2 || all[0].Speaker.Name != "zed" || all[1].Speaker.Name != "amy" {
				t.Fatalf("AllSources = %+v", all)
			}
			if len(all[0].Sources) != 2 || all[0].Sources[0].URL != "z1" || all[0].Sources[1].URL != "z2" {
				t.Errorf("zed sources = %+v", all[0].Sources)
			}
		})
	}
}

func TestUserIsolation(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s.AddSource(ctx, "alice", "spk", src("x", "", 1))
			s.AddSource(ctx, "alice2", "spk", src("y", "", 1))

			if err := s.Wipe(ctx, "alice"); err != nil {
				t.Fatalf("Wipe: %v", err)
			}
			if got, _ := s.Speakers(ctx, "alice"); len(got) != 0 {
				t.Errorf("alice after wipe = %+v", got)
			}
			if got, _ := s.Speakers(ctx, "alice2"); len(got) != 1 {
				t.Errorf("alice2 affected by wipe: %+v", got)
			}
			// Wipe re-initializes the schema.
			if _, err := s.kv.Get(ctx, metaKey("alice")); err != nil {
				t.Errorf("meta after wipe: %v", err)
			}
		})
	}
}

func TestRemoveSpeakerCascades(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s.AddSource(ctx, "u", "alice", src("a", "", 1))
			s.AddSource(ctx, "u", "alice", src("b", "", 1))
			s.AddSource(ctx, "u", "bob", src("c", "", 1))

			if err := s.RemoveSpeaker(ctx, "u", "alice"); err != nil {
				t.Fatalf("RemoveSpeaker: %v", err)
			}
			if _, err := s.Speaker(ctx, "u", "alice"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Speaker after remove: %v", err)
			}
			all, _ := s.AllSources(ctx, "u")
			if len(all) != 1 || all[0].Speaker.Name != "bob" {
				t.Errorf("AllSources = %+v", all)
			}
			if err := s.RemoveSpeaker(ctx, "u", "alice"); !errors.Is(err, ErrNotFound) {
				t.Errorf("second remove: %v", err)
			}

			// Re-enrolling gets a fresh speaker with only the new source.
			s.AddSource(ctx, "u", "alice", src("d", "", 1))
			srcs, _ := s.Sources(ctx, "u", "alice")
			if len(srcs) != 1 || srcs[0].URL != "d" {
				t.Errorf("re-enrolled sources = %+v", srcs)
			}
		})
	}
}

func TestRemoveSource(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s.AddSource(ctx, "u", "alice", src("url", "0-5", 1))
			s.AddSource(ctx, "u", "alice", src("url", "5-9", 1))
			s.AddSource(ctx, "u", "alice", src("other", "", 1))

			n, err := s.RemoveSource(ctx, "u", "alice", "url", "5-9")
			if err != nil || n != 1 {
				t.Fatalf("RemoveSource(range) = %d, %v", n, err)
			}
			n, err = s.RemoveSource(ctx, "u", "alice", "url", "")
			if err != nil || n != 1 {
				t.Fatalf("RemoveSource(all) = %d, %v", n, err)
			}
			n, _ = s.RemoveSource(ctx, "u", "alice", "missing", "")
			if n != 0 {
				t.Errorf("missing url removed %d", n)
			}
			srcs, _ := s.Sources(ctx, "u", "alice")
			if len(srcs) != 1 || srcs[0].URL != "other" {
				t.Errorf("Sources = %+v", srcs)
			}
		})
	}
}

func TestValidation(t *testing.T) {
	ctx := context.Background()
	s := New(kv.NewMemory(nil))

	badUsers := []string{"", "a b", "../x", "a:b", strings.Repeat("x", 65), "ü"}
	for _, u := range badUsers {
		if _, err := s.Speakers(ctx, u); !errors.Is(err, ErrInvalid) {
			t.Errorf("user %q: err = %v, want ErrInvalid", u, err)
		}
	}
	badNames := []string{"", "a:b", "tab\there", strings.Repeat("n", 129)}
	for _, n := range badNames {
		if _, err := s.AddSource(ctx, "u", n, src("x", "", 1)); !errors.Is(err, ErrInvalid) {
			t.Errorf("name %q: err = %v, want ErrInvalid", n, err)
		}
	}
	if _, err := s.AddSource(ctx, "u", "ok", Source{URL: "x"}); !errors.Is(err, ErrInvalid) {
		t.Errorf("empty embedding: err = %v", err)
	}
	if _, err := s.AddSource(ctx, "u", "Ünïcode name ok", src("x", "", 1)); err != nil {
		t.Errorf("unicode name rejected: %v", err)
	}
	var verr *ValidationError
	if err := ValidateUserID("a b"); !errors.As(err, &verr) || verr.Field != "user id" {
		t.Errorf("ValidationError = %+v", verr)
	}
}

type failingKV struct{ kv.Store }

func (failingKV) Get(context.Context, kv.Key) ([]byte, error) {
	return nil, errors.New("disk on fire")
}

func TestStoreError(t *testing.T) {
	s := New(failingKV{kv.NewMemory(nil)})
	_, err := s.Sources(context.Background(), "u", "alice")
	if !errors.Is(err, ErrStore) {
		t.Fatalf("err = %v, want ErrStore", err)
	}
	var serr *Error
	if !errors.As(err, &serr) || serr.Op != "get speaker" {
		t.Errorf("Error = %+v", serr)
	}
}
