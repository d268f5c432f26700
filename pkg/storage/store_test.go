package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

var (
	_ FileStore = (*Local)(nil)
	_ FileStore = (*S3Store)(nil)
)

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	s, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func eachStore(t *testing.T, fn func(t *testing.T, s FileStore)) {
	t.Helper()
	t.Run("local", func(t *testing.T) { fn(t, newTestLocal(t)) })
	t.Run("s3", func(t *testing.T) {
		mock := newMockS3()
		mock.pageSize = 2
		fn(t, NewS3(mock, "bucket", "clips"))
	})
}

func TestWriteReadOverwrite(t *testing.T) {
	ctx := context.Background()
	eachStore(t, func(t *testing.T, s FileStore) {
		const p = "alice/run_1/alice_round1_talk_0-2000_deadbeef.wav"
		if err := WriteFile(ctx, s, p, []byte("RIFF long clip")); err != nil {
			t.Fatal(err)
		}
		if err := WriteFunc(ctx, s, p, func(w io.Writer) error {
			_, err := io.WriteString(w, "RIFF")
			return err
		}); err != nil {
			t.Fatal(err)
		}
		got, err := ReadFile(ctx, s, p)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != "RIFF" {
			t.Fatalf("ReadFile = %q, want truncated overwrite", got)
		}
	})
}

func TestWriteFuncError(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("encode failed")
	eachStore(t, func(t *testing.T, s FileStore) {
		err := WriteFunc(ctx, s, "x.wav", func(io.Writer) error { return boom })
		if !errors.Is(err, boom) {
			t.Fatalf("WriteFunc = %v, want %v", err, boom)
		}
	})
}

func TestExistsAndDelete(t *testing.T) {
	ctx := context.Background()
	eachStore(t, func(t *testing.T, s FileStore) {
		const p = "dump/chunk.webm"
		if ok, err := s.Exists(ctx, p); err != nil || ok {
			t.Fatalf("Exists before write = %v, %v", ok, err)
		}
		if err := WriteFile(ctx, s, p, []byte{1, 2, 3}); err != nil {
			t.Fatal(err)
		}
		if ok, err := s.Exists(ctx, p); err != nil || !ok {
			t.Fatalf("Exists after write = %v, %v", ok, err)
		}
		for range 2 {
			if err := s.Delete(ctx, p); err != nil {
				t.Fatalf("Delete: %v", err)
			}
		}
		if _, err := ReadFile(ctx, s, p); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("ReadFile after delete = %v, want ErrNotExist", err)
		}
	})
}

func TestList(t *testing.T) {
	ctx := context.Background()
	eachStore(t, func(t *testing.T, s FileStore) {
		for _, p := range []string{"alice/run_1/b.wav", "alice/run_1/a.wav", "alice/run_2/c.wav", "alice/run_10/x.wav", "bob/run_1/d.wav"} {
			if err := WriteFile(ctx, s, p, []byte("x")); err != nil {
				t.Fatal(err)
			}
		}
		got, err := s.List(ctx, "alice/run_1")
		if err != nil {
			t.Fatal(err)
		}
		if want := []string{"alice/run_1/a.wav", "alice/run_1/b.wav"}; !slices.Equal(got, want) {
			t.Errorf("List(run_1) = %v, want %v", got, want)
		}
		if got, _ := s.List(ctx, "alice"); len(got) != 4 {
			t.Errorf("List(alice) = %v", got)
		}
		got, err = s.List(ctx, "nobody")
		if err != nil || len(got) != 0 {
			t.Errorf("List(missing) = %v, %v", got, err)
		}
	})
}

func TestLocalStaysInRoot(t *testing.T) {
	ctx := context.Background()
	parent := t.TempDir()
	s, err := NewLocal(filepath.Join(parent, "nested", "root"))
	if err != nil {
		t.Fatal(err)
	}
	if info, err := os.Stat(s.Root()); err != nil || !info.IsDir() {
		t.Fatalf("root not created: %v", err)
	}
	if err := WriteFile(ctx, s, "../../escape.wav", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(parent, "escape.wav")); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("write escaped the store root")
	}
	got, err := ReadFile(ctx, s, "escape.wav")
	if err != nil || !bytes.Equal(got, []byte("x")) {
		t.Fatalf("ReadFile = %q, %v", got, err)
	}
}
