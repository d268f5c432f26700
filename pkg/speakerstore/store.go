// Package speakerstore persists enrolled speakers and their source samples
// in a kv.Store, one logical database per user.
//
// A speaker is created by the first source added under its name and
// deleted together with all of its sources. Embeddings are stored as
// 32-bit little-endian float blobs.
package speakerstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/automuter/pkg/kv"
	"github.com/haivivi/automuter/pkg/voiceprint"
)

// SchemaVersion is written to u:{user}:meta by Init.
const SchemaVersion = "1"

// Speaker is an enrolled speaker.
type Speaker struct {
	ID        uint64    `msgpack:"id" json:"id"`
	Name      string    `msgpack:"name" json:"name"`
	CreatedAt time.Time `msgpack:"created_at" json:"createdAt"`
}

// Source is the provenance record of one enrollment input.
type Source struct {
	ID        uint64    `msgpack:"id" json:"id"`
	SpeakerID uint64    `msgpack:"speaker_id" json:"speakerId"`
	URL       string    `msgpack:"url" json:"url"`
	Timestamp string    `msgpack:"timestamp,omitempty" json:"timestamp,omitempty"`
	Embedding []byte    `msgpack:"embedding" json:"-"`
	CreatedAt time.Time `msgpack:"created_at" json:"createdAt"`
}

// Vector decodes the embedding blob.
func (s Source) Vector() ([]float32, error) {
	return voiceprint.DecodeFloat32LE(s.Embedding)
}

// SpeakerSources groups a speaker with its sources.
type SpeakerSources struct {
	Speaker Speaker
	Sources []Source
}

// Store is the speaker store. It is safe for concurrent use.
type Store struct {
	kv     kv.Store
	logger *slog.Logger
	now    func() time.Time

	// mu serializes mutations so name → id resolution and cascades are
	// not interleaved.
	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store on top of store.
func New(store kv.Store, opts ...Option) *Store {
	s := &Store{kv: store, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init writes the schema marker for user if absent. It is idempotent.
func (s *Store) Init(ctx context.Context, user string) error {
	if err := ValidateUserID(user); err != nil {
		return err
	}
	_, err := s.kv.Get(ctx, metaKey(user))
	if err == nil {
		return nil
	}
	if !errors.Is(err, kv.ErrNotFound) {
		return storeErr("init", err)
	}
	return storeErr("init", s.kv.Set(ctx, metaKey(user), []byte(SchemaVersion)))
}

// Wipe deletes every record of user and re-initializes the empty schema.
func (s *Store) Wipe(ctx context.Context, user string) error {
	if err := ValidateUserID(user); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := kv.DropPrefix(ctx, s.kv, userPrefix(user)); err != nil {
		return storeErr("wipe", err)
	}
	s.logger.Info("wiped speaker store", "user", user)
	return s.Init(ctx, user)
}

// AddSource appends src to the speaker called name, creating the speaker
// on first use. ID, SpeakerID and CreatedAt are assigned by the store; the
// stored record is returned.
func (s *Store) AddSource(ctx context.Context, user, name string, src Source) (Source, error) {
	if err := ValidateUserID(user); err != nil {
		return Source{}, err
	}
	if err := ValidateName(name); err != nil {
		return Source{}, err
	}
	if len(src.Embedding) == 0 || len(src.Embedding)%4 != 0 {
		return Source{}, &ValidationError{Field: "embedding", Value: fmt.Sprintf("%d bytes", len(src.Embedding)), Reason: "must be a non-empty float32 blob"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.Init(ctx, user); err != nil {
		return Source{}, err
	}

	spk, err := s.speaker(ctx, user, name)
	var entries []kv.Entry
	switch {
	case errors.Is(err, ErrNotFound):
		id, err := s.kv.Increment(ctx, seqKey(user))
		if err != nil {
			return Source{}, storeErr("add source", err)
		}
		spk = &Speaker{ID: id, Name: name, CreatedAt: s.now().UTC()}
		data, err := msgpack.Marshal(spk)
		if err != nil {
			return Source{}, err
		}
		entries = append(entries,
			kv.Entry{Key: speakerKey(user, id), Value: data},
			kv.Entry{Key: nameKey(user, name), Value: []byte(formatID(id))},
		)
		s.logger.Info("created speaker", "user", user, "speaker", name, "id", id)
	case err != nil:
		return Source{}, err
	}

	id, err := s.kv.Increment(ctx, seqKey(user))
	if err != nil {
		return Source{}, storeErr("add source", err)
	}
	src.ID = id
	src.SpeakerID = spk.ID
	src.CreatedAt = s.now().UTC()
	data, err := msgpack.Marshal(src)
	if err != nil {
		return Source{}, err
	}
	entries = append(entries, kv.Entry{Key: sourceKey(user, spk.ID, id), Value: data})

	if err := s.kv.BatchSet(ctx, entries); err != nil {
		return Source{}, storeErr("add source", err)
	}
	return src, nil
}

// Speakers returns every speaker of user in creation order.
func (s *Store) Speakers(ctx context.Context, user string) ([]Speaker, error) {
	if err := ValidateUserID(user); err != nil {
		return nil, err
	}
	var out []Speaker
	for entry, err := range s.kv.List(ctx, speakerPrefix(user)) {
		if err != nil {
			return nil, storeErr("list speakers", err)
		}
		var spk Speaker
		if err := msgpack.Unmarshal(entry.Value, &spk); err != nil {
			s.logger.Warn("skipping malformed speaker record", "key", entry.Key.String(), "error", err)
			continue
		}
		out = append(out, spk)
	}
	return out, nil
}

// Speaker returns the speaker called name, or ErrNotFound.
func (s *Store) Speaker(ctx context.Context, user, name string) (*Speaker, error) {
	if err := ValidateUserID(user); err != nil {
		return nil, err
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	return s.speaker(ctx, user, name)
}

func (s *Store) speaker(ctx context.Context, user, name string) (*Speaker, error) {
	raw, err := s.kv.Get(ctx, nameKey(user, name))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, fmt.Errorf("%w: speaker %q", ErrNotFound, name)
	}
	if err != nil {
		return nil, storeErr("get speaker", err)
	}
	id, err := parseID(string(raw))
	if err != nil {
		return nil, storeErr("get speaker", fmt.Errorf("corrupt name index for %q: %w", name, err))
	}
	data, err := s.kv.Get(ctx, speakerKey(user, id))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, fmt.Errorf("%w: speaker %q", ErrNotFound, name)
	}
	if err != nil {
		return nil, storeErr("get speaker", err)
	}
	var spk Speaker
	if err := msgpack.Unmarshal(data, &spk); err != nil {
		return nil, storeErr("get speaker", err)
	}
	return &spk, nil
}

// Sources returns the sources of the speaker called name in insertion
// order, or ErrNotFound.
func (s *Store) Sources(ctx context.Context, user, name string) ([]Source, error) {
	spk, err := s.Speaker(ctx, user, name)
	if err != nil {
		return nil, err
	}
	return s.sources(ctx, speakerSourcePrefix(user, spk.ID))
}

func (s *Store) sources(ctx context.Context, prefix kv.Key) ([]Source, error) {
	var out []Source
	for entry, err := range s.kv.List(ctx, prefix) {
		if err != nil {
			return nil, storeErr("list sources", err)
		}
		var src Source
		if err := msgpack.Unmarshal(entry.Value, &src); err != nil {
			s.logger.Warn("skipping malformed source record", "key", entry.Key.String(), "error", err)
			continue
		}
		out = append(out, src)
	}
	return out, nil
}

// AllSources returns every speaker of user with its sources, speakers in
// creation order and sources in insertion order. Speakers without sources
// are omitted.
func (s *Store) AllSources(ctx context.Context, user string) ([]SpeakerSources, error) {
	speakers, err := s.Speakers(ctx, user)
	if err != nil {
		return nil, err
	}
	srcs, err := s.sources(ctx, sourcePrefix(user))
	if err != nil {
		return nil, err
	}
	bySpeaker := make(map[uint64][]Source, len(speakers))
	for _, src := range srcs {
		bySpeaker[src.SpeakerID] = append(bySpeaker[src.SpeakerID], src)
	}
	out := make([]SpeakerSources, 0, len(speakers))
	for _, spk := range speakers {
		if list := bySpeaker[spk.ID]; len(list) > 0 {
			out = append(out, SpeakerSources{Speaker: spk, Sources: list})
		}
	}
	return out, nil
}

// RemoveSpeaker deletes the speaker called name and all of its sources.
func (s *Store) RemoveSpeaker(ctx context.Context, user, name string) error {
	if err := ValidateUserID(user); err != nil {
		return err
	}
	if err := ValidateName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	spk, err := s.speaker(ctx, user, name)
	if err != nil {
		return err
	}
	if err := s.kv.DeletePrefix(ctx, speakerSourcePrefix(user, spk.ID)); err != nil {
		return storeErr("remove speaker", err)
	}
	if err := s.kv.BatchDelete(ctx, []kv.Key{speakerKey(user, spk.ID), nameKey(user, name)}); err != nil {
		return storeErr("remove speaker", err)
	}
	s.logger.Info("removed speaker", "user", user, "speaker", name)
	return nil
}

// RemoveSource deletes the sources of name whose URL equals url and, when
// timestamp is non-empty, whose timestamp equals timestamp. It returns the
// number of sources removed. The speaker itself is kept even when its last
// source is removed.
func (s *Store) RemoveSource(ctx context.Context, user, name, url, timestamp string) (int, error) {
	if err := ValidateUserID(user); err != nil {
		return 0, err
	}
	if err := ValidateName(name); err != nil {
		return 0, err
	}
	if url == "" {
		return 0, &ValidationError{Field: "source url", Value: url, Reason: "must not be empty"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	spk, err := s.speaker(ctx, user, name)
	if err != nil {
		return 0, err
	}
	srcs, err := s.sources(ctx, speakerSourcePrefix(user, spk.ID))
	if err != nil {
		return 0, err
	}
	var keys []kv.Key
	for _, src := range srcs {
		if src.URL != url || (timestamp != "" && src.Timestamp != timestamp) {
			continue
		}
		keys = append(keys, sourceKey(user, spk.ID, src.ID))
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := s.kv.BatchDelete(ctx, keys); err != nil {
		return 0, storeErr("remove source", err)
	}
	return len(keys), nil
}
