package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/haivivi/automuter/pkg/gallery"
	"github.com/haivivi/automuter/pkg/speakerstore"
	"github.com/haivivi/automuter/pkg/voiceprint"
)

// DefaultFormat is the container format of incoming chunks
// (MediaRecorder output in browsers).
const DefaultFormat = "webm"

// Config configures a Session.
type Config struct {
	// UserID selects the gallery. Required.
	UserID string

	// Threshold for a match; a score must be strictly greater.
	Threshold float64

	// Format is the container format of chunks. Default: "webm".
	Format string

	Embedder  *voiceprint.Embedder
	Galleries *gallery.Cache

	Logger *slog.Logger
}

// Session is one streaming verification connection.
type Session struct {
	cfg    Config
	ch     Channel
	logger *slog.Logger

	state atomic.Int32

	chunks       atomic.Int64
	decisions    atomic.Int64
	decodeErrors atomic.Int64
	embedErrors  atomic.Int64
	storeErrors  atomic.Int64
}

// NewSession creates a session in the Connecting state. The user id is
// validated before anything else happens.
func NewSession(cfg Config, ch Channel) (*Session, error) {
	if err := speakerstore.ValidateUserID(cfg.UserID); err != nil {
		return nil, err
	}
	if cfg.Embedder == nil || cfg.Galleries == nil {
		return nil, errors.New("verify: embedder and gallery cache are required")
	}
	if cfg.Format == "" {
		cfg.Format = DefaultFormat
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Session{
		cfg:    cfg,
		ch:     ch,
		logger: cfg.Logger.With("user", cfg.UserID),
	}, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	return Stats{
		Chunks:       s.chunks.Load(),
		Decisions:    s.decisions.Load(),
		DecodeErrors: s.decodeErrors.Load(),
		EmbedErrors:  s.embedErrors.Load(),
		StoreErrors:  s.storeErrors.Load(),
	}
}

// Run processes chunks until the channel closes or ctx is done. It
// returns nil when the peer closed the channel normally. Run may only be
// called once.
func (s *Session) Run(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateConnecting), int32(StateActive)) {
		return fmt.Errorf("verify: session is %s", s.State())
	}
	start := time.Now()
	s.logger.Info("session started", "threshold", s.cfg.Threshold, "format", s.cfg.Format)

	defer func() {
		s.state.Store(int32(StateClosed))
		s.cfg.Galleries.Invalidate(s.cfg.UserID)
		s.ch.Close()
		st := s.Stats()
		s.logger.Info("session closed",
			"duration", time.Since(start).Round(time.Millisecond),
			"chunks", st.Chunks,
			"decisions", st.Decisions,
			"decode_errors", st.DecodeErrors,
			"embed_errors", st.EmbedErrors)
	}()

	// Warm the gallery at connect; failures are retried per chunk.
	if _, err := s.cfg.Galleries.Load(ctx, s.cfg.UserID); err != nil {
		s.storeErrors.Add(1)
		s.logger.Warn("gallery load failed", "error", err)
	}

	for {
		data, err := s.ch.Receive(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		s.chunks.Add(1)

		msg, ok := s.process(ctx, data)
		if !ok {
			continue
		}
		// The peer may be gone by the time inference finishes.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.ch.Send(ctx, msg); err != nil {
			return fmt.Errorf("verify: send: %w", err)
		}
		s.decisions.Add(1)
	}
}

// process evaluates one chunk. ok is false when the chunk was dropped.
func (s *Session) process(ctx context.Context, data []byte) (Message, bool) {
	// In-flight work completes even if the session is cancelled.
	work := context.WithoutCancel(ctx)

	pcm, err := s.cfg.Embedder.Normalizer().Normalize(work, data, s.cfg.Format)
	if err != nil {
		s.decodeErrors.Add(1)
		s.logger.Warn("dropping chunk", "bytes", len(data), "error", err)
		return Message{}, false
	}

	g, err := s.cfg.Galleries.Load(work, s.cfg.UserID)
	if err != nil {
		s.storeErrors.Add(1)
		s.logger.Warn("gallery load failed", "error", err)
		return Message{}, false
	}
	if g.Len() == 0 {
		return MessageFor(voiceprint.Decision{Threshold: s.cfg.Threshold}), true
	}

	live, err := s.cfg.Embedder.Embed(work, pcm)
	if err != nil {
		s.embedErrors.Add(1)
		s.logger.Warn("embedding failed", "duration", pcm.Duration(), "error", err)
		return Message{}, false
	}

	d := voiceprint.Decide(live, g, s.cfg.Threshold)
	s.logger.Debug("decision",
		"match", d.Match,
		"speaker", d.Speaker,
		"score", d.Score,
		"duration", pcm.Duration())
	return MessageFor(d), true
}

// Sessions wires sessions for a service: shared embedder, gallery cache
// and deployment settings.
type Sessions struct {
	Threshold float64
	Format    string
	Embedder  *voiceprint.Embedder
	Galleries *gallery.Cache
	Logger    *slog.Logger

	active atomic.Int64
}

// Serve runs a session for user on ch and blocks until it ends.
func (m *Sessions) Serve(ctx context.Context, user string, ch Channel) error {
	s, err := NewSession(Config{
		UserID:    user,
		Threshold: m.Threshold,
		Format:    m.Format,
		Embedder:  m.Embedder,
		Galleries: m.Galleries,
		Logger:    m.Logger,
	}, ch)
	if err != nil {
		ch.Close()
		return err
	}
	m.active.Add(1)
	defer m.active.Add(-1)
	return s.Run(ctx)
}

// Active returns the number of running sessions.
func (m *Sessions) Active() int64 { return m.active.Load() }
