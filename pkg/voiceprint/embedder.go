package voiceprint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/haivivi/automuter/pkg/audio/normalize"
)

// DefaultMinDuration is the shortest input passed to a Model. Shorter
// audio is looped up to this length.
const DefaultMinDuration = 1500 * time.Millisecond

// Embedder turns audio into embeddings with a Model. It pads short inputs
// to a minimum duration and validates the model output.
type Embedder struct {
	model       Model
	norm        *normalize.Normalizer
	minDuration time.Duration
	logger      *slog.Logger
}

// EmbedderOption configures an Embedder.
type EmbedderOption func(*Embedder)

// WithMinDuration sets the padding target. Zero disables padding.
func WithMinDuration(d time.Duration) EmbedderOption {
	return func(e *Embedder) {
		if d >= 0 {
			e.minDuration = d
		}
	}
}

// WithEmbedderLogger sets the logger.
func WithEmbedderLogger(l *slog.Logger) EmbedderOption {
	return func(e *Embedder) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEmbedder creates an Embedder. norm may be nil when only PCM input is
// used.
func NewEmbedder(model Model, norm *normalize.Normalizer, opts ...EmbedderOption) *Embedder {
	e := &Embedder{
		model:       model,
		norm:        norm,
		minDuration: DefaultMinDuration,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.norm == nil {
		e.norm = normalize.New(normalize.WithLogger(e.logger))
	}
	return e
}

// Model returns the underlying model.
func (e *Embedder) Model() Model { return e.model }

// Normalizer returns the normalizer used for byte and file inputs.
func (e *Embedder) Normalizer() *normalize.Normalizer { return e.norm }

// Dimension returns the embedding length.
func (e *Embedder) Dimension() int { return e.model.Dimension() }

// Embed computes one embedding for pcm. Model failures and invalid output
// are returned as [*ComputeError].
func (e *Embedder) Embed(ctx context.Context, pcm normalize.PCM) ([]float32, error) {
	if pcm.SampleRate != SampleRate {
		return nil, &ComputeError{Err: fmt.Errorf("sample rate %d, want %d", pcm.SampleRate, SampleRate)}
	}
	minSamples := int(int64(e.minDuration) * SampleRate / int64(time.Second))
	samples, err := PadToDuration(pcm.Samples, minSamples)
	if err != nil {
		return nil, &ComputeError{Err: err}
	}

	v, err := e.model.Extract(ctx, samples)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &ComputeError{Err: err}
	}
	if err := Validate(v, e.model.Dimension()); err != nil {
		return nil, &ComputeError{Err: err}
	}
	return v, nil
}

// EmbedBytes normalizes data in the given container format and embeds it.
// Decode failures are returned as [*normalize.DecodeError].
func (e *Embedder) EmbedBytes(ctx context.Context, data []byte, format string) ([]float32, error) {
	pcm, err := e.norm.Normalize(ctx, data, format)
	if err != nil {
		return nil, err
	}
	return e.Embed(ctx, pcm)
}

// EmbedFile normalizes the audio file at path and embeds it.
func (e *Embedder) EmbedFile(ctx context.Context, path string) ([]float32, error) {
	pcm, err := e.norm.NormalizeFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return e.Embed(ctx, pcm)
}

// EmbedMany embeds each input and returns the mean of the successful
// embeddings with the number that succeeded. It fails only when none did.
func (e *Embedder) EmbedMany(ctx context.Context, pcms []normalize.PCM) ([]float32, int, error) {
	return e.meanOf(ctx, len(pcms), func(i int) ([]float32, error) {
		return e.Embed(ctx, pcms[i])
	}, func(i int) string { return fmt.Sprintf("#%d", i) })
}

// EmbedFiles is EmbedMany over audio files.
func (e *Embedder) EmbedFiles(ctx context.Context, paths []string) ([]float32, int, error) {
	return e.meanOf(ctx, len(paths), func(i int) ([]float32, error) {
		return e.EmbedFile(ctx, paths[i])
	}, func(i int) string { return paths[i] })
}

func (e *Embedder) meanOf(ctx context.Context, n int, embed func(int) ([]float32, error), label func(int) string) ([]float32, int, error) {
	if n == 0 {
		return nil, 0, ErrEmpty
	}
	var (
		vecs    [][]float32
		lastErr error
	)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		v, err := embed(i)
		if err != nil {
			e.logger.Warn("skipping input", "input", label(i), "error", err)
			lastErr = err
			continue
		}
		vecs = append(vecs, v)
	}
	if len(vecs) == 0 {
		return nil, 0, fmt.Errorf("no input could be embedded: %w", lastErr)
	}
	mean, err := Mean(vecs)
	if err != nil {
		return nil, 0, err
	}
	return mean, len(vecs), nil
}
