// Package normalize turns arbitrary audio bytes into the canonical PCM
// representation consumed by speaker embedding models: mono float32 samples
// in [-1, 1] at a fixed sample rate (16kHz by default).
//
// Container parsing is delegated to a [Decoder]. WAV is parsed in-process;
// every other container (webm/opus chunks from browsers, mp3, m4a, flac, ogg)
// goes through an ffmpeg subprocess. Decoded audio is downmixed and
// resampled with the resampler package.
//
// Decode failures are reported as [*DecodeError]. An optional [DumpFunc]
// receives the raw bytes of every failed input for offline diagnosis.
package normalize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/haivivi/automuter/pkg/audio/resampler"
)

// DefaultSampleRate is the sample rate expected by the embedding models.
const DefaultSampleRate = 16000

// ErrDecode matches every [*DecodeError] via errors.Is.
var ErrDecode = errors.New("normalize: decode failed")

// DecodeError reports that an input container could not be parsed.
type DecodeError struct {
	Format string
	Size   int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("normalize: decode %s (%d bytes): %v", e.Format, e.Size, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// PCM is mono float32 audio at SampleRate.
type PCM struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Duration returns the length of the audio.
func (p PCM) Duration() time.Duration {
	if p.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(p.Samples)) * time.Second / time.Duration(p.SampleRate)
}

// Slice returns the audio between start and end, clamped to the signal.
// The returned PCM shares the underlying sample array.
func (p PCM) Slice(start, end time.Duration) PCM {
	i := p.offset(start)
	j := p.offset(end)
	if j < i {
		j = i
	}
	return PCM{Samples: p.Samples[i:j], SampleRate: p.SampleRate, Channels: p.Channels}
}

func (p PCM) offset(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	n := int(int64(d) * int64(p.SampleRate) / int64(time.Second))
	if n > len(p.Samples) {
		return len(p.Samples)
	}
	return n
}

// Raw is interleaved 16-bit audio as produced by a Decoder.
type Raw struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Decoder parses one container format into interleaved 16-bit samples.
type Decoder interface {
	Decode(ctx context.Context, data []byte, format string) (Raw, error)
}

// DumpFunc receives the raw bytes of an input that failed to decode.
type DumpFunc func(ctx context.Context, data []byte, format string, cause error)

// Normalizer decodes, downmixes and resamples audio.
// It is safe for concurrent use.
type Normalizer struct {
	decoders   map[string]Decoder
	fallback   Decoder
	sampleRate int
	dump       DumpFunc
	logger     *slog.Logger
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithDecoder registers d for the given format (file extension without the
// dot, case-insensitive).
func WithDecoder(format string, d Decoder) Option {
	return func(n *Normalizer) { n.decoders[strings.ToLower(format)] = d }
}

// WithFallback sets the decoder used for formats without a registered
// decoder. Default: [FFmpegDecoder].
func WithFallback(d Decoder) Option {
	return func(n *Normalizer) { n.fallback = d }
}

// WithSampleRate sets the output sample rate. Default: 16000.
func WithSampleRate(rate int) Option {
	return func(n *Normalizer) {
		if rate > 0 {
			n.sampleRate = rate
		}
	}
}

// WithDump installs a diagnostic hook for failed inputs.
func WithDump(fn DumpFunc) Option {
	return func(n *Normalizer) { n.dump = fn }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(n *Normalizer) {
		if l != nil {
			n.logger = l
		}
	}
}

// New creates a Normalizer. WAV is decoded in-process; everything else
// uses ffmpeg unless overridden.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		decoders:   map[string]Decoder{"wav": WAVDecoder{}, "wave": WAVDecoder{}},
		sampleRate: DefaultSampleRate,
		logger:     slog.Default(),
	}
	n.fallback = &FFmpegDecoder{SampleRate: n.sampleRate}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// SampleRate returns the output sample rate.
func (n *Normalizer) SampleRate() int { return n.sampleRate }

// Normalize decodes data in the given container format and returns mono
// PCM at the configured sample rate.
func (n *Normalizer) Normalize(ctx context.Context, data []byte, format string) (PCM, error) {
	format = strings.ToLower(strings.TrimPrefix(format, "."))
	pcm, err := n.normalize(ctx, data, format)
	if err != nil {
		derr := &DecodeError{Format: format, Size: len(data), Err: err}
		if n.dump != nil {
			n.dump(ctx, data, format, derr)
		}
		return PCM{}, derr
	}
	return pcm, nil
}

func (n *Normalizer) normalize(ctx context.Context, data []byte, format string) (PCM, error) {
	if len(data) == 0 {
		return PCM{}, errors.New("empty input")
	}
	dec, ok := n.decoders[format]
	if !ok {
		dec = n.fallback
	}
	if dec == nil {
		return PCM{}, fmt.Errorf("no decoder for %q", format)
	}

	raw, err := dec.Decode(ctx, data, format)
	if err != nil {
		return PCM{}, err
	}
	if len(raw.Samples) == 0 {
		return PCM{}, errors.New("no audio decoded")
	}

	src := resampler.Format{SampleRate: raw.SampleRate, Channels: raw.Channels}
	if err := src.Validate(); err != nil {
		return PCM{}, err
	}
	mono := resampler.Downmix(raw.Samples, raw.Channels)
	out, err := resampler.Resample(mono, raw.SampleRate, n.sampleRate)
	if err != nil {
		return PCM{}, err
	}
	if src.SampleRate != n.sampleRate || raw.Channels > 1 {
		n.logger.Debug("normalized audio", "format", format, "src", src.String(), "samples", len(out))
	}
	return PCM{Samples: out, SampleRate: n.sampleRate, Channels: 1}, nil
}

// NormalizeFile reads path and normalizes it, taking the format from the
// file extension.
func (n *Normalizer) NormalizeFile(ctx context.Context, path string) (PCM, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PCM{}, err
	}
	return n.Normalize(ctx, data, FormatOf(path))
}

// FormatOf returns the lower-case extension of path without the dot.
func FormatOf(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// AudioExtensions lists the container formats accepted for file inputs.
var AudioExtensions = []string{"wav", "mp3", "flac", "m4a", "ogg", "webm"}

// IsAudioFile reports whether path has one of [AudioExtensions].
func IsAudioFile(path string) bool {
	ext := FormatOf(path)
	for _, e := range AudioExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
