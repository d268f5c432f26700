package voiceprint

import (
	"context"
	"errors"
)

// SampleRate is the input sample rate every Model expects.
const SampleRate = 16000

// Model extracts speaker embedding vectors from audio.
//
// Input is mono float32 PCM at 16kHz in [-1, 1]. The output has length
// Dimension(). Implementations used directly by more than one goroutine
// must be safe for concurrent use; wrap unsafe ones in a [Pool].
type Model interface {
	// Extract computes one embedding for samples.
	Extract(ctx context.Context, samples []float32) ([]float32, error)

	// Dimension returns the embedding length (e.g. 192 or 512).
	Dimension() int

	// Close releases any resources held by the model.
	Close() error
}

// Factory constructs an independent Model instance. Each mining worker
// and each Pool slot calls it once.
type Factory func() (Model, error)

// NewModel calls f and maps any failure to [ErrModelUnavailable].
func (f Factory) NewModel() (Model, error) {
	if f == nil {
		return nil, unavailable(errNoFactory)
	}
	m, err := f()
	if err != nil {
		return nil, unavailable(err)
	}
	return m, nil
}

var errNoFactory = errors.New("no model factory configured")
