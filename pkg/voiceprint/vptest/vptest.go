// Package vptest provides a deterministic voiceprint.Model for tests.
//
// The fake keys its output on the first sample of the input:
// round(samples[0] * 1000). Audio filled with [Level](k) therefore embeds to
// Vectors[k], and survives WAV quantization, looping and resampling at the
// same rate.
package vptest

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/haivivi/automuter/pkg/voiceprint"
)

// Model is a fake voiceprint.Model.
type Model struct {
	Dim     int
	Vectors map[int][]float32

	calls  atomic.Int64
	closed atomic.Bool

	mu      sync.Mutex
	active  int
	maxSeen int
}

var _ voiceprint.Model = (*Model)(nil)

// Level returns the sample value that keys Vectors[k].
func Level(k int) float32 { return float32(k) / 1000 }

// Samples returns n samples at Level(k).
func Samples(k, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = Level(k)
	}
	return out
}

// Extract implements voiceprint.Model. Unknown keys fail.
func (m *Model) Extract(ctx context.Context, samples []float32) ([]float32, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.active++
	m.maxSeen = max(m.maxSeen, m.active)
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.active--
		m.mu.Unlock()
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("vptest: empty input")
	}
	k := int(math.Round(float64(samples[0]) * 1000))
	v, ok := m.Vectors[k]
	if !ok {
		return nil, fmt.Errorf("vptest: no vector for key %d", k)
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out, nil
}

// Dimension implements voiceprint.Model.
func (m *Model) Dimension() int { return m.Dim }

// Close implements voiceprint.Model.
func (m *Model) Close() error {
	m.closed.Store(true)
	return nil
}

// Calls returns the number of Extract calls.
func (m *Model) Calls() int { return int(m.calls.Load()) }

// Closed reports whether Close was called.
func (m *Model) Closed() bool { return m.closed.Load() }

// MaxConcurrent returns the highest number of overlapping Extract calls.
func (m *Model) MaxConcurrent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxSeen
}

// Unit returns a 2-D unit vector whose cosine with (1, 0) is cos.
func Unit(cos float64) []float32 {
	return []float32{float32(cos), float32(math.Sqrt(1 - cos*cos))}
}
