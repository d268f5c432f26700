//go:build !js
// +build !js

package resampler

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resampler converts mono float32 audio between two sample rates. A
// Resampler keeps filter state between Process calls, so consecutive chunks
// of one stream must go through the same instance.
//
// It is safe for concurrent use, but concurrent callers interleave state;
// use one Resampler per stream.
type Resampler struct {
	srcRate int
	dstRate int

	mu  sync.Mutex
	rs  resampling.Resampler
	buf []float64
}

// New creates a Resampler from srcRate to dstRate.
func New(srcRate, dstRate int) (*Resampler, error) {
	if srcRate <= 0 || dstRate <= 0 {
		return nil, fmt.Errorf("resampler: invalid rates %d -> %d", srcRate, dstRate)
	}
	r := &Resampler{srcRate: srcRate, dstRate: dstRate}
	if srcRate == dstRate {
		return r, nil
	}
	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(srcRate),
		OutputRate: float64(dstRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}
	r.rs = rs
	return r, nil
}

// Process resamples one chunk of mono samples. When source and destination
// rates are equal, the input is copied through unchanged.
func (r *Resampler) Process(samples []float32) ([]float32, error) {
	if r.rs == nil {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cap(r.buf) < len(samples) {
		r.buf = make([]float64, len(samples))
	}
	in := r.buf[:len(samples)]
	for i, s := range samples {
		in[i] = float64(s)
	}

	output, err := r.rs.Process(in)
	if err != nil {
		return nil, fmt.Errorf("resample error: %w", err)
	}

	out := make([]float32, len(output))
	for i, s := range output {
		out[i] = clamp(float32(s))
	}
	return out, nil
}

// Flush drains the samples still held by the filter. Call it once after
// the last Process call of a stream.
func (r *Resampler) Flush() ([]float32, error) {
	if r.rs == nil {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	output, err := r.rs.Flush()
	if err != nil {
		return nil, fmt.Errorf("resample flush error: %w", err)
	}
	out := make([]float32, len(output))
	for i, s := range output {
		out[i] = clamp(float32(s))
	}
	return out, nil
}

// OutputLen is the number of samples n input samples become at the
// destination rate.
func (r *Resampler) OutputLen(n int) int {
	return int(math.Round(float64(n) * float64(r.dstRate) / float64(r.srcRate)))
}

// Resample converts a complete mono signal from srcRate to dstRate. The
// filter is flushed and the result trimmed to the exact output length, so
// the whole signal survives.
func Resample(samples []float32, srcRate, dstRate int) ([]float32, error) {
	r, err := New(srcRate, dstRate)
	if err != nil {
		return nil, err
	}
	out, err := r.Process(samples)
	if err != nil {
		return nil, err
	}
	tail, err := r.Flush()
	if err != nil {
		return nil, err
	}
	out = append(out, tail...)
	if want := r.OutputLen(len(samples)); len(out) > want {
		out = out[:want]
	}
	return out, nil
}

// Downmix averages interleaved int16 frames into mono float32 samples in
// [-1, 1]. A trailing partial frame is dropped.
func Downmix(interleaved []int16, channels int) []float32 {
	if channels <= 1 {
		out := make([]float32, len(interleaved))
		for i, s := range interleaved {
			out[i] = float32(s) / 32768.0
		}
		return out
	}

	numFrames := len(interleaved) / channels
	out := make([]float32, numFrames)
	for i := range numFrames {
		var sum int32
		for c := range channels {
			sum += int32(interleaved[i*channels+c])
		}
		out[i] = float32(sum) / float32(channels) / 32768.0
	}
	return out
}

// DecodeS16LE converts little-endian int16 PCM bytes to samples. A trailing
// odd byte is ignored.
func DecodeS16LE(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

// ToMono16K converts interleaved int16 audio in the given format to mono
// float32 at 16kHz.
func ToMono16K(interleaved []int16, src Format) ([]float32, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	mono := Downmix(interleaved, src.channels())
	return Resample(mono, src.SampleRate, Mono16K.SampleRate)
}

func clamp(s float32) float32 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}
