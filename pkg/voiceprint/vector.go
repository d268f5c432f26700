package voiceprint

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Cosine returns dot(a, b) / (|a| * |b|).
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, ErrZeroVector
	}
	s := dot / (math.Sqrt(na) * math.Sqrt(nb))
	// Rounding can push |s| a hair past 1.
	return math.Max(-1, math.Min(1, s)), nil
}

// Mean returns the element-wise arithmetic mean of vectors, accumulated
// in float64.
func Mean(vectors [][]float32) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, ErrEmpty
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, ErrEmpty
	}
	sum := make([]float64, dim)
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has %d, want %d", ErrDimensionMismatch, i, len(v), dim)
		}
		for j, x := range v {
			sum[j] += float64(x)
		}
	}
	out := make([]float32, dim)
	n := float64(len(vectors))
	for j, s := range sum {
		out[j] = float32(s / n)
	}
	return out, nil
}

// Reduce collapses a time-indexed embedding (one row per frame) into a
// single vector by averaging over the time axis. A single row is returned
// as a copy.
func Reduce(frames [][]float32) ([]float32, error) {
	if len(frames) == 1 {
		out := make([]float32, len(frames[0]))
		copy(out, frames[0])
		if len(out) == 0 {
			return nil, ErrEmpty
		}
		return out, nil
	}
	return Mean(frames)
}

// PadToDuration repeats samples end to end and truncates to exactly
// minSamples when the input is shorter. Longer inputs are returned as is.
func PadToDuration(samples []float32, minSamples int) ([]float32, error) {
	if len(samples) == 0 {
		return nil, ErrEmpty
	}
	if len(samples) >= minSamples {
		return samples, nil
	}
	out := make([]float32, minSamples)
	for n := 0; n < minSamples; {
		n += copy(out[n:], samples)
	}
	return out, nil
}

// Validate checks that v has the given dimension and only finite values.
func Validate(v []float32, dim int) error {
	if dim > 0 && len(v) != dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), dim)
	}
	if len(v) == 0 {
		return ErrEmpty
	}
	for i, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return fmt.Errorf("voiceprint: non-finite value at %d", i)
		}
	}
	return nil
}

// EncodeFloat32LE serializes v as raw 32-bit little-endian floats.
func EncodeFloat32LE(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(x))
	}
	return b
}

// DecodeFloat32LE parses bytes produced by [EncodeFloat32LE].
func DecodeFloat32LE(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("voiceprint: embedding blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
