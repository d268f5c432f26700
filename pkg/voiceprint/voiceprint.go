// Package voiceprint provides speaker verification primitives: embedding
// models, vector math, an ordered speaker gallery and the match decision.
//
// # Pipeline
//
//  1. [Model.Extract]: 16kHz mono float32 audio → fixed-length embedding
//  2. [Embedder]: normalization, minimum-duration padding and averaging
//     around a Model
//  3. [Decide]: live embedding vs [Gallery] → [Decision]
//
// # Models
//
// A Model is selected at startup. [Remote] calls an embedding inference
// service over HTTP; [Pool] multiplexes concurrent callers over N
// independently constructed Models built by a [Factory].
//
// # Storage format
//
// Embeddings are persisted as raw 32-bit IEEE-754 little-endian floats with
// no header (see [EncodeFloat32LE]).
package voiceprint

import (
	"errors"
	"fmt"
)

var (
	// ErrModelUnavailable reports that a model could not be constructed or
	// its backing service is unreachable. It is fatal at startup.
	ErrModelUnavailable = errors.New("voiceprint: model unavailable")

	// ErrEmbeddingCompute matches every [*ComputeError].
	ErrEmbeddingCompute = errors.New("voiceprint: embedding compute failed")

	// ErrZeroVector is returned by [Cosine] when either vector has zero
	// magnitude.
	ErrZeroVector = errors.New("voiceprint: zero-magnitude vector")

	// ErrDimensionMismatch is returned when two vectors differ in length.
	ErrDimensionMismatch = errors.New("voiceprint: dimension mismatch")

	// ErrEmpty is returned when an operation needs at least one input.
	ErrEmpty = errors.New("voiceprint: empty input")
)

// ComputeError reports that inference failed for one specific input.
// Callers skip the item and continue.
type ComputeError struct {
	Err error
}

func (e *ComputeError) Error() string {
	return fmt.Sprintf("voiceprint: embedding compute failed: %v", e.Err)
}

func (e *ComputeError) Unwrap() error { return e.Err }

func (e *ComputeError) Is(target error) bool { return target == ErrEmbeddingCompute }

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
}
