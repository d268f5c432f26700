// Package resampler converts decoded audio into the mono, fixed-rate float
// representation consumed by speaker embedding models.
//
// It supports:
//   - Sample rate conversion (e.g., 44100Hz to 16000Hz)
//   - Channel downmixing (any channel count to mono)
//   - int16 → float32 sample conversion in [-1, 1]
//
// Resampling uses a pure Go polyphase resampler (no CGO/FFI dependencies).
//
// Example usage:
//
//	src := resampler.Format{SampleRate: 44100, Channels: 2}
//	mono := resampler.Downmix(interleaved, src.Channels)
//	out, err := resampler.Resample(mono, src.SampleRate, 16000)
package resampler
