package resampler

import "fmt"

// Format describes interleaved 16-bit signed integer audio.
type Format struct {
	// SampleRate is the sample rate in Hz (e.g., 16000, 48000).
	SampleRate int

	// Channels is the number of interleaved channels. Zero means mono.
	Channels int
}

// Mono16K is the canonical format expected by speaker embedding models.
var Mono16K = Format{SampleRate: 16000, Channels: 1}

func (f Format) channels() int {
	if f.Channels <= 0 {
		return 1
	}
	return f.Channels
}

func (f Format) sampleBytes() int {
	return 2 * f.channels()
}

// Validate reports whether the format can be processed.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("resampler: invalid sample rate %d", f.SampleRate)
	}
	if f.Channels < 0 {
		return fmt.Errorf("resampler: invalid channel count %d", f.Channels)
	}
	return nil
}

// String returns a human-readable representation such as "16000Hz/1ch".
func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch", f.SampleRate, f.channels())
}
