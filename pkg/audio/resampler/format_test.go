package resampler

import "testing"

func TestFormat_channels(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		want   int
	}{
		{
			name:   "zero means mono",
			format: Format{SampleRate: 44100},
			want:   1,
		},
		{
			name:   "stereo",
			format: Format{SampleRate: 48000, Channels: 2},
			want:   2,
		},
		{
			name:   "surround",
			format: Format{SampleRate: 48000, Channels: 6},
			want:   6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.format.channels(); got != tt.want {
				t.Errorf("Format.channels() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFormat_sampleBytes(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		want   int
	}{
		{
			name:   "mono 16-bit",
			format: Format{SampleRate: 44100, Channels: 1},
			want:   2,
		},
		{
			name:   "stereo 16-bit",
			format: Format{SampleRate: 48000, Channels: 2},
			want:   4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.format.sampleBytes(); got != tt.want {
				t.Errorf("Format.sampleBytes() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFormat_Validate(t *testing.T) {
	if err := (Format{SampleRate: 0}).Validate(); err == nil {
		t.Error("expected error for zero sample rate")
	}
	if err := (Format{SampleRate: 16000, Channels: -1}).Validate(); err == nil {
		t.Error("expected error for negative channels")
	}
	if err := Mono16K.Validate(); err != nil {
		t.Errorf("Mono16K.Validate() = %v", err)
	}
}
