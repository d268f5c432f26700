package normalize

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/haivivi/automuter/pkg/audio/resampler"
)

// FFmpegDecoder pipes the input through an ffmpeg subprocess and reads back
// signed 16-bit little-endian mono PCM at SampleRate. ffmpeg probes the
// container itself, so the format argument is informational.
type FFmpegDecoder struct {
	// Binary is the ffmpeg executable. Default: "ffmpeg".
	Binary string

	// SampleRate is the output rate requested from ffmpeg. Default: 16000.
	SampleRate int
}

// Decode implements [Decoder].
func (f *FFmpegDecoder) Decode(ctx context.Context, data []byte, format string) (Raw, error) {
	bin := f.Binary
	if bin == "" {
		bin = "ffmpeg"
	}
	rate := f.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}

	cmd := exec.CommandContext(ctx, bin,
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-ac", "1", "-ar", strconv.Itoa(rate),
		"-f", "s16le", "pipe:1")
	cmd.Stdin = bytes.NewReader(data)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Raw{}, fmt.Errorf("ffmpeg (%s): %w: %s", format, err, strings.TrimSpace(stderr.String()))
	}
	return Raw{
		Samples:    resampler.DecodeS16LE(stdout.Bytes()),
		SampleRate: rate,
		Channels:   1,
	}, nil
}
