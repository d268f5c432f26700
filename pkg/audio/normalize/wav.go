package normalize

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/go-audio/wav"
)

// WAVDecoder parses RIFF/WAVE integer PCM of 8, 16, 24 or 32 bits.
type WAVDecoder struct{}

// Decode implements [Decoder].
func (WAVDecoder) Decode(_ context.Context, data []byte, _ string) (Raw, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return Raw{}, errors.New("not a valid wav file")
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return Raw{}, fmt.Errorf("wav: %w", err)
	}
	if buf == nil || buf.Format == nil {
		return Raw{}, errors.New("wav: missing format")
	}

	depth := buf.SourceBitDepth
	out := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		switch depth {
		case 8:
			out[i] = int16((v - 128) << 8)
		case 16:
			out[i] = int16(v)
		case 24:
			out[i] = int16(v >> 8)
		case 32:
			out[i] = int16(v >> 16)
		default:
			return Raw{}, fmt.Errorf("wav: unsupported bit depth %d", depth)
		}
	}
	return Raw{
		Samples:    out,
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
	}, nil
}
