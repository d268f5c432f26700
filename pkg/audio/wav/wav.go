// Package wav writes mono 16-bit PCM WAV files.
//
// Decoding lives in the normalize package, which reads arbitrary WAV
// layouts. This package only produces the one layout used for extracted
// speaker clips. The go-audio encoder patches chunk sizes by seeking, so a
// clip is encoded in memory first and then copied to the destination,
// which may be a non-seekable [storage.FileStore] writer.
package wav

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"
)

const (
	headerSize = 44
	bitDepth   = 16
	formatPCM  = 1
)

// Encode writes samples as a 16-bit PCM mono RIFF/WAVE stream.
// Samples outside [-1, 1] are clipped.
func Encode(w io.Writer, samples []float32, sampleRate int) error {
	if sampleRate <= 0 {
		return errors.New("wav: invalid sample rate")
	}
	dataLen := len(samples) * 2
	if dataLen > math.MaxUint32-headerSize {
		return errors.New("wav: data too large")
	}

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(toInt16(s))
	}

	buf := &seekBuffer{b: make([]byte, 0, headerSize+dataLen)}
	enc := gowav.NewEncoder(buf, sampleRate, bitDepth, 1, formatPCM)
	if err := enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}); err != nil {
		return fmt.Errorf("wav: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("wav: finalize: %w", err)
	}
	_, err := w.Write(buf.b)
	return err
}

func toInt16(s float32) int16 {
	switch {
	case s >= 1:
		return math.MaxInt16
	case s <= -1:
		return math.MinInt16
	}
	return int16(s * 32767)
}

// seekBuffer is an in-memory io.WriteSeeker.
type seekBuffer struct {
	b   []byte
	pos int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	if end := s.pos + len(p); end > len(s.b) {
		s.b = append(s.b, make([]byte, end-len(s.b))...)
	}
	n := copy(s.b[s.pos:], p)
	s.pos += n
	return n, nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(s.pos)
	case io.SeekEnd:
		base = int64(len(s.b))
	default:
		return 0, fmt.Errorf("wav: invalid whence %d", whence)
	}
	pos := base + offset
	if pos < 0 {
		return 0, errors.New("wav: negative position")
	}
	s.pos = int(pos)
	return pos, nil
}
