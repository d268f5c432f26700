//go:build silero

package mining

import (
	"context"
	"fmt"
	"time"

	"github.com/streamer45/silero-vad-go/speech"

	"github.com/haivivi/automuter/pkg/audio/normalize"
	"github.com/haivivi/automuter/pkg/voiceprint"
)

func init() {
	newSileroVAD = func(modelPath string, minDuration time.Duration) (segmenterCloser, error) {
		return NewSileroVAD(modelPath, minDuration)
	}
}

// SileroVAD segments speech with the Silero VAD ONNX model. It is not safe
// for concurrent use; mining builds one per worker through
// [NewSegmenterFactory].
type SileroVAD struct {
	detector    *speech.Detector
	minDuration time.Duration
	maxDuration time.Duration
}

// NewSileroVAD loads the model at modelPath. A load failure is
// [voiceprint.ErrModelUnavailable].
func NewSileroVAD(modelPath string, minDuration time.Duration) (*SileroVAD, error) {
	d, err := speech.NewDetector(speech.DetectorConfig{
		ModelPath:            modelPath,
		SampleRate:           normalize.DefaultSampleRate,
		Threshold:            0.5,
		MinSilenceDurationMs: 300,
		SpeechPadMs:          30,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: silero vad: %v", voiceprint.ErrModelUnavailable, err)
	}
	return &SileroVAD{detector: d, minDuration: minDuration, maxDuration: 10 * time.Second}, nil
}

// Segments implements [Segmenter].
func (v *SileroVAD) Segments(_ context.Context, pcm normalize.PCM) ([]Segment, error) {
	if pcm.SampleRate != normalize.DefaultSampleRate {
		return nil, fmt.Errorf("silero vad: sample rate %d", pcm.SampleRate)
	}
	defer v.detector.Reset()
	found, err := v.detector.Detect(pcm.Samples)
	if err != nil {
		return nil, fmt.Errorf("silero vad: %w", err)
	}
	total := pcm.Duration()
	raw := make([]Segment, 0, len(found))
	for _, s := range found {
		seg := Segment{Start: seconds(s.SpeechStartAt), End: seconds(s.SpeechEndAt)}
		// An open segment runs to the end of the audio.
		if s.SpeechEndAt == 0 {
			seg.End = total
		}
		raw = append(raw, seg)
	}
	return shapeSegments(raw, v.minDuration, v.maxDuration), nil
}

// Close releases the ONNX session.
func (v *SileroVAD) Close() error {
	return v.detector.Destroy()
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
