package mining

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/haivivi/automuter/pkg/audio/normalize"
)

// Segment is a candidate clip within one corpus file.
type Segment struct {
	Start time.Duration
	End   time.Duration
}

// Duration returns End - Start.
func (s Segment) Duration() time.Duration { return s.End - s.Start }

// Segmenter proposes candidate segments for a normalized file.
// Implementations must be safe for concurrent use.
type Segmenter interface {
	Segments(ctx context.Context, pcm normalize.PCM) ([]Segment, error)
}

// SlidingWindow emits fixed windows of Window length every Step. Audio
// shorter than one window yields no segments.
type SlidingWindow struct {
	Window time.Duration
	Step   time.Duration
}

// Segments implements [Segmenter].
func (w SlidingWindow) Segments(_ context.Context, pcm normalize.PCM) ([]Segment, error) {
	if w.Window <= 0 || w.Step <= 0 {
		return nil, fmt.Errorf("mining: invalid sliding window %v/%v", w.Window, w.Step)
	}
	total := pcm.Duration()
	var out []Segment
	for start := time.Duration(0); start+w.Window <= total; start += w.Step {
		out = append(out, Segment{Start: start, End: start + w.Window})
	}
	return out, nil
}

// EnergyVAD finds speech by frame RMS energy with hysteresis: speech
// starts after SpeechFrames consecutive frames at or above
// SpeechThreshold and ends after SilenceFrames consecutive frames below
// SilenceThreshold. Segments shorter than MinDuration are dropped and
// segments longer than MaxDuration are split.
type EnergyVAD struct {
	Frame            time.Duration
	SpeechThreshold  float64
	SilenceThreshold float64
	SpeechFrames     int
	SilenceFrames    int
	MinDuration      time.Duration
	MaxDuration      time.Duration
}

// DefaultEnergyVAD returns an EnergyVAD tuned for 16kHz speech with 20ms
// frames.
func DefaultEnergyVAD(minDuration time.Duration) EnergyVAD {
	return EnergyVAD{
		Frame:            20 * time.Millisecond,
		SpeechThreshold:  0.015,
		SilenceThreshold: 0.008,
		SpeechFrames:     3,
		SilenceFrames:    30,
		MinDuration:      minDuration,
		MaxDuration:      10 * time.Second,
	}
}

// Segments implements [Segmenter].
func (v EnergyVAD) Segments(_ context.Context, pcm normalize.PCM) ([]Segment, error) {
	if v.Frame <= 0 || pcm.SampleRate <= 0 {
		return nil, errors.New("mining: invalid energy vad frame")
	}
	frameLen := int(int64(v.Frame) * int64(pcm.SampleRate) / int64(time.Second))
	if frameLen <= 0 {
		return nil, errors.New("mining: energy vad frame shorter than one sample")
	}
	numFrames := len(pcm.Samples) / frameLen
	frameAt := func(i int) time.Duration { return time.Duration(i) * v.Frame }

	var (
		raw          []Segment
		inSpeech     bool
		speechCount  int
		silenceCount int
		start        int
	)
	for i := 0; i < numFrames; i++ {
		level := rms(pcm.Samples[i*frameLen : (i+1)*frameLen])
		if inSpeech {
			if level < v.SilenceThreshold {
				silenceCount++
				if silenceCount >= v.SilenceFrames {
					raw = append(raw, Segment{Start: frameAt(start), End: frameAt(i - silenceCount + 1)})
					inSpeech = false
					silenceCount = 0
				}
			} else {
				silenceCount = 0
			}
			continue
		}
		if level >= v.SpeechThreshold {
			speechCount++
			if speechCount >= max(1, v.SpeechFrames) {
				inSpeech = true
				start = i - speechCount + 1
				speechCount = 0
			}
		} else {
			speechCount = 0
		}
	}
	if inSpeech {
		raw = append(raw, Segment{Start: frameAt(start), End: frameAt(numFrames - silenceCount)})
	}
	return shapeSegments(raw, v.MinDuration, v.MaxDuration), nil
}

// shapeSegments splits segments longer than maxDur and drops those
// shorter than minDur.
func shapeSegments(in []Segment, minDur, maxDur time.Duration) []Segment {
	var out []Segment
	for _, s := range in {
		if maxDur > 0 {
			for s.Duration() > maxDur {
				out = appendMin(out, Segment{Start: s.Start, End: s.Start + maxDur}, minDur)
				s.Start += maxDur
			}
		}
		out = appendMin(out, s, minDur)
	}
	return out
}

func appendMin(out []Segment, s Segment, minDur time.Duration) []Segment {
	if s.Duration() <= 0 || s.Duration() < minDur {
		return out
	}
	return append(out, s)
}

func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
