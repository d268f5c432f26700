package mining

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// Segmentation strategies.
const (
	StrategyWindow = "window"
	StrategyEnergy = "energy"
	StrategySilero = "silero"
)

type segmenterCloser interface {
	Segmenter
	io.Closer
}

// newSileroVAD is set when built with the silero tag.
var newSileroVAD func(modelPath string, minDuration time.Duration) (segmenterCloser, error)

// StrategyConfig selects and parameterizes a Segmenter.
type StrategyConfig struct {
	Strategy   string
	Window     time.Duration
	Step       time.Duration
	MinSegment time.Duration
	VADModel   string
}

// SegmenterFactory builds one Segmenter per mining worker. The returned
// close function releases model resources and is never nil.
type SegmenterFactory func() (Segmenter, func() error, error)

func noClose() error { return nil }

// Shared returns a factory handing every worker the same stateless s.
func Shared(s Segmenter) SegmenterFactory {
	return func() (Segmenter, func() error, error) { return s, noClose, nil }
}

// NewSegmenterFactory validates cfg and returns a factory for the
// Segmenter named by cfg.Strategy. Model-backed strategies load a fresh
// model on every call.
func NewSegmenterFactory(cfg StrategyConfig) (SegmenterFactory, error) {
	switch cfg.Strategy {
	case "", StrategyWindow:
		return Shared(SlidingWindow{Window: cfg.Window, Step: cfg.Step}), nil
	case StrategyEnergy:
		return Shared(DefaultEnergyVAD(cfg.MinSegment)), nil
	case StrategySilero:
		if newSileroVAD == nil {
			return nil, errors.New("mining: silero strategy requires building with -tags silero")
		}
		if cfg.VADModel == "" {
			return nil, errors.New("mining: silero strategy requires mining.vad_model")
		}
		return func() (Segmenter, func() error, error) {
			s, err := newSileroVAD(cfg.VADModel, cfg.MinSegment)
			if err != nil {
				return nil, noClose, err
			}
			return s, s.Close, nil
		}, nil
	default:
		return nil, fmt.Errorf("mining: unknown strategy %q", cfg.Strategy)
	}
}
