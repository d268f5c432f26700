// Package mining bootstraps a speaker's enrollment material from an
// unlabeled audio corpus.
//
// Starting from one seed sample, each round scans every corpus file,
// embeds candidate segments and keeps those whose cosine similarity to the
// current master embedding exceeds the round threshold. Kept segments are
// written as WAV clips to {speaker}/run_{N}/. The next round's master is
// the mean embedding of those clips and its threshold is raised by a fixed
// increment, capped at 1. Mining stops early when a round keeps nothing.
//
// Files are scanned in parallel. Each worker owns a Model built by the
// configured Factory and a Segmenter built by the Segmenters factory; a
// round is a barrier.
package mining

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/haivivi/automuter/pkg/audio/normalize"
	"github.com/haivivi/automuter/pkg/speakerstore"
	"github.com/haivivi/automuter/pkg/storage"
	"github.com/haivivi/automuter/pkg/voiceprint"
)

// Config configures a mining run.
type Config struct {
	// Speaker names the output directory and clip prefix.
	Speaker string

	// SeedPath is the seed audio file.
	SeedPath string

	// CorpusDir holds the raw audio files (scanned recursively).
	CorpusDir string

	// Rounds is the maximum number of rounds. Default: 3.
	Rounds int

	InitialThreshold float64

	// Increment is added to the threshold after each round; must be > 0.
	Increment float64

	// Workers is the number of parallel scanners, each with its own
	// Model. Default: runtime.NumCPU().
	Workers int

	// Segmenter proposes candidate segments and is shared by all workers,
	// so it must be stateless. Default: 2s windows, 1s step.
	Segmenter Segmenter

	// Segmenters builds one Segmenter per worker and takes precedence over
	// Segmenter. Use it for model-backed segmenters.
	Segmenters SegmenterFactory

	// Factory builds one Model per worker. Required.
	Factory voiceprint.Factory

	// Normalizer decodes corpus files. Default: normalize.New().
	Normalizer *normalize.Normalizer

	// MinDuration is the embedder padding target.
	// Default: voiceprint.DefaultMinDuration.
	MinDuration time.Duration

	// Output receives accepted clips. Required.
	Output storage.FileStore

	// Progress receives progress bars when non-nil.
	Progress io.Writer

	Logger *slog.Logger
}

// RoundResult summarizes one round.
type RoundResult struct {
	Round     int
	Threshold float64
	Dir       string

	// Files is the number of corpus files scanned, Failed those that could
	// not be decoded or segmented.
	Files  int
	Failed int

	// Candidates is the number of segments embedded, EmbedErrors those
	// whose inference failed.
	Candidates  int
	EmbedErrors int

	Accepted int
	Clips    []string

	// Master is the reference embedding used in this round.
	Master []float32
}

// Result is the outcome of a mining run.
type Result struct {
	Rounds []RoundResult
}

// Accepted returns the total number of clips accepted across rounds.
func (r *Result) Accepted() int {
	n := 0
	for _, rr := range r.Rounds {
		n += rr.Accepted
	}
	return n
}

func (c *Config) setDefaults() {
	if c.Rounds <= 0 {
		c.Rounds = 3
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.Segmenter == nil {
		c.Segmenter = SlidingWindow{Window: 2 * time.Second, Step: time.Second}
	}
	if c.Segmenters == nil {
		c.Segmenters = Shared(c.Segmenter)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Normalizer == nil {
		c.Normalizer = normalize.New(normalize.WithLogger(c.Logger))
	}
	if c.MinDuration == 0 {
		c.MinDuration = voiceprint.DefaultMinDuration
	}
}

func (c *Config) validate() error {
	if err := ValidateSpeaker(c.Speaker); err != nil {
		return err
	}
	switch {
	case c.SeedPath == "":
		return errors.New("mining: seed path is required")
	case c.CorpusDir == "":
		return errors.New("mining: corpus dir is required")
	case c.Factory == nil:
		return errors.New("mining: model factory is required")
	case c.Output == nil:
		return errors.New("mining: output store is required")
	case !(c.Increment > 0):
		return fmt.Errorf("mining: threshold increment must be > 0, got %v", c.Increment)
	case c.InitialThreshold < -1 || c.InitialThreshold > 1:
		return fmt.Errorf("mining: initial threshold %v outside [-1, 1]", c.InitialThreshold)
	}
	return nil
}

// ValidateSpeaker checks that name is a valid speaker name that is also
// safe as a single path element.
func ValidateSpeaker(name string) error {
	if err := speakerstore.ValidateName(name); err != nil {
		return err
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return &speakerstore.ValidationError{Field: "speaker name", Value: name, Reason: "must be usable as a directory name"}
	}
	return nil
}

// CorpusFiles returns the audio files below dir in lexical order.
func CorpusFiles(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && normalize.IsAudioFile(p) {
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// RunDir returns the output directory of a round.
func RunDir(speaker string, round int) string {
	return speaker + "/run_" + fmt.Sprint(round)
}

// Run executes the mining rounds. On error the rounds completed so far
// are returned with it.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	files, err := CorpusFiles(cfg.CorpusDir)
	if err != nil {
		return nil, fmt.Errorf("mining: list corpus: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("mining: no audio files in %s", cfg.CorpusDir)
	}

	p, err := newPipeline(cfg, min(cfg.Workers, len(files)))
	if err != nil {
		return nil, err
	}
	defer p.close()

	logger := cfg.Logger.With("speaker", cfg.Speaker)
	master, err := p.workers[0].emb.EmbedFile(ctx, cfg.SeedPath)
	if err != nil {
		return nil, fmt.Errorf("mining: seed embedding: %w", err)
	}
	logger.Info("mining started", "files", len(files), "workers", len(p.workers), "rounds", cfg.Rounds)

	prog := newProgress(cfg.Progress)
	defer prog.wait()

	res := &Result{}
	threshold := cfg.InitialThreshold
	for round := 1; round <= cfg.Rounds; round++ {
		rr, err := p.scan(ctx, prog, round, threshold, master, files)
		res.Rounds = append(res.Rounds, rr)
		if err != nil {
			return res, err
		}
		logger.Info("round complete",
			"round", round,
			"threshold", threshold,
			"accepted", rr.Accepted,
			"candidates", rr.Candidates,
			"failed_files", rr.Failed)

		if rr.Accepted == 0 {
			logger.Info("no clips accepted, stopping", "round", round)
			break
		}
		if round == cfg.Rounds {
			break
		}
		master, err = p.masterFrom(ctx, rr.Dir)
		if err != nil {
			return res, fmt.Errorf("mining: round %d master: %w", round+1, err)
		}
		threshold = math.Min(1, threshold+cfg.Increment)
	}
	return res, nil
}
