package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/automuter/pkg/cli"
	"github.com/haivivi/automuter/pkg/enroll"
	"github.com/haivivi/automuter/pkg/mining"
	"github.com/haivivi/automuter/pkg/storage"
)

var (
	flagSeed       string
	flagCorpus     string
	flagRounds     int
	flagInitial    float64
	flagIncrement  float64
	flagMineWorker int
	flagStrategy   string
	flagWindow     time.Duration
	flagStep       time.Duration
	flagEnroll     bool
	flagNoProgress bool
)

var mineCmd = &cobra.Command{
	Use:   "mine <speaker>",
	Short: "Mine a speaker's clips from a raw audio corpus",
	Long: `Bootstrap enrollment material for a speaker from one seed sample.

Each round scans every audio file of the corpus, embeds candidate segments
and keeps those more similar to the current reference than the round
threshold. Kept clips are written to <speakers dir>/<speaker>/run_<N>/ (or
the configured S3 bucket). The next round compares against the mean of
the kept clips with a threshold raised by --increment, capped at 1.

Mining stops after --rounds or as soon as a round keeps nothing. With
--enroll the clips of the last productive round are averaged into one
source for the speaker.

Examples:
  automuter mine alice --seed samples/alice.wav
  automuter mine alice --seed alice.mp3 --corpus /data/raw --strategy energy --enroll`,
	Args: cobra.ExactArgs(1),
	RunE: runMine,
}

func init() {
	f := mineCmd.Flags()
	f.StringVar(&flagSeed, "seed", "", "seed sample (relative paths are also tried under dirs.samples)")
	f.StringVar(&flagCorpus, "corpus", "", "raw audio directory (default: dirs.raw)")
	f.IntVar(&flagRounds, "rounds", 0, "maximum rounds (default: mining.rounds)")
	f.Float64Var(&flagInitial, "threshold", 0, "first round threshold (default: mining.initial_threshold)")
	f.Float64Var(&flagIncrement, "increment", 0, "threshold increment per round (default: mining.threshold_increment)")
	f.IntVar(&flagMineWorker, "workers", 0, "parallel scanners (default: mining.workers)")
	f.StringVar(&flagStrategy, "strategy", "", "segmentation: window, energy or silero (default: mining.strategy)")
	f.DurationVar(&flagWindow, "window", 0, "sliding window length (default: mining.window)")
	f.DurationVar(&flagStep, "step", 0, "sliding window step (default: mining.step)")
	f.BoolVar(&flagEnroll, "enroll", false, "enroll the final clips as one averaged source")
	f.BoolVar(&flagNoProgress, "no-progress", false, "disable progress bars")
	mineCmd.MarkFlagRequired("seed")
	rootCmd.AddCommand(mineCmd)
}

func runMine(cmd *cobra.Command, args []string) error {
	a := newApp()
	defer a.close()
	speaker := args[0]
	m := a.cfg.Mining

	flags := cmd.Flags()
	if flags.Changed("rounds") {
		m.Rounds = flagRounds
	}
	if flags.Changed("threshold") {
		m.InitialThreshold = flagInitial
	}
	if flags.Changed("increment") {
		m.ThresholdIncrement = flagIncrement
	}
	if flags.Changed("workers") {
		m.Workers = flagMineWorker
	}
	if flags.Changed("strategy") {
		m.Strategy = flagStrategy
	}
	if flags.Changed("window") {
		m.Window = flagWindow
	}
	if flags.Changed("step") {
		m.Step = flagStep
	}
	corpus := a.cfg.Dirs.Raw
	if flagCorpus != "" {
		corpus = flagCorpus
	}
	seed := resolveSeed(flagSeed, a.cfg.Dirs.Samples)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	segmenters, err := mining.NewSegmenterFactory(mining.StrategyConfig{
		Strategy:   m.Strategy,
		Window:     m.Window,
		Step:       m.Step,
		MinSegment: m.MinSegment,
		VADModel:   m.VADModel,
	})
	if err != nil {
		return err
	}

	out, where, err := a.clipStore()
	if err != nil {
		return err
	}
	norm, err := a.normalizer()
	if err != nil {
		return err
	}

	start := time.Now()
	cfg := mining.Config{
		Speaker:          speaker,
		SeedPath:         seed,
		CorpusDir:        corpus,
		Rounds:           m.Rounds,
		InitialThreshold: m.InitialThreshold,
		Increment:        m.ThresholdIncrement,
		Workers:          m.Workers,
		Segmenters:       segmenters,
		Factory:          a.factory(ctx),
		Normalizer:       norm,
		MinDuration:      a.cfg.Embedding.MinDuration,
		Output:           out,
		Logger:           a.logger,
	}
	if !flagNoProgress {
		cfg.Progress = os.Stderr
	}
	res, err := mining.Run(ctx, cfg)
	if res != nil {
		fmt.Fprintln(os.Stdout, mineReport(speaker, where, res, time.Since(start)))
	}
	if err != nil {
		return err
	}

	if flagEnroll {
		return enrollMined(ctx, a, speaker, out, res)
	}
	return nil
}

func resolveSeed(seed, samplesDir string) string {
	if _, err := os.Stat(seed); err == nil || filepath.IsAbs(seed) || samplesDir == "" {
		return seed
	}
	if alt := filepath.Join(samplesDir, seed); fileExists(alt) {
		return alt
	}
	return seed
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

func mineReport(speaker, where string, res *mining.Result, took time.Duration) string {
	styles := cli.NewStyles(cli.DefaultTheme)
	var lines []string
	for _, r := range res.Rounds {
		lines = append(lines, fmt.Sprintf("round %d  threshold %s  accepted %4d / %-5d  failed files %d",
			r.Round, cli.FormatScore(r.Threshold), r.Accepted, r.Candidates, r.Failed))
	}
	return cli.Report{
		Styles:   styles,
		Title:    "Mining " + speaker,
		Status:   cli.FormatDuration(took),
		Sections: []cli.Section{{Label: "Rounds", Lines: lines}},
		Footer:   fmt.Sprintf("%d clips in %s", res.Accepted(), where),
	}.Render(72)
}

// enrollMined averages the clips of the last productive round into one
// source for speaker.
func enrollMined(ctx context.Context, a *app, speaker string, out storage.FileStore, res *mining.Result) error {
	local, ok := out.(*storage.Local)
	if !ok {
		return fmt.Errorf("--enroll needs local clip output")
	}
	var last *mining.RoundResult
	for i := range res.Rounds {
		if res.Rounds[i].Accepted > 0 {
			last = &res.Rounds[i]
		}
	}
	if last == nil {
		return fmt.Errorf("no clips to enroll")
	}
	paths := make([]string, len(last.Clips))
	for i, c := range last.Clips {
		paths[i] = filepath.Join(local.Root(), filepath.FromSlash(c))
	}

	galleries, err := a.store()
	if err != nil {
		return err
	}
	emb, err := a.embedderPool(ctx, 1)
	if err != nil {
		return err
	}
	svc := &enroll.Service{Acquirer: a.acquirer(), Embedder: emb, Galleries: galleries, Logger: a.logger}
	r, err := svc.EnrollFiles(ctx, userID, speaker, paths, true)
	if err != nil {
		return err
	}
	cli.PrintSuccess("enrolled %q from %d clips of round %d", speaker, r.Enrolled, last.Round)
	return nil
}
