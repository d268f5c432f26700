package commands

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/haivivi/automuter/pkg/audio/normalize"
	"github.com/haivivi/automuter/pkg/cli"
	"github.com/haivivi/automuter/pkg/voiceprint"
)

var (
	flagTarget       string
	flagSimThreshold float64
	flagStructured   bool
)

var similarityCmd = &cobra.Command{
	Use:   "similarity --target <file> <file-or-dir>...",
	Short: "Score audio files against a target sample",
	Long: `Embed a target sample and every audio file under the given paths,
then report the cosine similarity of each file to the target together with
average, minimum and maximum and how many files exceed --threshold.

Examples:
  automuter similarity --target samples/alice.wav speakers/alice/run_1
  automuter similarity --target alice.wav clip1.wav clip2.wav --structured -o json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSimilarity,
}

func init() {
	f := similarityCmd.Flags()
	f.StringVar(&flagTarget, "target", "", "target sample")
	f.Float64Var(&flagSimThreshold, "threshold", 0, "match threshold (default: config threshold)")
	f.BoolVar(&flagStructured, "structured", false, "print the result in --output format instead of a report")
	similarityCmd.MarkFlagRequired("target")
	rootCmd.AddCommand(similarityCmd)
}

// Score is the similarity of one file to the target.
type Score struct {
	Path       string  `json:"path"`
	Similarity float64 `json:"similarity"`
	Error      string  `json:"error,omitempty"`
}

// Stats summarizes the scores that could be computed.
type Stats struct {
	Count int     `json:"count"`
	Above int     `json:"above"`
	Avg   float64 `json:"avg"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

type similarityResult struct {
	Target    string  `json:"target"`
	Threshold float64 `json:"threshold"`
	Scores    []Score `json:"scores"`
	Stats     Stats   `json:"stats"`
}

func runSimilarity(cmd *cobra.Command, args []string) error {
	a := newApp()
	defer a.close()
	ctx := context.Background()

	threshold := a.cfg.Threshold
	if cmd.Flags().Changed("threshold") {
		threshold = flagSimThreshold
	}
	files, err := collectAudio(args)
	if err != nil {
		return err
	}
	emb, err := a.embedderPool(ctx, 1)
	if err != nil {
		return fmt.Errorf("embedding model: %w", err)
	}
	target, err := emb.EmbedFile(ctx, flagTarget)
	if err != nil {
		return fmt.Errorf("target %s: %w", flagTarget, err)
	}

	res := similarityResult{Target: flagTarget, Threshold: threshold}
	for _, p := range files {
		res.Scores = append(res.Scores, scoreFile(ctx, emb, target, p))
	}
	res.Stats = scoreStats(res.Scores, threshold)

	if flagStructured {
		return output(res)
	}
	fmt.Fprintln(os.Stdout, similarityReport(res))
	return nil
}

func scoreFile(ctx context.Context, emb *voiceprint.Embedder, target []float32, path string) Score {
	s := Score{Path: path}
	v, err := emb.EmbedFile(ctx, path)
	if err == nil {
		s.Similarity, err = voiceprint.Cosine(target, v)
	}
	if err != nil {
		s.Error = err.Error()
	}
	return s
}

// collectAudio expands directories recursively into their audio files.
func collectAudio(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		var found []string
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && normalize.IsAudioFile(path) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		sort.Strings(found)
		out = append(out, found...)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no audio files in %v", paths)
	}
	return out, nil
}

// scoreStats ignores scores that carry an error.
func scoreStats(scores []Score, threshold float64) Stats {
	var st Stats
	var sum float64
	for _, s := range scores {
		if s.Error != "" {
			continue
		}
		if st.Count == 0 {
			st.Min, st.Max = s.Similarity, s.Similarity
		}
		st.Count++
		sum += s.Similarity
		st.Min = min(st.Min, s.Similarity)
		st.Max = max(st.Max, s.Similarity)
		if s.Similarity > threshold {
			st.Above++
		}
	}
	if st.Count > 0 {
		st.Avg = sum / float64(st.Count)
	}
	return st
}

func similarityReport(res similarityResult) string {
	styles := cli.NewStyles(cli.DefaultTheme)
	lines := make([]string, 0, len(res.Scores))
	for _, s := range res.Scores {
		name := filepath.Base(s.Path)
		if s.Error != "" {
			lines = append(lines, fmt.Sprintf("%-32.32s %s", name, styles.Help.Render("error: "+s.Error)))
			continue
		}
		lines = append(lines, fmt.Sprintf("%-32.32s %s %s", name,
			styles.ScoreBar(s.Similarity, res.Threshold, 20), cli.FormatScore(s.Similarity)))
	}
	st := res.Stats
	summary := []string{
		fmt.Sprintf("files      %d scored / %d", st.Count, len(res.Scores)),
		fmt.Sprintf("above      %d (threshold %s)", st.Above, cli.FormatScore(res.Threshold)),
		fmt.Sprintf("avg        %s", cli.FormatScore(st.Avg)),
		fmt.Sprintf("min / max  %s / %s", cli.FormatScore(st.Min), cli.FormatScore(st.Max)),
	}
	return cli.Report{
		Styles:   styles,
		Title:    "Similarity to " + filepath.Base(res.Target),
		Sections: []cli.Section{{Label: "Files", Lines: lines}, {Label: "Summary", Lines: summary}},
	}.Render(80)
}
