package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/haivivi/automuter/pkg/audio/normalize"
	"github.com/haivivi/automuter/pkg/cli"
	"github.com/haivivi/automuter/pkg/enroll"
)

var (
	flagStart   string
	flagEnd     string
	flagDir     string
	flagAverage bool
	flagFile    string
)

var enrollCmd = &cobra.Command{
	Use:   "enroll [speaker] [url-or-path]",
	Short: "Enroll a speaker sample",
	Long: `Enroll a speaker sample for --user.

The source may be an http(s) URL (fetched with yt-dlp), a file:// URL or a
local path. --start/--end select a time range ("90", "1:30", "00:01:30").

With --dir every audio file in the directory is enrolled as its own source,
or as one averaged source with --average. With -f a YAML/JSON list of
{userId, speakerName, url, start, end} requests is enrolled.

Examples:
  automuter enroll alice https://youtu.be/xyz --start 1:05 --end 1:40
  automuter enroll alice --dir samples/alice --average
  automuter enroll -f requests.yaml`,
	Args: cobra.RangeArgs(0, 2),
	RunE: runEnroll,
}

func init() {
	f := enrollCmd.Flags()
	f.StringVar(&flagStart, "start", "", "range start offset")
	f.StringVar(&flagEnd, "end", "", "range end offset")
	f.StringVar(&flagDir, "dir", "", "enroll every audio file in this directory")
	f.BoolVar(&flagAverage, "average", false, "with --dir, average all files into one source")
	f.StringVarP(&flagFile, "file", "f", "", "YAML/JSON file with enrollment requests (- for stdin)")
	rootCmd.AddCommand(enrollCmd)
}

func runEnroll(cmd *cobra.Command, args []string) error {
	a := newApp()
	defer a.close()
	ctx := context.Background()

	var reqs []enroll.Request
	switch {
	case flagFile != "":
		if err := cli.LoadRequest(flagFile, &reqs); err != nil {
			return err
		}
	case flagDir != "":
		if len(args) != 1 {
			return fmt.Errorf("--dir takes exactly one argument: the speaker name")
		}
	default:
		if len(args) != 2 {
			return fmt.Errorf("expected <speaker> <url-or-path>")
		}
		reqs = []enroll.Request{{
			UserID:      userID,
			SpeakerName: args[0],
			URL:         args[1],
			Start:       flagStart,
			End:         flagEnd,
		}}
	}

	galleries, err := a.store()
	if err != nil {
		return err
	}
	emb, err := a.embedderPool(ctx, 1)
	if err != nil {
		return fmt.Errorf("embedding model: %w", err)
	}
	svc := &enroll.Service{Acquirer: a.acquirer(), Embedder: emb, Galleries: galleries, Logger: a.logger}

	if flagDir != "" {
		paths, err := audioFiles(flagDir)
		if err != nil {
			return err
		}
		res, err := svc.EnrollFiles(ctx, userID, args[0], paths, flagAverage)
		if err != nil {
			return err
		}
		for _, p := range res.Failed {
			cli.PrintWarning("skipped %s", p)
		}
		cli.PrintSuccess("enrolled %d source(s) for %q", res.Enrolled, args[0])
		return nil
	}

	var failed int
	for _, req := range reqs {
		if req.UserID == "" {
			req.UserID = userID
		}
		res := svc.Enroll(ctx, req)
		if res.Status != enroll.StatusSuccess {
			failed++
			cli.PrintError("%s", res.Message)
			continue
		}
		cli.PrintSuccess("%s", res.Message)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d enrollments failed", failed, len(reqs))
	}
	return nil
}

// audioFiles lists the audio files directly inside dir.
func audioFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && normalize.IsAudioFile(e.Name()) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no audio files in %s", dir)
	}
	return out, nil
}
