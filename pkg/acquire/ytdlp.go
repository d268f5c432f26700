package acquire

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
)

// Downloader fetches remote audio with yt-dlp as WAV.
type Downloader struct {
	// Binary is the yt-dlp executable. Default: "yt-dlp".
	Binary string

	// FFmpeg is passed as --ffmpeg-location when set.
	FFmpeg string

	// TempDir is the parent of per-fetch temporary directories.
	// Default: os.TempDir().
	TempDir string

	Logger *slog.Logger
}

// Fetch implements [Acquirer].
func (d *Downloader) Fetch(ctx context.Context, req Request) (*Artifact, error) {
	if err := req.Validate(); err != nil {
		return nil, &Error{URL: req.URL, Err: err}
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dir, err := os.MkdirTemp(d.TempDir, "automuter-acquire-")
	if err != nil {
		return nil, &Error{URL: req.URL, Err: err}
	}
	art := &Artifact{Dir: dir, Trimmed: req.HasRange()}

	cmd := exec.CommandContext(ctx, d.binary(), d.args(req, dir)...)
	logger.Info("acquiring audio", "url", req.URL, "range", req.Timestamp())
	out, err := cmd.CombinedOutput()
	if err != nil {
		art.Cleanup()
		return nil, &Error{URL: req.URL, Output: string(out), Err: err}
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "audio.*"))
	if len(matches) == 0 {
		art.Cleanup()
		return nil, &Error{URL: req.URL, Output: string(out), Err: errors.New("no audio file produced")}
	}
	art.Path = matches[0]
	return art, nil
}

func (d *Downloader) binary() string {
	if d.Binary != "" {
		return d.Binary
	}
	return "yt-dlp"
}

func (d *Downloader) args(req Request, dir string) []string {
	args := []string{
		"--no-playlist",
		"--quiet", "--no-warnings",
		"-x", "--audio-format", "wav",
		"-o", filepath.Join(dir, "audio.%(ext)s"),
	}
	if d.FFmpeg != "" {
		args = append(args, "--ffmpeg-location", d.FFmpeg)
	}
	if req.HasRange() {
		start, end := req.Start, req.End
		if start == "" {
			start = "0"
		}
		if end == "" {
			end = "inf"
		}
		args = append(args, "--download-sections", "*"+start+"-"+end, "--force-keyframes-at-cuts")
	}
	return append(args, "--", req.URL)
}
