package acquire

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeYTDLP writes a shell script that mimics yt-dlp: it records its
// arguments and writes audio.wav next to the -o template.
func fakeYTDLP(t *testing.T, fail bool) (bin, argsFile string) {
	t.Helper()
	dir := t.TempDir()
	argsFile = filepath.Join(dir, "args")
	script := `#!/bin/sh
echo "$@" > "` + argsFile + `"
out=""
while [ $# -gt 0 ]; do
  case "$1" in
    -o) out="$2"; shift ;;
  esac
  shift
done
`
	if fail {
		script += "echo 'ERROR: Unsupported URL' >&2\nexit 1\n"
	} else {
		script += `printf 'RIFF' > "$(dirname "$out")/audio.wav"` + "\n"
	}
	bin = filepath.Join(dir, "yt-dlp")
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return bin, argsFile
}

func TestDownloader(t *testing.T) {
	bin, argsFile := fakeYTDLP(t, false)
	tmp := t.TempDir()
	d := &Downloader{Binary: bin, TempDir: tmp, FFmpeg: "/opt/ffmpeg"}

	art, err := d.Fetch(context.Background(), Request{URL: "https://example.com/v", Start: "10", End: "1:00"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if filepath.Base(art.Path) != "audio.wav" || !art.Trimmed {
		t.Errorf("artifact = %+v", art)
	}
	args, _ := os.ReadFile(argsFile)
	for _, want := range []string{"--download-sections *10-1:00", "--ffmpeg-location /opt/ffmpeg", "-- https://example.com/v"} {
		if !strings.Contains(string(args), want) {
			t.Errorf("args %q missing %q", args, want)
		}
	}

	dir := art.Dir
	if err := art.Cleanup(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("temp dir survived cleanup: %v", err)
	}
	if err := art.Cleanup(); err != nil {
		t.Errorf("second Cleanup: %v", err)
	}
}

func TestDownloader_FailureCleansUp(t *testing.T) {
	bin, _ := fakeYTDLP(t, true)
	tmp := t.TempDir()
	d := &Downloader{Binary: bin, TempDir: tmp}

	_, err := d.Fetch(context.Background(), Request{URL: "https://example.com/bad"})
	if !errors.Is(err, ErrAcquisition) {
		t.Fatalf("err = %v, want ErrAcquisition", err)
	}
	var aerr *Error
	if !errors.As(err, &aerr) || !strings.Contains(aerr.Output, "Unsupported URL") {
		t.Errorf("Error = %+v", aerr)
	}
	entries, _ := os.ReadDir(tmp)
	if len(entries) != 0 {
		t.Errorf("temp dirs left behind: %v", entries)
	}
}

func TestDownloader_InvalidRange(t *testing.T) {
	d := &Downloader{Binary: "/nonexistent"}
	_, err := d.Fetch(context.Background(), Request{URL: "https://x", Start: "20", End: "10"})
	if !errors.Is(err, ErrAcquisition) {
		t.Fatalf("err = %v", err)
	}
}

func TestRouter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.wav")
	os.WriteFile(path, []byte("x"), 0o644)

	r := Router{}
	art, err := r.Fetch(context.Background(), Request{URL: "file://" + path})
	if err != nil || art.Path != path || art.Dir != "" {
		t.Fatalf("file url = %+v, %v", art, err)
	}
	art, err = r.Fetch(context.Background(), Request{URL: path})
	if err != nil || art.Path != path {
		t.Fatalf("plain path = %+v, %v", art, err)
	}
	if _, err := r.Fetch(context.Background(), Request{URL: "https://x"}); !errors.Is(err, ErrAcquisition) {
		t.Errorf("unconfigured remote: %v", err)
	}
	if _, err := r.Fetch(context.Background(), Request{URL: filepath.Dir(path)}); !errors.Is(err, ErrAcquisition) {
		t.Errorf("directory: %v", err)
	}
}

func TestParseOffset(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"", 0, true},
		{"90", 90 * time.Second, true},
		{"1:30", 90 * time.Second, true},
		{"00:01:30", 90 * time.Second, true},
		{"1:00:00", time.Hour, true},
		{"2.5", 2500 * time.Millisecond, true},
		{"abc", 0, false},
		{"1:2:3:4", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseOffset(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("ParseOffset(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestRequestTimestamp(t *testing.T) {
	if got := (Request{URL: "x"}).Timestamp(); got != "" {
		t.Errorf("no range = %q", got)
	}
	if got := (Request{URL: "x", Start: "5", End: "9"}).Timestamp(); got != "5-9" {
		t.Errorf("range = %q", got)
	}
}
