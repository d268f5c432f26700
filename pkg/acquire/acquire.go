// Package acquire obtains enrollment audio from a source reference.
//
// Remote references (http, https) are fetched with yt-dlp, optionally
// restricted to a time range. Local paths and file:// URLs are used in
// place. Every fetch returns an [Artifact] whose Cleanup removes any
// temporary files; on failure the temporaries are already gone.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrAcquisition matches every [*Error].
var ErrAcquisition = errors.New("acquire: acquisition failed")

// Error reports a failed acquisition with the tool's captured output.
type Error struct {
	URL    string
	Output string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("acquire %s: %v", e.URL, e.Err)
	if out := tail(e.Output, 512); out != "" {
		msg += ": " + out
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrAcquisition }

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return "..." + s[len(s)-n:]
	}
	return s
}

// Request names the audio to acquire. Start and End are offsets in
// seconds or [HH:]MM:SS[.fff] form; either may be empty.
type Request struct {
	URL   string
	Start string
	End   string
}

// HasRange reports whether a time range was requested.
func (r Request) HasRange() bool { return r.Start != "" || r.End != "" }

// Timestamp returns the provenance string "start-end", or "" without a
// range.
func (r Request) Timestamp() string {
	if !r.HasRange() {
		return ""
	}
	return r.Start + "-" + r.End
}

// Validate checks the URL and offsets.
func (r Request) Validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return errors.New("source url is required")
	}
	start, err := ParseOffset(r.Start)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	end, err := ParseOffset(r.End)
	if err != nil {
		return fmt.Errorf("end: %w", err)
	}
	if r.End != "" && end <= start {
		return fmt.Errorf("end %q is not after start %q", r.End, r.Start)
	}
	return nil
}

// Artifact is acquired audio on local disk.
type Artifact struct {
	// Path of the audio file.
	Path string

	// Dir is a temporary directory owned by the artifact, or "".
	Dir string

	// Trimmed is true when the requested range was already applied.
	Trimmed bool
}

// Cleanup removes the artifact's temporary directory. It is safe to call
// on a nil Artifact and more than once.
func (a *Artifact) Cleanup() error {
	if a == nil || a.Dir == "" {
		return nil
	}
	err := os.RemoveAll(a.Dir)
	a.Dir = ""
	return err
}

// Acquirer fetches the audio for a request.
type Acquirer interface {
	Fetch(ctx context.Context, req Request) (*Artifact, error)
}

// Router sends http(s) references to Remote and everything else to Local.
type Router struct {
	Remote Acquirer
	Local  Acquirer
}

// Fetch implements [Acquirer].
func (r Router) Fetch(ctx context.Context, req Request) (*Artifact, error) {
	if IsRemote(req.URL) {
		if r.Remote == nil {
			return nil, &Error{URL: req.URL, Err: errors.New("remote acquisition is not configured")}
		}
		return r.Remote.Fetch(ctx, req)
	}
	local := r.Local
	if local == nil {
		local = Local{}
	}
	return local.Fetch(ctx, req)
}

// IsRemote reports whether ref is an http or https URL.
func IsRemote(ref string) bool {
	u, err := url.Parse(ref)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}

// Local resolves plain paths and file:// URLs without copying.
type Local struct{}

// Fetch implements [Acquirer]. The time range is not applied.
func (Local) Fetch(_ context.Context, req Request) (*Artifact, error) {
	path := req.URL
	if strings.HasPrefix(path, "file://") {
		u, err := url.Parse(path)
		if err != nil {
			return nil, &Error{URL: req.URL, Err: err}
		}
		path = u.Path
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, &Error{URL: req.URL, Err: err}
	}
	if info.IsDir() {
		return nil, &Error{URL: req.URL, Err: errors.New("is a directory")}
	}
	return &Artifact{Path: path}, nil
}

var offsetPattern = regexp.MustCompile(`^(?:(\d+):)?(?:(\d+):)?(\d+(?:\.\d+)?)$`)

// ParseOffset parses "90", "1:30", "00:01:30" or "1:30.5". An empty
// string is zero.
func ParseOffset(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	m := offsetPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid offset %q", s)
	}
	var parts []string
	for _, p := range m[1:3] {
		if p != "" {
			parts = append(parts, p)
		}
	}
	var total float64
	for _, p := range parts {
		n, _ := strconv.Atoi(p)
		total = total*60 + float64(n)
	}
	sec, _ := strconv.ParseFloat(m[3], 64)
	total = total*60 + sec
	return time.Duration(total * float64(time.Second)), nil
}
