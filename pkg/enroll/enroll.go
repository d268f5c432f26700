// Package enroll adds source samples to enrolled speakers.
//
// An enrollment validates the identifiers, acquires the audio, normalizes
// and embeds it, then appends a source to the speaker through the gallery
// cache so the user's gallery is rebuilt on next use. Temporary audio is
// removed on every path.
package enroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/haivivi/automuter/pkg/acquire"
	"github.com/haivivi/automuter/pkg/gallery"
	"github.com/haivivi/automuter/pkg/speakerstore"
	"github.com/haivivi/automuter/pkg/voiceprint"
)

// Result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Request is one enrollment.
type Request struct {
	UserID      string `json:"userId"`
	SpeakerName string `json:"speakerName"`
	URL         string `json:"url"`
	Start       string `json:"start,omitempty"`
	End         string `json:"end,omitempty"`
}

// Result is the structured outcome reported to clients.
type Result struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Service performs enrollments.
type Service struct {
	Acquirer  acquire.Acquirer
	Embedder  *voiceprint.Embedder
	Galleries *gallery.Cache
	Logger    *slog.Logger

	// RemoteOnly rejects sources that are not http(s) URLs before any
	// acquisition, so network callers cannot name files on this host.
	RemoteOnly bool
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Enroll runs Do and reports the outcome as a Result.
func (s *Service) Enroll(ctx context.Context, req Request) Result {
	src, err := s.Do(ctx, req)
	return ResultOf(req, src, err)
}

// ResultOf formats the outcome of Do for req.
func ResultOf(req Request, src speakerstore.Source, err error) Result {
	if err != nil {
		return Result{Status: StatusError, Message: err.Error()}
	}
	msg := fmt.Sprintf("enrolled %q from %s", req.SpeakerName, req.URL)
	if src.Timestamp != "" {
		msg += " [" + src.Timestamp + "]"
	}
	return Result{Status: StatusSuccess, Message: msg}
}

// Do enrolls one source and returns the stored record. Errors keep their
// kind: speakerstore.ErrInvalid, acquire.ErrAcquisition,
// normalize.ErrDecode, voiceprint.ErrEmbeddingCompute or
// speakerstore.ErrStore.
func (s *Service) Do(ctx context.Context, req Request) (speakerstore.Source, error) {
	if err := speakerstore.ValidateUserID(req.UserID); err != nil {
		return speakerstore.Source{}, err
	}
	if err := speakerstore.ValidateName(req.SpeakerName); err != nil {
		return speakerstore.Source{}, err
	}
	areq := acquire.Request{URL: req.URL, Start: req.Start, End: req.End}
	if err := areq.Validate(); err != nil {
		return speakerstore.Source{}, &speakerstore.ValidationError{Field: "source", Value: req.URL, Reason: err.Error()}
	}
	if s.RemoteOnly && !acquire.IsRemote(req.URL) {
		return speakerstore.Source{}, &speakerstore.ValidationError{Field: "source", Value: req.URL, Reason: "must be an http or https URL"}
	}

	logger := s.logger().With("user", req.UserID, "speaker", req.SpeakerName)
	art, err := s.Acquirer.Fetch(ctx, areq)
	if err != nil {
		logger.Warn("acquisition failed", "url", req.URL, "error", err)
		return speakerstore.Source{}, err
	}
	defer func() {
		if err := art.Cleanup(); err != nil {
			logger.Warn("cleanup failed", "dir", art.Dir, "error", err)
		}
	}()

	pcm, err := s.Embedder.Normalizer().NormalizeFile(ctx, art.Path)
	if err != nil {
		return speakerstore.Source{}, err
	}
	if areq.HasRange() && !art.Trimmed {
		start, _ := acquire.ParseOffset(areq.Start)
		end, _ := acquire.ParseOffset(areq.End)
		if areq.End == "" {
			end = pcm.Duration()
		}
		pcm = pcm.Slice(start, end)
		if len(pcm.Samples) == 0 {
			return speakerstore.Source{}, &speakerstore.ValidationError{Field: "range", Value: areq.Timestamp(), Reason: "outside the audio"}
		}
	}

	vec, err := s.Embedder.Embed(ctx, pcm)
	if err != nil {
		return speakerstore.Source{}, err
	}
	src, err := s.Galleries.AddSource(ctx, req.UserID, req.SpeakerName, vec, req.URL, areq.Timestamp())
	if err != nil {
		return speakerstore.Source{}, err
	}
	logger.Info("enrolled source", "url", req.URL, "range", areq.Timestamp(), "source", src.ID, "duration", pcm.Duration())
	return src, nil
}

// FilesResult summarizes a multi-file enrollment.
type FilesResult struct {
	Enrolled int
	Failed   []string
}

// EnrollFiles enrolls local audio files for one speaker. With average set
// the files are embedded and averaged into a single source whose URL is
// their common directory; otherwise each file becomes its own source.
// Files that fail are skipped; it is an error only if none succeeded.
func (s *Service) EnrollFiles(ctx context.Context, user, name string, paths []string, average bool) (FilesResult, error) {
	if err := speakerstore.ValidateUserID(user); err != nil {
		return FilesResult{}, err
	}
	if err := speakerstore.ValidateName(name); err != nil {
		return FilesResult{}, err
	}
	if len(paths) == 0 {
		return FilesResult{}, errors.New("enroll: no audio files")
	}

	if average {
		vec, n, err := s.Embedder.EmbedFiles(ctx, paths)
		if err != nil {
			return FilesResult{Failed: paths}, err
		}
		if _, err := s.Galleries.AddSource(ctx, user, name, vec, "file://"+commonDir(paths), ""); err != nil {
			return FilesResult{}, err
		}
		return FilesResult{Enrolled: n, Failed: nil}, nil
	}

	var res FilesResult
	var lastErr error
	for _, p := range paths {
		_, err := s.Do(ctx, Request{UserID: user, SpeakerName: name, URL: p})
		if err != nil {
			res.Failed = append(res.Failed, p)
			lastErr = err
			if errors.Is(err, speakerstore.ErrStore) || ctx.Err() != nil {
				return res, err
			}
			continue
		}
		res.Enrolled++
	}
	if res.Enrolled == 0 {
		return res, fmt.Errorf("enroll: no file could be enrolled: %w", lastErr)
	}
	return res, nil
}

func commonDir(paths []string) string {
	dir := filepath.Dir(paths[0])
	for _, p := range paths[1:] {
		for !isWithin(p, dir) {
			parent := filepath.Dir(dir)
			if parent == dir {
				return dir
			}
			dir = parent
		}
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return dir
	}
	return abs
}

func isWithin(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !startsWithParent(rel)
}

func startsWithParent(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}
