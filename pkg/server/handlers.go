package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/haivivi/automuter/pkg/acquire"
	"github.com/haivivi/automuter/pkg/audio/normalize"
	"github.com/haivivi/automuter/pkg/enroll"
	"github.com/haivivi/automuter/pkg/speakerstore"
	"github.com/haivivi/automuter/pkg/verify"
	"github.com/haivivi/automuter/pkg/voiceprint"
)

// status is the administrative response body.
type status struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func ok(c echo.Context, format string, args ...any) error {
	return c.JSON(http.StatusOK, status{Status: enroll.StatusSuccess, Message: fmt.Sprintf(format, args...)})
}

// fail writes err as a {status, message} body with a status code derived
// from its kind.
func (s *Server) fail(c echo.Context, err error) error {
	code := statusCode(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", "uri", c.Request().RequestURI, "error", err)
	}
	return c.JSON(code, status{Status: enroll.StatusError, Message: err.Error()})
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, speakerstore.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, speakerstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, normalize.ErrDecode):
		return http.StatusUnprocessableEntity
	case errors.Is(err, acquire.ErrAcquisition):
		return http.StatusBadGateway
	case errors.Is(err, voiceprint.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) health(c echo.Context) error {
	var active int64
	if s.cfg.Sessions != nil {
		active = s.cfg.Sessions.Active()
	}
	return c.JSON(http.StatusOK, map[string]any{"status": "ok", "sessions": active})
}

func (s *Server) stream(c echo.Context) error {
	user := c.Param("userId")
	if err := speakerstore.ValidateUserID(user); err != nil {
		return s.fail(c, err)
	}
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the error response.
		s.logger.Warn("websocket upgrade failed", "user", user, "error", err)
		return nil
	}

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()
	stop := context.AfterFunc(s.base, cancel)
	defer stop()

	logger := s.logger.With("user", user)
	ch := verify.NewWSChannel(conn, s.cfg.MaxChunk, logger)
	if err := s.cfg.Sessions.Serve(ctx, user, ch); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("session ended with error", "error", err)
	}
	return nil
}

func (s *Server) enroll(c echo.Context) error {
	var req enroll.Request
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, enroll.Result{Status: enroll.StatusError, Message: "invalid request body"})
	}
	src, err := s.cfg.Enroll.Do(c.Request().Context(), req)
	res := enroll.ResultOf(req, src, err)
	if err != nil {
		code := statusCode(err)
		if code >= http.StatusInternalServerError {
			s.logger.Error("enrollment failed", "user", req.UserID, "speaker", req.SpeakerName, "error", err)
		}
		return c.JSON(code, res)
	}
	return c.JSON(http.StatusOK, res)
}

type speakerList struct {
	UserID   string   `json:"userId"`
	Speakers []string `json:"speakers"`
}

func (s *Server) listSpeakers(c echo.Context) error {
	user := c.Param("userId")
	speakers, err := s.cfg.Galleries.Store().Speakers(c.Request().Context(), user)
	if err != nil {
		return s.fail(c, err)
	}
	names := make([]string, 0, len(speakers))
	for _, spk := range speakers {
		names = append(names, spk.Name)
	}
	return c.JSON(http.StatusOK, speakerList{UserID: user, Speakers: names})
}

type speakerDetail struct {
	speakerstore.Speaker
	Sources []speakerstore.Source `json:"sources"`
}

func (s *Server) showSpeaker(c echo.Context) error {
	ctx := c.Request().Context()
	store := s.cfg.Galleries.Store()
	user, name := c.Param("userId"), c.Param("name")
	spk, err := store.Speaker(ctx, user, name)
	if err != nil {
		return s.fail(c, err)
	}
	srcs, err := store.Sources(ctx, user, name)
	if err != nil {
		return s.fail(c, err)
	}
	if srcs == nil {
		srcs = []speakerstore.Source{}
	}
	return c.JSON(http.StatusOK, speakerDetail{Speaker: *spk, Sources: srcs})
}

func (s *Server) deleteSpeaker(c echo.Context) error {
	user, name := c.Param("userId"), c.Param("name")
	if err := s.cfg.Galleries.RemoveSpeaker(c.Request().Context(), user, name); err != nil {
		return s.fail(c, err)
	}
	return ok(c, "removed speaker %q", name)
}

type sourceRef struct {
	URL       string `json:"url"`
	Timestamp string `json:"timestamp,omitempty"`
}

func (s *Server) deleteSource(c echo.Context) error {
	user, name := c.Param("userId"), c.Param("name")
	var ref sourceRef
	if err := c.Bind(&ref); err != nil {
		return s.fail(c, &speakerstore.ValidationError{Field: "body", Reason: "invalid JSON"})
	}
	n, err := s.cfg.Galleries.RemoveSource(c.Request().Context(), user, name, ref.URL, ref.Timestamp)
	if err != nil {
		return s.fail(c, err)
	}
	if n == 0 {
		return s.fail(c, fmt.Errorf("%w: no source %s for speaker %q", speakerstore.ErrNotFound, ref.URL, name))
	}
	return ok(c, "removed %d source(s) of %q", n, name)
}

func (s *Server) initUser(c echo.Context) error {
	user := c.Param("userId")
	if err := s.cfg.Galleries.Store().Init(c.Request().Context(), user); err != nil {
		return s.fail(c, err)
	}
	return ok(c, "initialized %s", user)
}

func (s *Server) wipeUser(c echo.Context) error {
	user := c.Param("userId")
	if err := s.cfg.Galleries.Wipe(c.Request().Context(), user); err != nil {
		return s.fail(c, err)
	}
	return ok(c, "wiped %s", user)
}
