// Package server exposes the streaming verification session and the
// administrative operations over HTTP.
//
// Routes:
//
//	GET    /healthz
//	GET    /ws/:userId                              streaming session
//	POST   /enroll                                  {userId, speakerName, url, start?, end?}
//	GET    /users/:userId/speakers
//	GET    /users/:userId/speakers/:name
//	DELETE /users/:userId/speakers/:name
//	DELETE /users/:userId/speakers/:name/sources    {url, timestamp?}
//	POST   /users/:userId/init
//	POST   /users/:userId/wipe
//
// Administrative responses carry a {status, message} body.
//
// Each binary WebSocket frame is one audio chunk, and Config.MaxChunk is
// the transport limit on its size. A larger frame is not a per-chunk
// error: the connection is closed with status 1009 (message too big) and
// the session ends. Clients must split longer audio across frames.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/haivivi/automuter/pkg/enroll"
	"github.com/haivivi/automuter/pkg/gallery"
	"github.com/haivivi/automuter/pkg/verify"
)

// DefaultMaxChunk bounds a single WebSocket audio frame.
const DefaultMaxChunk = 4 << 20

// Config wires the server to its services.
type Config struct {
	Sessions  *verify.Sessions
	Enroll    *enroll.Service
	Galleries *gallery.Cache

	// MaxChunk is the largest accepted audio frame. An oversized frame
	// closes the session. Default: DefaultMaxChunk.
	MaxChunk int64

	// AllowOrigins lists the origins allowed for CORS and WebSocket
	// upgrades. Empty allows any origin.
	AllowOrigins []string

	Logger *slog.Logger
}

// Server is the HTTP front end.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	echo     *echo.Echo
	upgrader websocket.Upgrader

	// base is cancelled by Shutdown; hijacked WebSocket connections are
	// not tracked by net/http.
	base   context.Context
	cancel context.CancelFunc
}

// New builds the server and registers its routes.
func New(cfg Config) *Server {
	if cfg.MaxChunk <= 0 {
		cfg.MaxChunk = DefaultMaxChunk
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	base, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:    cfg,
		logger: logger,
		echo:   echo.New(),
		base:   base,
		cancel: cancel,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  32 << 10,
		WriteBufferSize: 4 << 10,
		CheckOrigin:     s.originAllowed,
	}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			s.logger.LogAttrs(c.Request().Context(), level, "request", attrs...)
			return nil
		},
	}))
	cors := middleware.DefaultCORSConfig
	if len(cfg.AllowOrigins) > 0 {
		cors.AllowOrigins = cfg.AllowOrigins
	}
	e.Use(middleware.CORSWithConfig(cors))

	e.GET("/healthz", s.health)
	e.GET("/ws/:userId", s.stream)
	e.POST("/enroll", s.enroll)

	u := e.Group("/users/:userId")
	u.GET("/speakers", s.listSpeakers)
	u.GET("/speakers/:name", s.showSpeaker)
	u.DELETE("/speakers/:name", s.deleteSpeaker)
	u.DELETE("/speakers/:name/sources", s.deleteSource)
	u.POST("/init", s.initUser)
	u.POST("/wipe", s.wipeUser)
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.echo }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- s.echo.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown ends streaming sessions and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	return s.echo.Shutdown(ctx)
}

func (s *Server) originAllowed(r *http.Request) bool {
	if len(s.cfg.AllowOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.cfg.AllowOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}
