package voiceprint

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// RemoteConfig configures a [Remote] model.
type RemoteConfig struct {
	// BaseURL of the OpenAI-compatible inference gateway,
	// e.g. "http://localhost:9000/v1".
	BaseURL string

	// Token is sent as a bearer token (HF_AUTH_TOKEN).
	Token string

	// Model is the speaker embedding model identifier.
	Model string

	// Dimension is the expected embedding length. When zero it is taken
	// from the health endpoint.
	Dimension int

	// Timeout bounds each request. Default: 30s.
	Timeout time.Duration

	// MaxRetries for transient HTTP failures. Zero disables retries.
	MaxRetries int

	HTTPClient *http.Client
}

// Remote is a Model served by an HTTP inference gateway. It uses the
// openai-go client for transport, auth and retries:
//
//	GET  {base}/health            → {"status", "model", "dimension"}
//	POST {base}/audio/embeddings  ← {"model", "sample_rate", "samples"}
//	                              → {"embedding": [...]} | {"frames": [[...], ...]}
//
// Time-indexed "frames" output is averaged into one vector. Remote is safe
// for concurrent use.
type Remote struct {
	client  *openai.Client
	model   string
	dim     int
	timeout time.Duration
}

var _ Model = (*Remote)(nil)

type remoteHealth struct {
	Status    string `json:"status"`
	Model     string `json:"model"`
	Dimension int    `json:"dimension"`
}

type remoteRequest struct {
	Model      string    `json:"model,omitempty"`
	SampleRate int       `json:"sample_rate"`
	Samples    []float32 `json:"samples"`
}

type remoteResponse struct {
	Embedding []float32   `json:"embedding"`
	Frames    [][]float32 `json:"frames"`
}

// NewRemote creates a Remote and pings the gateway. Any failure is
// reported as [ErrModelUnavailable].
func NewRemote(ctx context.Context, cfg RemoteConfig) (*Remote, error) {
	if cfg.BaseURL == "" {
		return nil, unavailable(errors.New("embedding base_url is not configured"))
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	base := cfg.BaseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	client := openai.NewClient(
		option.WithBaseURL(base),
		option.WithAPIKey(cfg.Token),
		option.WithHTTPClient(cfg.HTTPClient),
		option.WithMaxRetries(cfg.MaxRetries),
	)
	r := &Remote{
		client:  &client,
		model:   cfg.Model,
		dim:     cfg.Dimension,
		timeout: cfg.Timeout,
	}
	if err := r.Ping(ctx); err != nil {
		return nil, unavailable(err)
	}
	if r.dim <= 0 {
		return nil, unavailable(errors.New("embedding dimension unknown"))
	}
	return r, nil
}

// RemoteFactory returns a Factory that builds Remote models with cfg.
func RemoteFactory(ctx context.Context, cfg RemoteConfig) Factory {
	return func() (Model, error) {
		return NewRemote(ctx, cfg)
	}
}

// Ping checks the gateway health endpoint and learns the dimension when
// it was not configured.
func (r *Remote) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var h remoteHealth
	if err := r.client.Get(ctx, "health", nil, &h); err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	if h.Status != "" && h.Status != "ok" {
		return fmt.Errorf("health check: status %q", h.Status)
	}
	if r.dim <= 0 {
		r.dim = h.Dimension
	} else if h.Dimension > 0 && h.Dimension != r.dim {
		return fmt.Errorf("health check: dimension %d, configured %d", h.Dimension, r.dim)
	}
	return nil
}

// Extract implements [Model].
func (r *Remote) Extract(ctx context.Context, samples []float32) ([]float32, error) {
	if len(samples) == 0 {
		return nil, ErrEmpty
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req := remoteRequest{Model: r.model, SampleRate: SampleRate, Samples: samples}
	var resp remoteResponse
	if err := r.client.Post(ctx, "audio/embeddings", req, &resp); err != nil {
		return nil, fmt.Errorf("audio/embeddings: %w", err)
	}

	switch {
	case len(resp.Embedding) > 0:
		return resp.Embedding, nil
	case len(resp.Frames) > 0:
		return Reduce(resp.Frames)
	default:
		return nil, errors.New("audio/embeddings: empty response")
	}
}

// Dimension implements [Model].
func (r *Remote) Dimension() int { return r.dim }

// Close implements [Model].
func (r *Remote) Close() error { return nil }
