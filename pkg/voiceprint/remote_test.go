package voiceprint

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newGateway(t *testing.T, dim int, frames bool) (*httptest.Server, *[]string) {
	t.Helper()
	var auth []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = append(auth, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/health":
			json.NewEncoder(w).Encode(map[string]any{"status": "ok", "model": "ecapa", "dimension": dim})
		case "/v1/audio/embeddings":
			var req remoteRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if req.SampleRate != SampleRate || len(req.Samples) == 0 {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			v := make([]float32, dim)
			v[0] = req.Samples[0]
			if frames {
				w2 := make([]float32, dim)
				w2[0] = req.Samples[0] * 3
				json.NewEncoder(w).Encode(map[string]any{"frames": [][]float32{v, w2}})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"embedding": v})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &auth
}

func TestRemote_Embedding(t *testing.T) {
	srv, auth := newGateway(t, 4, false)
	r, err := NewRemote(context.Background(), RemoteConfig{BaseURL: srv.URL + "/v1", Token: "hf_x", Model: "ecapa"})
	if err != nil {
		t.Fatalf("NewRemote: %v", err)
	}
	if r.Dimension() != 4 {
		t.Fatalf("Dimension = %d, want 4 from health", r.Dimension())
	}
	v, err := r.Extract(context.Background(), []float32{0.5, 0.1})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(v) != 4 || v[0] != 0.5 {
		t.Errorf("Extract = %v", v)
	}
	for _, a := range *auth {
		if a != "Bearer hf_x" {
			t.Errorf("Authorization = %q", a)
		}
	}
}

func TestRemote_FramesReduced(t *testing.T) {
	srv, _ := newGateway(t, 3, true)
	r, err := NewRemote(context.Background(), RemoteConfig{BaseURL: srv.URL + "/v1/"})
	if err != nil {
		t.Fatalf("NewRemote: %v", err)
	}
	v, err := r.Extract(context.Background(), []float32{0.25})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(v) != 3 || v[0] != 0.5 {
		t.Errorf("reduced = %v, want mean 0.5", v)
	}
}

func TestRemote_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewRemote(context.Background(), RemoteConfig{BaseURL: srv.URL})
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("err = %v, want ErrModelUnavailable", err)
	}
	if _, err := NewRemote(context.Background(), RemoteConfig{}); !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("no base url: err = %v", err)
	}
}

func TestRemote_DimensionConflict(t *testing.T) {
	srv, _ := newGateway(t, 4, false)
	_, err := NewRemote(context.Background(), RemoteConfig{BaseURL: srv.URL + "/v1", Dimension: 192})
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("err = %v, want ErrModelUnavailable", err)
	}
}
