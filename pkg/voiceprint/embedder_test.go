package voiceprint_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/haivivi/automuter/pkg/audio/normalize"
	"github.com/haivivi/automuter/pkg/audio/wav"
	"github.com/haivivi/automuter/pkg/voiceprint"
	"github.com/haivivi/automuter/pkg/voiceprint/vptest"
)

func newModel() *vptest.Model {
	return &vptest.Model{Dim: 2, Vectors: map[int][]float32{
		1: {1, 0},
		2: {0, 1},
		3: {1, 1},
		9: {1}, // wrong dimension
	}}
}

func pcm(k, n int) normalize.PCM {
	return normalize.PCM{Samples: vptest.Samples(k, n), SampleRate: 16000, Channels: 1}
}

type recordingModel struct {
	*vptest.Model
	lens []int
}

func (m *recordingModel) Extract(ctx context.Context, s []float32) ([]float32, error) {
	m.lens = append(m.lens, len(s))
	return m.Model.Extract(ctx, s)
}

func TestEmbedder_PadsShortInput(t *testing.T) {
	m := &recordingModel{Model: newModel()}
	e := voiceprint.NewEmbedder(m, nil)

	if _, err := e.Embed(context.Background(), pcm(1, 4000)); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if _, err := e.Embed(context.Background(), pcm(1, 32000)); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if m.lens[0] != 24000 || m.lens[1] != 32000 {
		t.Errorf("model saw %v samples, want [24000 32000]", m.lens)
	}

	e = voiceprint.NewEmbedder(m, nil, voiceprint.WithMinDuration(500*time.Millisecond))
	e.Embed(context.Background(), pcm(1, 100))
	if got := m.lens[2]; got != 8000 {
		t.Errorf("custom min duration: %d samples, want 8000", got)
	}
}

func TestEmbedder_ComputeErrors(t *testing.T) {
	e := voiceprint.NewEmbedder(newModel(), nil)
	ctx := context.Background()

	for name, in := range map[string]normalize.PCM{
		"unknown key": pcm(7, 16000),
		"bad dim":     pcm(9, 16000),
		"empty":       {SampleRate: 16000},
		"wrong rate":  {Samples: vptest.Samples(1, 100), SampleRate: 8000},
	} {
		_, err := e.Embed(ctx, in)
		if !errors.Is(err, voiceprint.ErrEmbeddingCompute) {
			t.Errorf("%s: err = %v, want ErrEmbeddingCompute", name, err)
		}
	}
}

func TestEmbedder_EmbedMany(t *testing.T) {
	e := voiceprint.NewEmbedder(newModel(), nil)
	mean, n, err := e.EmbedMany(context.Background(), []normalize.PCM{pcm(1, 100), pcm(7, 100), pcm(2, 100)})
	if err != nil {
		t.Fatalf("EmbedMany: %v", err)
	}
	if n != 2 || mean[0] != 0.5 || mean[1] != 0.5 {
		t.Errorf("EmbedMany = %v (%d)", mean, n)
	}

	if _, _, err := e.EmbedMany(context.Background(), []normalize.PCM{pcm(7, 10)}); err == nil {
		t.Error("expected error when nothing embeds")
	}
}

func writeWAV(t *testing.T, dir, name string, k int) string {
	t.Helper()
	var buf bytes.Buffer
	if err := wav.Encode(&buf, vptest.Samples(k, 8000), 16000); err != nil {
		t.Fatal(err)
	}
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestEmbedder_EmbedFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeWAV(t, dir, "a.wav", 1)
	b := writeWAV(t, dir, "b.wav", 3)
	bad := filepath.Join(dir, "bad.wav")
	os.WriteFile(bad, []byte("junk"), 0o644)

	e := voiceprint.NewEmbedder(newModel(), nil)
	v, err := e.EmbedFile(context.Background(), a)
	if err != nil || v[0] != 1 || v[1] != 0 {
		t.Fatalf("EmbedFile = %v, %v", v, err)
	}
	if _, err := e.EmbedFile(context.Background(), bad); !errors.Is(err, normalize.ErrDecode) {
		t.Errorf("bad file: err = %v, want ErrDecode", err)
	}

	mean, n, err := e.EmbedFiles(context.Background(), []string{a, bad, b})
	if err != nil {
		t.Fatalf("EmbedFiles: %v", err)
	}
	if n != 2 || mean[0] != 1 || mean[1] != 0.5 {
		t.Errorf("EmbedFiles = %v (%d)", mean, n)
	}
}

func TestPool(t *testing.T) {
	var built []*vptest.Model
	factory := voiceprint.Factory(func() (voiceprint.Model, error) {
		m := newModel()
		built = append(built, m)
		return m, nil
	})
	p, err := voiceprint.NewPool(3, factory)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	if p.Size() != 3 || p.Dimension() != 2 {
		t.Fatalf("Size/Dimension = %d/%d", p.Size(), p.Dimension())
	}

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Extract(context.Background(), vptest.Samples(1, 10)); err != nil {
				t.Errorf("Extract: %v", err)
			}
		}()
	}
	wg.Wait()

	total := 0
	for _, m := range built {
		if m.MaxConcurrent() > 1 {
			t.Errorf("model shared by %d callers", m.MaxConcurrent())
		}
		total += m.Calls()
	}
	if total != 30 {
		t.Errorf("calls = %d, want 30", total)
	}

	p.Close()
	for _, m := range built {
		if !m.Closed() {
			t.Error("model not closed")
		}
	}
}

func TestPool_FactoryFailure(t *testing.T) {
	var built []*vptest.Model
	factory := voiceprint.Factory(func() (voiceprint.Model, error) {
		if len(built) == 2 {
			return nil, errors.New("weights missing")
		}
		m := newModel()
		built = append(built, m)
		return m, nil
	})
	_, err := voiceprint.NewPool(4, factory)
	if !errors.Is(err, voiceprint.ErrModelUnavailable) {
		t.Fatalf("err = %v, want ErrModelUnavailable", err)
	}
	for _, m := range built {
		if !m.Closed() {
			t.Error("partially built pool leaked a model")
		}
	}
}

func TestPool_ContextCancel(t *testing.T) {
	block := make(chan struct{})
	p, err := voiceprint.NewPool(1, func() (voiceprint.Model, error) {
		return blockingModel{block}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	go p.Extract(context.Background(), []float32{1})
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.Extract(ctx, []float32{1}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	close(block)
}

type blockingModel struct{ ch chan struct{} }

func (b blockingModel) Extract(context.Context, []float32) ([]float32, error) {
	<-b.ch
	return []float32{1}, nil
}
func (blockingModel) Dimension() int { return 1 }
func (blockingModel) Close() error   { return nil }
