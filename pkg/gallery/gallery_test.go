package gallery

import (
	"context"
	"fmt"
	"iter"
	"math"
	"sync/atomic"
	"testing"

	"github.com/haivivi/automuter/pkg/kv"
	"github.com/haivivi/automuter/pkg/speakerstore"
)

func newCache(t *testing.T) *Cache {
	t.Helper()
	return New(speakerstore.New(kv.NewMemory(nil)), nil)
}

func TestLoadMeans(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)
	c.AddSource(ctx, "u", "alice", []float32{1, 0, 2}, "a1", "")
	c.AddSource(ctx, "u", "bob", []float32{0, 1, 0}, "b1", "")

	g, err := c.Load(ctx, "u")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if names := g.Names(); len(names) != 2 || names[0] != "alice" || names[1] != "bob" {
		t.Fatalf("Names = %v", names)
	}

	// A second source changes the effective embedding to the mean.
	c.AddSource(ctx, "u", "alice", []float32{3, 2, 0}, "a2", "1-2")
	g, _ = c.Load(ctx, "u")
	v, _ := g.Get("alice")
	want := []float32{2, 1, 1}
	for i := range want {
		if math.Abs(float64(v[i]-want[i])) > 1e-6 {
			t.Fatalf("alice = %v, want %v", v, want)
		}
	}
}

func TestLoadIdempotent(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)
	c.AddSource(ctx, "u", "alice", []float32{0.1, 0.7}, "a", "")
	c.AddSource(ctx, "u", "alice", []float32{0.3, 0.2}, "b", "")
	c.AddSource(ctx, "u", "alice", []float32{0.9, 0.4}, "c", "")

	g1, _ := c.Load(ctx, "u")
	c.Invalidate("u")
	g2, _ := c.Load(ctx, "u")
	v1, _ := g1.Get("alice")
	v2, _ := g2.Get("alice")
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatalf("reload changed embedding: %v vs %v", v1, v2)
		}
	}
}

func TestMutationsInvalidate(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)
	c.AddSource(ctx, "u", "alice", []float32{1, 0}, "a", "")
	c.AddSource(ctx, "u", "bob", []float32{0, 1}, "b", "")

	steps := []struct {
		name string
		op   func() error
		want int
	}{
		{"remove source", func() error { _, err := c.RemoveSource(ctx, "u", "bob", "b", ""); return err }, 1},
		{"remove speaker", func() error { return c.RemoveSpeaker(ctx, "u", "alice") }, 0},
		{"add", func() error { _, err := c.AddSource(ctx, "u", "carol", []float32{1, 1}, "c", ""); return err }, 1},
		{"wipe", func() error { return c.Wipe(ctx, "u") }, 0},
	}
	for _, st := range steps {
		if _, err := c.Load(ctx, "u"); err != nil {
			t.Fatalf("%s: Load: %v", st.name, err)
		}
		if !c.Cached("u") {
			t.Fatalf("%s: not cached after Load", st.name)
		}
		if err := st.op(); err != nil {
			t.Fatalf("%s: %v", st.name, err)
		}
		if c.Cached("u") {
			t.Fatalf("%s: cache not invalidated", st.name)
		}
		g, _ := c.Load(ctx, "u")
		if g.Len() != st.want {
			t.Errorf("%s: Len = %d, want %d", st.name, g.Len(), st.want)
		}
	}
}

func TestLoadCachesByUser(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)
	c.AddSource(ctx, "u1", "alice", []float32{1}, "a", "")

	g1, _ := c.Load(ctx, "u1")
	g2, _ := c.Load(ctx, "u1")
	if g1 != g2 {
		t.Error("second Load did not hit the cache")
	}
	other, _ := c.Load(ctx, "u2")
	if other.Len() != 0 {
		t.Errorf("u2 gallery = %v", other.Names())
	}
}

// gatedStore parks the first List call after arm until release is closed.
type gatedStore struct {
	kv.Store
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) List(ctx context.Context, prefix kv.Key) iter.Seq2[kv.Entry, error] {
	if g.armed.CompareAndSwap(true, false) {
		g.entered <- struct{}{}
		<-g.release
	}
	return g.Store.List(ctx, prefix)
}

func (c *Cache) inFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.loading)
}

func TestInvalidateDuringLoad(t *testing.T) {
	ctx := context.Background()
	gs := &gatedStore{
		Store:   kv.NewMemory(nil),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	c := New(speakerstore.New(gs), nil)
	c.AddSource(ctx, "u", "alice", []float32{1, 0}, "a", "")

	gs.armed.Store(true)
	done := make(chan error)
	go func() {
		_, err := c.Load(ctx, "u")
		done <- err
	}()
	<-gs.entered
	if n := c.inFlight(); n != 1 {
		t.Errorf("in flight = %d, want 1", n)
	}
	c.Invalidate("u")
	close(gs.release)
	if err := <-done; err != nil {
		t.Fatalf("Load: %v", err)
	}

	if c.Cached("u") {
		t.Error("gallery built before the invalidation was cached")
	}
	if n := c.inFlight(); n != 0 {
		t.Errorf("in flight = %d after load, want 0", n)
	}
	if _, err := c.Load(ctx, "u"); err != nil || !c.Cached("u") {
		t.Errorf("reload: err = %v, cached = %v", err, c.Cached("u"))
	}
}

func TestLoadBookkeepingIsBounded(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)
	for i := range 50 {
		user := fmt.Sprintf("u%d", i)
		c.AddSource(ctx, user, "alice", []float32{1, 0}, "a", "")
		if _, err := c.Load(ctx, user); err != nil {
			t.Fatal(err)
		}
		c.Invalidate(user)
		c.Invalidate(user + "-never-loaded")
	}
	if n := c.inFlight(); n != 0 {
		t.Errorf("in flight = %d, want 0", n)
	}
	c.mu.Lock()
	n := len(c.entries)
	c.mu.Unlock()
	if n != 0 {
		t.Errorf("entries = %d after invalidating every user, want 0", n)
	}
}
