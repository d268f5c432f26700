// Package gallery caches per-user speaker galleries built from the speaker
// store.
//
// A user's gallery maps each speaker to the mean of all of its source
// embeddings. The mean is always recomputed from the full source set on
// load; mutations go through the Cache and evict the user's entry instead
// of patching it.
package gallery

import (
	"context"
	"log/slog"
	"sync"

	"github.com/haivivi/automuter/pkg/speakerstore"
	"github.com/haivivi/automuter/pkg/voiceprint"
)

// Cache holds loaded galleries keyed by user id. It is safe for concurrent
// use. Concurrent loads for the same user may both hit the store; they
// produce identical galleries.
type Cache struct {
	store  *speakerstore.Store
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*voiceprint.Gallery
	loading map[string]*flight
}

// flight tracks the loads of one user that are building from the store.
// gen advances on every invalidation so a load that raced with a
// mutation does not cache a stale gallery. The entry is dropped once the
// last load finishes.
type flight struct {
	loads int
	gen   uint64
}

// New creates a Cache backed by store.
func New(store *speakerstore.Store, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		store:   store,
		logger:  logger,
		entries: make(map[string]*voiceprint.Gallery),
		loading: make(map[string]*flight),
	}
}

// Store returns the backing speaker store for read-only queries.
func (c *Cache) Store() *speakerstore.Store { return c.store }

// Load returns the gallery of user, building it from the store on a miss.
// The returned gallery must not be modified.
func (c *Cache) Load(ctx context.Context, user string) (*voiceprint.Gallery, error) {
	c.mu.Lock()
	if g, ok := c.entries[user]; ok {
		c.mu.Unlock()
		return g, nil
	}
	f := c.loading[user]
	if f == nil {
		f = &flight{}
		c.loading[user] = f
	}
	f.loads++
	gen := f.gen
	c.mu.Unlock()

	g, err := c.build(ctx, user)

	c.mu.Lock()
	defer c.mu.Unlock()
	if f.loads--; f.loads == 0 {
		delete(c.loading, user)
	}
	if err != nil {
		return nil, err
	}
	// Skip caching if a mutation raced with the build.
	if f.gen == gen {
		c.entries[user] = g
	}
	return g, nil
}

func (c *Cache) build(ctx context.Context, user string) (*voiceprint.Gallery, error) {
	all, err := c.store.AllSources(ctx, user)
	if err != nil {
		return nil, err
	}
	g := voiceprint.NewGallery()
	for _, ss := range all {
		vecs := make([][]float32, 0, len(ss.Sources))
		for _, src := range ss.Sources {
			v, err := src.Vector()
			if err != nil {
				c.logger.Warn("skipping malformed embedding", "user", user, "speaker", ss.Speaker.Name, "source", src.ID, "error", err)
				continue
			}
			vecs = append(vecs, v)
		}
		mean, err := voiceprint.Mean(vecs)
		if err != nil {
			c.logger.Warn("skipping speaker", "user", user, "speaker", ss.Speaker.Name, "error", err)
			continue
		}
		g.Set(ss.Speaker.Name, mean)
	}
	c.logger.Debug("gallery loaded", "user", user, "speakers", g.Len())
	return g, nil
}

// Invalidate evicts the cached gallery of user.
func (c *Cache) Invalidate(user string) {
	c.mu.Lock()
	delete(c.entries, user)
	if f := c.loading[user]; f != nil {
		f.gen++
	}
	c.mu.Unlock()
}

// Cached reports whether a gallery for user is currently cached.
func (c *Cache) Cached(user string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[user]
	return ok
}

// AddSource persists a new source embedding for the speaker called name
// and evicts the user's gallery.
func (c *Cache) AddSource(ctx context.Context, user, name string, embedding []float32, url, timestamp string) (speakerstore.Source, error) {
	src, err := c.store.AddSource(ctx, user, name, speakerstore.Source{
		URL:       url,
		Timestamp: timestamp,
		Embedding: voiceprint.EncodeFloat32LE(embedding),
	})
	if err != nil {
		return speakerstore.Source{}, err
	}
	c.Invalidate(user)
	return src, nil
}

// RemoveSpeaker deletes a speaker with its sources and evicts the user's
// gallery.
func (c *Cache) RemoveSpeaker(ctx context.Context, user, name string) error {
	if err := c.store.RemoveSpeaker(ctx, user, name); err != nil {
		return err
	}
	c.Invalidate(user)
	return nil
}

// RemoveSource deletes matching sources and evicts the user's gallery.
func (c *Cache) RemoveSource(ctx context.Context, user, name, url, timestamp string) (int, error) {
	n, err := c.store.RemoveSource(ctx, user, name, url, timestamp)
	if err != nil {
		return 0, err
	}
	c.Invalidate(user)
	return n, nil
}

// Wipe deletes everything stored for user and evicts the gallery.
func (c *Cache) Wipe(ctx context.Context, user string) error {
	if err := c.store.Wipe(ctx, user); err != nil {
		return err
	}
	c.Invalidate(user)
	return nil
}
