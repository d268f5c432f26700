package voiceprint

import "iter"

// Gallery maps speaker names to their effective embeddings and preserves
// insertion order. It is not safe for concurrent mutation; share it
// read-only once built.
type Gallery struct {
	names []string
	vecs  map[string][]float32
}

// NewGallery returns an empty gallery.
func NewGallery() *Gallery {
	return &Gallery{vecs: make(map[string][]float32)}
}

// Set adds or replaces the embedding for name. Replacing keeps the
// original position.
func (g *Gallery) Set(name string, v []float32) {
	if _, ok := g.vecs[name]; !ok {
		g.names = append(g.names, name)
	}
	g.vecs[name] = v
}

// Get returns the embedding for name.
func (g *Gallery) Get(name string) ([]float32, bool) {
	v, ok := g.vecs[name]
	return v, ok
}

// Delete removes name.
func (g *Gallery) Delete(name string) {
	if _, ok := g.vecs[name]; !ok {
		return
	}
	delete(g.vecs, name)
	for i, n := range g.names {
		if n == name {
			g.names = append(g.names[:i], g.names[i+1:]...)
			break
		}
	}
}

// Len returns the number of speakers.
func (g *Gallery) Len() int {
	if g == nil {
		return 0
	}
	return len(g.names)
}

// Names returns speaker names in insertion order.
func (g *Gallery) Names() []string {
	out := make([]string, len(g.names))
	copy(out, g.names)
	return out
}

// All iterates speakers in insertion order.
func (g *Gallery) All() iter.Seq2[string, []float32] {
	return func(yield func(string, []float32) bool) {
		if g == nil {
			return
		}
		for _, n := range g.names {
			if !yield(n, g.vecs[n]) {
				return
			}
		}
	}
}
