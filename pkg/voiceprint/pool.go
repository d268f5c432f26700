package voiceprint

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Pool is a Model backed by N independently constructed Models. Extract
// borrows one instance for the duration of the call, so each underlying
// Model only ever serves one caller at a time.
type Pool struct {
	free   chan Model
	models []Model
	dim    int

	closeOnce sync.Once
	closeErr  error
}

var _ Model = (*Pool)(nil)

// NewPool builds size Models with f. If any construction fails, the
// already built Models are closed and ErrModelUnavailable is returned.
func NewPool(size int, f Factory) (*Pool, error) {
	if size <= 0 {
		size = 1
	}
	p := &Pool{free: make(chan Model, size)}
	for i := 0; i < size; i++ {
		m, err := f.NewModel()
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("pool slot %d: %w", i, err)
		}
		if i == 0 {
			p.dim = m.Dimension()
		} else if m.Dimension() != p.dim {
			m.Close()
			p.Close()
			return nil, unavailable(fmt.Errorf("pool slot %d: dimension %d, want %d", i, m.Dimension(), p.dim))
		}
		p.models = append(p.models, m)
		p.free <- m
	}
	return p, nil
}

// Size returns the number of pooled Models.
func (p *Pool) Size() int { return len(p.models) }

// Extract implements [Model]. It blocks until an instance is free or ctx
// is done.
func (p *Pool) Extract(ctx context.Context, samples []float32) ([]float32, error) {
	var m Model
	select {
	case m = <-p.free:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { p.free <- m }()
	return m.Extract(ctx, samples)
}

// Dimension implements [Model].
func (p *Pool) Dimension() int { return p.dim }

// Close closes every pooled Model.
func (p *Pool) Close() error {
	p.closeOnce.Do(func() {
		var errs []error
		for _, m := range p.models {
			if err := m.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		p.closeErr = errors.Join(errs...)
	})
	return p.closeErr
}
