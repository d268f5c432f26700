package kv

import (
	"bytes"
	"context"
	"iter"
	"maps"
	"slices"
	"strings"
	"sync"
)

// Memory is a map-backed Store. It is safe for concurrent use and backs
// the speaker store in tests and in the server tests' fixtures.
type Memory struct {
	opts *Options

	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory returns an empty Memory store. opts may be nil.
func NewMemory(opts *Options) *Memory {
	return &Memory{opts: opts, data: make(map[string][]byte)}
}

func (m *Memory) key(k Key) string { return string(m.opts.encode(k)) }

// scope returns the encoded form of prefix followed by the separator, so
// that "u:alice" never matches "u:alicex". An empty prefix matches all.
func (m *Memory) scope(prefix Key) string {
	if len(prefix) == 0 {
		return ""
	}
	return m.key(prefix) + string(m.opts.sep())
}

func (m *Memory) Get(_ context.Context, key Key) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[m.key(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(v), nil
}

func (m *Memory) Set(ctx context.Context, key Key, value []byte) error {
	return m.BatchSet(ctx, []Entry{{Key: key, Value: value}})
}

func (m *Memory) Delete(ctx context.Context, key Key) error {
	return m.BatchDelete(ctx, []Key{key})
}

// List snapshots the matching entries before yielding, so callers may
// modify the store while iterating.
func (m *Memory) List(_ context.Context, prefix Key) iter.Seq2[Entry, error] {
	scope := m.scope(prefix)
	m.mu.RLock()
	snap := make(map[string][]byte)
	for k, v := range m.data {
		if strings.HasPrefix(k, scope) {
			snap[k] = bytes.Clone(v)
		}
	}
	m.mu.RUnlock()

	return func(yield func(Entry, error) bool) {
		for _, k := range slices.Sorted(maps.Keys(snap)) {
			if !yield(Entry{Key: m.opts.decode([]byte(k)), Value: snap[k]}, nil) {
				return
			}
		}
	}
}

func (m *Memory) BatchSet(_ context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.data[m.key(e.Key)] = bytes.Clone(e.Value)
	}
	return nil
}

func (m *Memory) BatchDelete(_ context.Context, keys []Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, m.key(k))
	}
	return nil
}

func (m *Memory) DeletePrefix(_ context.Context, prefix Key) error {
	if len(prefix) == 0 {
		return ErrEmptyPrefix
	}
	scope := m.scope(prefix)
	m.mu.Lock()
	defer m.mu.Unlock()
	maps.DeleteFunc(m.data, func(k string, _ []byte) bool {
		return strings.HasPrefix(k, scope)
	})
	return nil
}

func (m *Memory) Increment(_ context.Context, key Key) (uint64, error) {
	k := m.key(key)
	m.mu.Lock()
	defer m.mu.Unlock()
	var cur uint64
	if v, ok := m.data[k]; ok {
		var err error
		if cur, err = decodeCounter(v); err != nil {
			return 0, err
		}
	}
	cur++
	m.data[k] = encodeCounter(cur)
	return cur, nil
}

func (m *Memory) Close() error { return nil }
