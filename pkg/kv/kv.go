// Package kv provides a key-value store interface with hierarchical path-based
// keys. Keys are represented as string slices (e.g., ["u", "alice", "spk", "1"])
// and encoded internally using a configurable separator (default ':').
//
// Besides point reads and writes the store offers prefix deletion and atomic
// counters, which the speaker store uses to drop a whole user keyspace and to
// hand out insertion-ordered IDs.
//
// The package includes a BadgerDB-backed implementation for production use and
// an in-memory implementation for testing.
package kv

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
	"strings"
)

// Sentinel errors.
var (
	// ErrNotFound is returned when a key does not exist in the store.
	ErrNotFound = errors.New("kv: not found")

	// ErrEmptyPrefix is returned by DeletePrefix for an empty prefix.
	ErrEmptyPrefix = errors.New("kv: empty prefix")

	// ErrCorruptCounter is returned by Increment when the stored value is
	// not an 8-byte counter.
	ErrCorruptCounter = errors.New("kv: corrupt counter")
)

// PrefixDropper is implemented by stores with a bulk prefix removal that
// is faster than DeletePrefix but may stall other writers.
type PrefixDropper interface {
	DropPrefix(ctx context.Context, prefix Key) error
}

// DropPrefix removes every key under prefix, using s's bulk removal when
// it has one and DeletePrefix otherwise.
func DropPrefix(ctx context.Context, s Store, prefix Key) error {
	if d, ok := s.(PrefixDropper); ok {
		return d.DropPrefix(ctx, prefix)
	}
	return s.DeletePrefix(ctx, prefix)
}

// Key is a hierarchical path represented as a slice of string segments.
// For example, Key{"u", "alice", "spk", "0000000001"} encodes to
// "u:alice:spk:0000000001" using the default separator ':'.
//
// Segments must not contain the configured separator character; encoding
// such a key panics.
type Key []string

// String returns the key as a human-readable string using ':' as separator.
// This is for display/debug only; use Options.encode for storage encoding.
func (k Key) String() string {
	return strings.Join(k, ":")
}

// Entry is a key-value pair returned by List and used by BatchSet.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is the interface for a key-value store with path-based keys.
type Store interface {
	// Get retrieves the value for a key. Returns ErrNotFound if not present.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set stores a key-value pair. Overwrites any existing value.
	Set(ctx context.Context, key Key, value []byte) error

	// Delete removes a key. No error if the key does not exist.
	Delete(ctx context.Context, key Key) error

	// List iterates over all entries whose key starts with the given prefix.
	// The iteration order is lexicographic by encoded key.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	// BatchSet atomically stores multiple key-value pairs.
	BatchSet(ctx context.Context, entries []Entry) error

	// BatchDelete atomically removes multiple keys.
	BatchDelete(ctx context.Context, keys []Key) error

	// DeletePrefix removes every key under prefix (segment-aligned, so
	// "a:b" does not remove "a:bc"). An empty prefix is rejected.
	DeletePrefix(ctx context.Context, prefix Key) error

	// Increment atomically adds one to the big-endian uint64 counter stored
	// at key and returns the new value. A missing key counts from zero.
	Increment(ctx context.Context, key Key) (uint64, error)

	// Close releases any resources held by the store.
	Close() error
}

// DefaultSeparator is the default separator byte used to encode key segments.
const DefaultSeparator byte = ':'

// Options configures store behavior.
type Options struct {
	// Separator is the byte used to join key segments when encoding to storage.
	// Default is ':' if zero.
	Separator byte
}

// sep returns the effective separator.
func (o *Options) sep() byte {
	if o != nil && o.Separator != 0 {
		return o.Separator
	}
	return DefaultSeparator
}

// encode converts a Key to its byte representation using the separator.
func (o *Options) encode(k Key) []byte {
	s := o.sep()
	// Calculate total length to avoid allocations.
	n := 0
	for i, seg := range k {
		if strings.IndexByte(seg, s) >= 0 {
			panic(fmt.Sprintf("kv: key segment %q contains separator %q", seg, s))
		}
		if i > 0 {
			n++ // separator
		}
		n += len(seg)
	}
	buf := make([]byte, n)
	pos := 0
	for i, seg := range k {
		if i > 0 {
			buf[pos] = s
			pos++
		}
		pos += copy(buf[pos:], seg)
	}
	return buf
}

// decode converts a byte representation back to a Key using the separator.
func (o *Options) decode(b []byte) Key {
	s := o.sep()
	parts := splitBytes(b, s)
	k := make(Key, len(parts))
	for i, p := range parts {
		k[i] = string(p)
	}
	return k
}

// splitBytes splits b by separator byte, similar to bytes.Split but returns
// [][]byte without importing bytes package for this single use.
func splitBytes(b []byte, sep byte) [][]byte {
	n := 1
	for _, c := range b {
		if c == sep {
			n++
		}
	}
	parts := make([][]byte, 0, n)
	start := 0
	for i, c := range b {
		if c == sep {
			parts = append(parts, b[start:i])
			start = i + 1
		}
	}
	parts = append(parts, b[start:])
	return parts
}

// Append returns a new key with segs appended to k. k is not modified.
func (k Key) Append(segs ...string) Key {
	out := make(Key, 0, len(k)+len(segs))
	out = append(out, k...)
	return append(out, segs...)
}

// encodeCounter and decodeCounter define the on-disk counter layout.
func encodeCounter(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

func decodeCounter(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, ErrCorruptCounter
	}
	return binary.BigEndian.Uint64(b), nil
}
