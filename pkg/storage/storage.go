// Package storage defines the FileStore interface for reading, writing and
// listing files. It abstracts the underlying storage backend so that callers
// can swap between local disk and S3-compatible object stores without
// changing application code.
//
// Within automuter it holds the clips accepted by the mining pipeline (one
// directory per speaker and round) and the raw chunks dumped when audio
// decoding fails.
package storage

import (
	"context"
	"io"
)

// FileStore is a minimal interface for file-oriented storage.
//
// Paths are forward-slash separated and relative to the store root.
// Implementations must be safe for concurrent use.
type FileStore interface {
	// Read opens the named file for reading.
	// The caller must close the returned ReadCloser when done.
	// If the file does not exist, an error wrapping os.ErrNotExist is returned.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write opens the named file for writing.
	// If the file already exists it is truncated.
	// Parent directories are created automatically.
	// The caller must close the returned WriteCloser to flush data.
	Write(ctx context.Context, path string) (io.WriteCloser, error)

	// Delete removes the named file.
	// If the file does not exist, Delete returns nil (idempotent).
	Delete(ctx context.Context, path string) error

	// Exists reports whether the named file exists.
	Exists(ctx context.Context, path string) (bool, error)

	// List returns the paths of all files below dir, recursively, in
	// lexicographic order. A missing dir yields an empty list.
	List(ctx context.Context, dir string) ([]string, error)
}

// ReadFile reads the whole named file.
func ReadFile(ctx context.Context, fs FileStore, path string) ([]byte, error) {
	r, err := fs.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// WriteFunc opens path for writing, calls fn, and closes the writer. The
// first error wins; a failed Close is reported even when fn succeeded.
func WriteFunc(ctx context.Context, fs FileStore, path string, fn func(io.Writer) error) error {
	w, err := fs.Write(ctx, path)
	if err != nil {
		return err
	}
	if err := fn(w); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// WriteFile writes data to the named file.
func WriteFile(ctx context.Context, fs FileStore, path string, data []byte) error {
	return WriteFunc(ctx, fs, path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}
