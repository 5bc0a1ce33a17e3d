// Package blobstore abstracts where published kernels live: a local
// directory, process memory, or an object store. A store holds immutable
// kernel blobs plus a mutable CURRENT pointer naming the blob readers should
// serve.
package blobstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies
// `errors.Is(err, ErrNotFound)`. The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// CurrentName is the pointer blob naming the kernel readers should serve.
var CurrentName = "CURRENT"

// BlobStore is an abstraction for storing and retrieving kernel blobs.
type BlobStore interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (Blob, error)

	// Put writes a blob. Implementations must make the write atomic: a
	// concurrent Open sees either the old blob or the new one, never a
	// partial write.
	Put(ctx context.Context, name string, data []byte) error

	// Delete removes a blob.
	Delete(ctx context.Context, name string) error

	// List returns all blob names with the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to a stored kernel.
type Blob interface {
	io.ReaderAt
	io.Closer
	// Size returns the size of the blob in bytes.
	Size() int64
}

// Mappable is an optional interface for Blobs that expose their backing
// bytes without copying. The slice is valid until the Blob is closed.
type Mappable interface {
	Bytes() ([]byte, error)
}

// ReadAll reads the full contents of a named blob.
func ReadAll(ctx context.Context, store BlobStore, name string) ([]byte, error) {
	b, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	if m, ok := b.(Mappable); ok {
		raw, err := m.Bytes()
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(raw))
		copy(out, raw)
		return out, nil
	}

	out := make([]byte, b.Size())
	if _, err := b.ReadAt(out, 0); err != nil && err != io.EOF {
		return nil, err
	}
	return out, nil
}

// Publish writes a kernel blob and then repoints CURRENT at it. The blob
// write lands first, so a reader that races the pointer update still resolves
// a complete kernel.
func Publish(ctx context.Context, store BlobStore, name string, data []byte) error {
	if strings.TrimSpace(name) == "" || name == CurrentName {
		return fmt.Errorf("blobstore: invalid kernel name %q", name)
	}
	if err := store.Put(ctx, name, data); err != nil {
		return fmt.Errorf("blobstore: put %s: %w", name, err)
	}
	if err := store.Put(ctx, CurrentName, []byte(name)); err != nil {
		return fmt.Errorf("blobstore: update %s: %w", CurrentName, err)
	}
	return nil
}

// Current resolves the CURRENT pointer and returns the named kernel blob's
// name and contents.
func Current(ctx context.Context, store BlobStore) (string, []byte, error) {
	ptr, err := ReadAll(ctx, store, CurrentName)
	if err != nil {
		return "", nil, fmt.Errorf("blobstore: resolve %s: %w", CurrentName, err)
	}

	name := strings.TrimSpace(string(ptr))
	if name == "" {
		return "", nil, fmt.Errorf("blobstore: empty %s pointer", CurrentName)
	}

	data, err := ReadAll(ctx, store, name)
	if err != nil {
		return "", nil, fmt.Errorf("blobstore: read %s: %w", name, err)
	}
	return name, data, nil
}
