package persistence

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/zenithlab/zenith/body"
	"github.com/zenithlab/zenith/kernel"
)

// ErrStoreClosed is returned when operations are attempted on a closed store.
var ErrStoreClosed = errors.New("kernel store is closed")

// StoreOptions configures a Store.
type StoreOptions struct {
	// FileMode is the permission mode for written kernel files.
	FileMode os.FileMode

	// Logger receives structured diagnostics. Defaults to a discard logger.
	Logger *slog.Logger
}

// DefaultStoreOptions returns the options used when none are overridden.
func DefaultStoreOptions() StoreOptions {
	return StoreOptions{
		FileMode: 0o644,
		Logger:   slog.New(slog.DiscardHandler),
	}
}

// Store reads and writes kernel files for a fixed catalog. Writes are atomic:
// the payload is written to a temp file, fsynced, then renamed over the
// destination, so readers never observe a partially written kernel.
type Store struct {
	catalog body.Catalog
	hash    uint64
	opts    StoreOptions

	mu     sync.RWMutex
	closed bool
}

// NewStore creates a store bound to the given catalog. All kernels it writes
// carry the catalog's hash, and all kernels it reads are validated against it.
func NewStore(catalog body.Catalog, optFns ...func(*StoreOptions)) (*Store, error) {
	if err := catalog.Validate(); err != nil {
		return nil, fmt.Errorf("persistence: %w", err)
	}

	opts := DefaultStoreOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	return &Store{
		catalog: catalog,
		hash:    catalog.Hash(),
		opts:    opts,
	}, nil
}

// Write persists the kernel to path atomically.
func (s *Store) Write(path string, k *kernel.Kernel) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}

	if k.Header.CatalogHash != s.hash {
		return fmt.Errorf("persistence: %w: kernel 0x%016x, store 0x%016x",
			ErrCatalogMismatch, k.Header.CatalogHash, s.hash)
	}
	if len(k.Records) != len(s.catalog) {
		return fmt.Errorf("persistence: %w: %d records for a %d-body catalog",
			ErrFormatMismatch, len(k.Records), len(s.catalog))
	}

	data, err := Marshal(k)
	if err != nil {
		return fmt.Errorf("persistence: marshal: %w", err)
	}

	if err := writeAtomic(path, data, s.opts.FileMode); err != nil {
		return fmt.Errorf("persistence: write %s: %w", path, err)
	}

	s.opts.Logger.Info("kernel written",
		slog.String("path", path),
		slog.Int("bytes", len(data)),
		slog.String("tier", k.Header.Tier.String()),
		slog.Float64("base_epoch", k.Header.BaseEpoch))

	return nil
}

// Read loads and validates a kernel from path. The file length must match the
// header-implied length exactly, the record count must equal the catalog size,
// and the persisted catalog hash must equal the store's.
func (s *Store) Read(path string) (*kernel.Kernel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("persistence: read %s: %w", path, err)
	}

	k, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("persistence: %s: %w", path, err)
	}

	if err := s.check(k); err != nil {
		return nil, fmt.Errorf("persistence: %s: %w", path, err)
	}

	return k, nil
}

func (s *Store) check(k *kernel.Kernel) error {
	if len(k.Records) != len(s.catalog) {
		return fmt.Errorf("%w: %d records for a %d-body catalog",
			ErrFormatMismatch, len(k.Records), len(s.catalog))
	}
	if k.Header.CatalogHash != s.hash {
		return fmt.Errorf("%w: kernel 0x%016x, store 0x%016x",
			ErrCatalogMismatch, k.Header.CatalogHash, s.hash)
	}
	return nil
}

// Catalog returns the catalog the store validates against.
func (s *Store) Catalog() body.Catalog { return s.catalog }

// Close marks the store as closed. Subsequent reads and writes fail with
// ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// writeAtomic writes data to a temp file in the destination directory, syncs
// it, renames it over path, then syncs the directory so the rename survives a
// crash.
func writeAtomic(path string, data []byte, mode os.FileMode) error {
	tmpPath := path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}

	return syncDir(filepath.Dir(path))
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
