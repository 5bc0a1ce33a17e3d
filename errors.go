package zenith

import (
	"errors"
	"fmt"

	"github.com/zenithlab/zenith/blobstore"
	"github.com/zenithlab/zenith/persistence"
	"github.com/zenithlab/zenith/search"
	"github.com/zenithlab/zenith/series"
)

var (
	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("engine is closed")

	// ErrNotFound is returned when a published kernel is not found.
	ErrNotFound = errors.New("not found")

	// ErrNoKernel is returned when no loaded kernel and no oracle can
	// serve the requested instant.
	ErrNoKernel = errors.New("no kernel covers the requested instant")
)

// ErrIncompatibleKernel indicates a kernel that cannot be loaded: wrong
// format version, truncated payload, or a catalog hash that does not match
// the configured catalog.
//
// The original underlying error can be accessed via errors.Unwrap.
type ErrIncompatibleKernel struct {
	cause error
}

func (e *ErrIncompatibleKernel) Error() string {
	return fmt.Sprintf("incompatible kernel: %v", e.cause)
}

func (e *ErrIncompatibleKernel) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Not found unification.
	if errors.Is(err, blobstore.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	// Coverage unification.
	if errors.Is(err, search.ErrNoPath) || errors.Is(err, series.ErrOutOfRange) {
		return fmt.Errorf("%w: %w", ErrNoKernel, err)
	}

	// Load-time rejection normalization.
	switch {
	case errors.Is(err, persistence.ErrFormatMismatch),
		errors.Is(err, persistence.ErrInvalidVersion),
		errors.Is(err, persistence.ErrCatalogMismatch),
		errors.Is(err, series.ErrBadMagic),
		errors.Is(err, series.ErrBadVersion),
		errors.Is(err, series.ErrCorrupt):
		return &ErrIncompatibleKernel{cause: err}
	}

	return err
}
