package reader

import (
	"errors"
	"fmt"
)

var (
	// ErrBoundary is returned when navigating past the first or last unit.
	ErrBoundary = errors.New("no further content")

	// ErrSandboxViolation is returned when text is requested from embedded
	// content the host is not allowed to read.
	ErrSandboxViolation = errors.New("embedded content is isolated from the host")

	// ErrUnsupportedFormat is returned for formats without an adapter.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrNotLoaded is returned by adapters used before Load succeeded.
	ErrNotLoaded = errors.New("document not loaded")
)

// LoadError reports bytes that could not be decoded by an adapter.
type LoadError struct {
	Format Format
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to open %s: %v", e.Format, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// PositionError reports a restore target outside the document and the
// position it was clamped to.
type PositionError struct {
	Requested Position
	Clamped   Position
	Reason    string
}

func (e *PositionError) Error() string {
	return fmt.Sprintf("position %s %s, using %s", e.Requested, e.Reason, e.Clamped)
}

// recoverLoad converts a parser panic into a LoadError.
func recoverLoad(f Format, err *error) {
	if r := recover(); r != nil {
		*err = &LoadError{Format: f, Err: fmt.Errorf("malformed document: %v", r)}
	}
}
