package loam

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Store and Driver operations. Callers should
// match these with errors.Is, since they are frequently wrapped with
// operation-specific context.
var (
	// ErrClosed is returned by any operation called on a closed Store.
	ErrClosed = errors.New("loam: store is closed")

	// ErrAlreadyClosed is returned by a second call to Store.Close.
	ErrAlreadyClosed = errors.New("loam: store already closed")

	// ErrNoValidators is returned by Open when no validators are supplied.
	ErrNoValidators = errors.New("loam: at least one validator is required")

	// ErrWorkspaceRejected is returned by Open when no validator accepts
	// the store's workspace address.
	ErrWorkspaceRejected = errors.New("loam: no validator accepted the workspace address")

	// ErrUnknownFormat is returned when a document names a format with
	// no registered validator.
	ErrUnknownFormat = errors.New("loam: unknown document format")

	// ErrNotFound is not returned by Store or the bundled drivers:
	// GetDocument and GetContent report a path with nothing live as
	// ok=false.
	ErrNotFound = errors.New("loam: not found")
)

// ValidationError is returned when a document or workspace address is
// rejected by a Validator, or when Store.Set is given an out-of-bounds
// timestamp. It retains enough of the rejected document to diagnose the
// failure without ever including Content (arbitrary, potentially large,
// untrusted bytes have no business in an error message).
type ValidationError struct {
	Format string
	Path   string
	Author string
	Reason error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("loam: validation failed for format=%q path=%q author=%q: %v",
		e.Format, e.Path, e.Author, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Reason }

func validationErr(doc Document, reason error) *ValidationError {
	return &ValidationError{Format: doc.Format, Path: doc.Path, Author: doc.Author, Reason: reason}
}
