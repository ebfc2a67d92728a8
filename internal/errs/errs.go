// Package errs defines the caller-visible error taxonomy shared by every
// engine package: hashing, geometry, storage, ingestion, rating, query, and
// the walk generator all return *Error values tagged with a Kind so callers
// (and, at the interop boundary, the ABI layer) can distinguish fatal storage
// failures from ordinary not-found or invalid-input conditions.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an Error for caller dispatch and ABI conversion.
type Kind int

const (
	// Internal marks an invariant violation (e.g. a non-unit centroid).
	// Logged, never auto-recovered.
	Internal Kind = iota

	// InvalidInput marks malformed UTF-8, an unknown codepoint, a
	// zero-length or oversized buffer, out-of-range configuration, or a hex
	// parse failure. Not logged — it is the caller's problem.
	InvalidInput

	// SealedFoundation marks a write attempted against the sealed Atom table.
	SealedFoundation

	// NotFound marks a hash, codepoint, or id that does not resolve. Not
	// logged.
	NotFound

	// Conflict marks a transient concurrency conflict. Retryable; the
	// engine never auto-retries.
	Conflict

	// StorageFailure marks an I/O or constraint error reported by the host
	// store. Fatal for the current transaction.
	StorageFailure

	// Cancelled marks an observed cancellation token.
	Cancelled
)

// String returns the taxonomy name used in log attributes and metric labels.
func (k Kind) String() string {
	switch k {
	case Internal:
		return "internal"
	case InvalidInput:
		return "invalid_input"
	case SealedFoundation:
		return "sealed_foundation"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case StorageFailure:
		return "storage_failure"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Retryable reports whether a caller may reasonably retry the operation that
// produced an Error of this Kind. Only Conflict is retryable; the engine
// itself never retries automatically (spec.md §7).
func (k Kind) Retryable() bool { return k == Conflict }

// Error is the tagged sum type every core package returns. It wraps an
// optional underlying cause for %w-style unwrapping.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error of the given Kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error of the given Kind wrapping cause, with a
// formatted message. If cause is already an *Error of the same Kind it is
// returned unwrapped to avoid redundant nesting.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	if e, ok := cause.(*Error); ok && e.Kind == kind {
		return e
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether err is an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, defaulting to Internal for errors that
// did not originate from this package (e.g. a bare I/O error from the host
// store driver that was not wrapped before propagating).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
