// Package bterrors defines the error taxonomy shared by the B-tree index
// engine: keypack, bnode, nodestore and btree all classify failures into one
// of these four kinds rather than inventing their own sentinel types.
package bterrors

import (
	"errors"
	"fmt"

	"golang.org/x/xerrors"
)

// Base sentinels. Callers should use errors.Is against these, not against
// the wrapped error returned by the constructors below.
var (
	// ErrCorruptedIndex marks any structural invariant violation: a missing
	// node at an expected key, a type mismatch in Append, a double
	// checkout, a dirty Set against a Read-mode store, an impossible
	// branch in delete rebalancing, or a key-pack whose size falls outside
	// [0, 2t-1] after a split.
	ErrCorruptedIndex = errors.New("btree: corrupted index")

	// ErrBackendFailure wraps an error returned verbatim by the backing
	// Transaction.
	ErrBackendFailure = errors.New("btree: backend failure")

	// ErrEncodingFailure marks a serialisation/deserialisation round-trip
	// that failed.
	ErrEncodingFailure = errors.New("btree: encoding failure")

	// ErrUnreachable marks a defensive assertion in the delete path; it
	// indicates a bug in the algorithm, not a data problem.
	ErrUnreachable = errors.New("btree: unreachable")
)

// Corrupted wraps msg (and an optional cause) as ErrCorruptedIndex.
func Corrupted(msg string, cause error) error {
	if cause != nil {
		return xerrors.Errorf("%s: %w: %v", msg, ErrCorruptedIndex, cause)
	}
	return xerrors.Errorf("%s: %w", msg, ErrCorruptedIndex)
}

// Backend wraps a backend-originated error so callers can still
// errors.Is(err, ErrBackendFailure) while keeping the original cause in the
// chain.
func Backend(msg string, cause error) error {
	return fmt.Errorf("%s: %w: %w", msg, ErrBackendFailure, cause)
}

// Encoding wraps a serialisation failure.
func Encoding(msg string, cause error) error {
	if cause != nil {
		return xerrors.Errorf("%s: %w: %v", msg, ErrEncodingFailure, cause)
	}
	return xerrors.Errorf("%s: %w", msg, ErrEncodingFailure)
}

// Unreachable marks a defensive assertion failure in the delete path.
func Unreachable(msg string) error {
	return xerrors.Errorf("%s: %w", msg, ErrUnreachable)
}
