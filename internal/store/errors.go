// Package store is the boundary between the repository layer and the external
// document database. This file defines the error taxonomy shared by the
// client and every driver.
//
// Drivers translate native errors into these sentinels and wrap them with %w
// so the original error stays reachable through errors.As. Callers branch on
// errors.Is only.
package store

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates that no document exists for the addressed id.
	ErrNotFound = errors.New("document not found")

	// ErrConflict indicates that a document with the same id already exists.
	ErrConflict = errors.New("document already exists")

	// ErrConsistency indicates that more than one document matched an id
	// that must be unique. It is fatal for the operation.
	ErrConsistency = errors.New("more than one document matched a unique id")

	// ErrUnavailable indicates that the store could not be reached,
	// authorized against, or provisioned.
	ErrUnavailable = errors.New("store unavailable")

	// ErrCollectionGone is reported by drivers when the addressed collection
	// no longer exists (for example it was deleted out-of-band). The client
	// evicts its cached handle when it sees this error.
	ErrCollectionGone = errors.New("collection does not exist")

	// ErrInvalidID indicates a blank document identifier.
	ErrInvalidID = errors.New("document id must not be blank")
)

// IsDomain reports whether err is one of the expected outcomes of a
// well-formed request (not found, conflict, consistency, invalid id) rather
// than an infrastructure failure.
func IsDomain(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrConsistency) ||
		errors.Is(err, ErrInvalidID)
}

// Unavailable marks err as an infrastructure failure. Errors that already
// carry ErrUnavailable, domain outcomes, and the caller's own cancellation or
// deadline are returned unchanged.
func Unavailable(err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) || IsDomain(err) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
