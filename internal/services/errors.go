// Package services defines the business logic for car records.
// This file centralizes service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Translation into HTTP status codes is performed at the handler layer.
// Infrastructure errors (store.ErrUnavailable, store.ErrConsistency) are
// not redeclared here; they pass through unchanged.
package services

import "errors"

var (
	// ErrCarNotFound indicates that no car exists with the requested id.
	ErrCarNotFound = errors.New("car not found")

	// ErrCarConflict indicates that a car with the same id already exists.
	ErrCarConflict = errors.New("car already exists")

	// ErrInvalidID is returned for blank car ids.
	ErrInvalidID = errors.New("car id must not be blank")
)
