// Package idgen produces identifiers for new records. Identifiers are drawn
// from a 128-bit random space and are never checked against the store.
package idgen

import "github.com/google/uuid"

// Generator returns a fresh identifier on every call.
type Generator interface {
	Next() string
}

// UUIDGenerator issues random (version 4) UUIDs in their canonical string form.
type UUIDGenerator struct{}

// Next returns a new random UUID.
func (UUIDGenerator) Next() string { return uuid.NewString() }

// Func adapts a plain function to Generator.
type Func func() string

// Next calls f.
func (f Func) Next() string { return f() }
