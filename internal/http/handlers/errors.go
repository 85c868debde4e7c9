// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP responses
// (via the `fail()` helper in this package) and the table that classifies
// service and store errors into a status and a code.
//
// Conventions:
//   - Codes are lowercase, snake_case, and domain-agnostic unless explicitly noted.
//   - Generic codes (e.g., bad_request, not_found, conflict) mirror common HTTP
//     status semantics to aid interoperability.
//   - All error responses must include both an HTTP status and one of these codes.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "conflict",
//	  "message": "car already exists"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/tbourn/car-manager/internal/services"
	"github.com/tbourn/car-manager/internal/store"
)

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"
	ErrCodeUnavailable  = "store_unavailable"
	ErrCodeInvalidInput = "validation_failed"

	ErrCodeMethodNotAllowed = "method_not_allowed"
)

// classify maps an error returned by the car service to an HTTP status and
// error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrCarNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, services.ErrCarConflict), errors.Is(err, store.ErrConflict):
		return http.StatusConflict, ErrCodeConflict
	case errors.Is(err, services.ErrInvalidID), errors.Is(err, store.ErrInvalidID):
		return http.StatusBadRequest, ErrCodeBadRequest
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable, ErrCodeUnavailable
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}
