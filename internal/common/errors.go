// Package common defines sentinel errors and small helpers shared by the
// sync core, the backend adapters and the CLI. Callers should use errors.Is
// to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Backend error taxonomy. Adapters wrap transport failures into one of
	// these so the sync core can route them.
	ErrNotConfigured   = errors.New("backend not configured")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrTransient       = errors.New("transient network error")
	ErrQuotaExceeded   = errors.New("quota exceeded")
	ErrConflict        = errors.New("remote modified since last sync")
	ErrMalformedRemote = errors.New("malformed remote data")

	// Sync core errors.
	ErrInvalidTransition = errors.New("invalid sync state transition")
	ErrSignInTimeout     = errors.New("sign-in timed out")
	ErrUnsupported       = errors.New("operation not supported by backend")

	// Record validation errors.
	ErrValidation = errors.New("validation error")
)
