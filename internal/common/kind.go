package common

import (
	"context"
	"errors"
	"net"
)

// ErrorKind is the user-facing classification attached to the sync status.
type ErrorKind string

const (
	KindNone          ErrorKind = ""
	KindNotConfigured ErrorKind = "not-configured"
	KindUnauthorized  ErrorKind = "unauthorized"
	KindTransient     ErrorKind = "transient-network"
	KindConflict      ErrorKind = "conflict"
	KindQuota         ErrorKind = "quota-exceeded"
	KindMalformed     ErrorKind = "malformed-remote-data"
	KindUnknown       ErrorKind = "unknown"
)

// Kind classifies err. Network errors and deadlines that were not wrapped by
// an adapter are treated as transient.
func Kind(err error) ErrorKind {
	var netErr net.Error
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotConfigured):
		return KindNotConfigured
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrQuotaExceeded):
		return KindQuota
	case errors.Is(err, ErrMalformedRemote):
		return KindMalformed
	case errors.Is(err, ErrTransient), errors.Is(err, ErrSignInTimeout),
		errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr):
		return KindTransient
	default:
		return KindUnknown
	}
}

// Retryable reports whether the caller may offer an immediate retry.
// Quota errors are not retryable.
func Retryable(err error) bool {
	return Kind(err) == KindTransient
}
