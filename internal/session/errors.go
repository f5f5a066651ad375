package session

import (
	"context"
	"errors"
)

// Wire-visible error kinds, reported only to the offending connection.
const (
	KindAuthentication = "AuthenticationError"
	KindNotFound       = "NotFoundError"
	KindValidation     = "ValidationError"
	KindPersistence    = "PersistenceError"
	KindTimeout        = "TimeoutError"
)

var (
	// ErrAuthentication means the connection never presented a valid identity.
	ErrAuthentication = errors.New("authentication failed")
	// ErrNotFound covers operations referencing an unregistered connection
	// or a nonexistent message. The caller should re-sync and retry.
	ErrNotFound = errors.New("not found")
	// ErrValidation covers malformed input such as an empty text body.
	ErrValidation = errors.New("validation failed")
	// ErrPersistence means the external message store failed. Retrying is
	// left to the client so an ambiguous partial failure cannot duplicate
	// a message.
	ErrPersistence = errors.New("persistence failed")
	// ErrTimeout means a store call exceeded its bound. Callers treat it
	// like ErrPersistence.
	ErrTimeout = errors.New("operation timed out")
)

// Kind maps an error to its wire kind.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrAuthentication):
		return KindAuthentication
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	default:
		return KindPersistence
	}
}
