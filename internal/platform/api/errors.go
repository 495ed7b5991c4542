package api

import (
	"errors"
	"fmt"
)

// Sentinel errors for the client-side checks and the auth taxonomy.
var (
	// ErrUnauthorized marks any request the backend rejected for a missing,
	// expired or invalid credential. Callers route to the unauthenticated
	// state; the client never retries automatically.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrImageTooLarge is returned before dispatch when an analysis payload
	// exceeds the configured upload limit.
	ErrImageTooLarge = errors.New("image payload exceeds upload limit")
)

// AuthError is an authentication failure: a rejected handshake exchange or a
// 401 on an authenticated call.
type AuthError struct {
	Status int
	Detail string
}

func (e *AuthError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("auth error (status %d): %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("auth error (status %d)", e.Status)
}

func (e *AuthError) Unwrap() error { return ErrUnauthorized }

// ValidationError is a request refused as malformed, either by the
// client-side checks before dispatch or by the backend. The caller surfaces
// it inline and preserves the user's input.
type ValidationError struct {
	Status int
	Detail string
	Err    error
}

func (e *ValidationError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("validation error: %v", e.Err)
	case e.Detail != "":
		return fmt.Sprintf("validation error (status %d): %s", e.Status, e.Detail)
	default:
		return fmt.Sprintf("validation error (status %d)", e.Status)
	}
}

func (e *ValidationError) Unwrap() error { return e.Err }

// TransientError is a network failure or a backend 5xx. Not retried
// automatically; the operation must be re-triggered by the user.
type TransientError struct {
	Status int // 0 when the request never reached the backend
	Detail string
	Err    error
}

func (e *TransientError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("transient error: %v", e.Err)
	case e.Detail != "":
		return fmt.Sprintf("transient error (status %d): %s", e.Status, e.Detail)
	default:
		return fmt.Sprintf("transient error (status %d)", e.Status)
	}
}

func (e *TransientError) Unwrap() error { return e.Err }

// statusError maps a non-2xx response to the error taxonomy.
func statusError(status int, detail string) error {
	switch {
	case status == 401:
		return &AuthError{Status: status, Detail: detail}
	case status == 400 || status == 404 || status == 413 || status == 422:
		return &ValidationError{Status: status, Detail: detail}
	default:
		return &TransientError{Status: status, Detail: detail}
	}
}
