package tmdb

import (
	"errors"
	"fmt"
)

// ErrNotFound marks a 404: the entity no longer exists upstream. It is
// terminal and never retried.
var ErrNotFound = errors.New("tmdb: not found")

// ErrRetriesExhausted marks a transient failure (429 or network error)
// that outlived the per-request retry budget.
var ErrRetriesExhausted = errors.New("tmdb: retry budget exhausted")

// AuthError is returned on HTTP 401. Credentials are wrong for every
// call, so the caller must abort the whole run.
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("tmdb: authentication failed (HTTP %d)", e.Status)
}

// StatusError covers every other non-2xx status. Terminal for the key,
// harmless for the run.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tmdb: HTTP %d", e.Status)
}
