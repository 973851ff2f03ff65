package transport

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrBlocked marks a 403 or a block page. The session is discarded and the fetch retried.
	ErrBlocked = errors.New("blocked by remote site")
	// ErrNotFound marks a 404. It is terminal for the page.
	ErrNotFound = errors.New("page not found")
	// ErrTimeout marks a request that hit the client timeout.
	ErrTimeout = errors.New("request timed out")
	// ErrConnection marks a failed connection. The session is discarded.
	ErrConnection = errors.New("connection failed")
	// ErrAttemptsExhausted wraps the last attempt's error once the budget is spent.
	ErrAttemptsExhausted = errors.New("fetch attempts exhausted")
)

// StatusError reports an unexpected HTTP status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.Code, http.StatusText(e.Code))
}
