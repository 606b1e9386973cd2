package replay

import (
	"errors"
	"fmt"
)

var (
	// ErrUnresolved marks a request still in flight when the drain timeout
	// after the last dispatch expired.
	ErrUnresolved = errors.New("request unresolved at drain timeout")
	// ErrAbandoned marks a request still in flight when the grace period
	// after an interrupt expired.
	ErrAbandoned = errors.New("request abandoned after interrupt")
	// ErrExecutorPanic wraps a panic recovered from an Executor.
	ErrExecutorPanic = errors.New("executor panicked")
	// ErrNoExecutor is returned when Options.Executor is nil.
	ErrNoExecutor = errors.New("replay: executor is required")
)

// HTTPError represents a non-2xx response.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}
