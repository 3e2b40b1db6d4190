package errors

import (
	"errors"
	"fmt"
	"time"
)

// TimeoutError is reported when a session outlives the caller's wall-clock ceiling.
type TimeoutError struct {
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("search did not finish within %s", e.Limit)
}

// NewTimeoutError creates a TimeoutError for the given ceiling.
func NewTimeoutError(limit time.Duration) *TimeoutError {
	return &TimeoutError{Limit: limit}
}

// IsTimeoutError reports whether err is a TimeoutError (even when wrapped).
func IsTimeoutError(err error) bool {
	var timeoutErr *TimeoutError
	return errors.As(err, &timeoutErr)
}
