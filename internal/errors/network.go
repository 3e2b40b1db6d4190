package errors

import (
	"errors"
	"fmt"
)

// NetworkError is a transport-level failure talking to the aggregator:
// connection refused, DNS, timeouts, or a non-2xx status.
type NetworkError struct {
	Op         string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		if e.Err != nil {
			return fmt.Sprintf("%s: unexpected status %d: %v", e.Op, e.StatusCode, e.Err)
		}
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError wraps a transport failure for operation op.
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err}
}

// NewStatusError reports a non-2xx response for operation op.
func NewStatusError(op string, statusCode int, err error) *NetworkError {
	return &NetworkError{Op: op, StatusCode: statusCode, Err: err}
}

// IsNetworkError reports whether err is a NetworkError (even when wrapped).
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}
