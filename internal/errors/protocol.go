package errors

import (
	"errors"
	"fmt"
)

// ProtocolError means the aggregator answered, but not in a shape we understand.
type ProtocolError struct {
	Op     string
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// NewProtocolError creates a ProtocolError for operation op.
func NewProtocolError(op, reason string, err error) *ProtocolError {
	return &ProtocolError{Op: op, Reason: reason, Err: err}
}

// IsProtocolError reports whether err is a ProtocolError (even when wrapped).
func IsProtocolError(err error) bool {
	var protoErr *ProtocolError
	return errors.As(err, &protoErr)
}
