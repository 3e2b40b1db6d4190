package errors

import (
	"errors"
	"fmt"
	"strings"
)

// DecodeError is returned when query parameters cannot be turned back into a query.
type DecodeError struct {
	Reason  string
	Missing []string
}

func (e *DecodeError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("invalid search parameters: %s (expected one of: %s)", e.Reason, strings.Join(e.Missing, ", "))
	}
	return "invalid search parameters: " + e.Reason
}

// NewDecodeError creates a DecodeError naming the parameters that would have satisfied it.
func NewDecodeError(reason string, missing ...string) *DecodeError {
	return &DecodeError{Reason: reason, Missing: missing}
}

// IsDecodeError reports whether err is a DecodeError (even when wrapped).
func IsDecodeError(err error) bool {
	var decodeErr *DecodeError
	return errors.As(err, &decodeErr)
}
