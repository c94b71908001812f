package bufstream

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotSupported    = errors.New("operation not supported")
	ErrClosed          = errors.New("stream is closed")
	ErrFinalized       = errors.New("stream is finalized")
	ErrQuotaExceeded   = errors.New("quota exceeded")
)

// QuotaExceededError is returned when a write would grow an output stream
// past its configured maximum size. Bytes written by earlier calls are kept.
type QuotaExceededError struct {
	Limit int64 // Configured quota in bytes.
}

// Error implements the error interface.
func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("maximum size quota of %d bytes exceeded", e.Limit)
}

// Is reports whether target is ErrQuotaExceeded or another QuotaExceededError.
func (e *QuotaExceededError) Is(target error) bool {
	if target == ErrQuotaExceeded {
		return true
	}
	_, ok := target.(*QuotaExceededError)
	return ok
}

// invalidArgument wraps ErrInvalidArgument with a formatted message.
func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
