package lock

import (
	"errors"
	"fmt"
	"time"
)

// ErrTimeout matches every *TimeoutError via errors.Is.
var ErrTimeout = errors.New("lock timeout")

// TimeoutError reports that a lock could not be acquired in time.
type TimeoutError struct {
	// Path is the collection path whose lock was requested.
	Path string

	// Waited is how long Acquire waited before giving up.
	Waited time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: %s not acquired after %s", ErrTimeout, e.Path, e.Waited.Round(time.Millisecond))
}

// Is reports whether target is ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// IsTimeout returns true if err is or wraps a lock timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
