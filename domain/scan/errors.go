package scan

import (
	"errors"
	"fmt"
	"time"
)

// Error taxonomy for scan execution. Only validation, authentication
// and exhausted-retry errors surface to the caller as scan failure;
// per-item errors are absorbed into Stats.Errors.
var (
	// ErrValidation marks a bad request shape, rejected before any work starts.
	ErrValidation = errors.New("validation error")

	// ErrAuthentication marks an auth failure; fatal, never retried.
	ErrAuthentication = errors.New("authentication error")

	// ErrThrottled marks a rate-limit response that survived the full
	// retry budget.
	ErrThrottled = errors.New("throttled")

	// ErrTransient marks a transient network failure that survived its
	// (smaller) retry budget.
	ErrTransient = errors.New("transient network error")

	// ErrCancelled marks a cooperative cancellation: clean abort,
	// partial output discarded.
	ErrCancelled = errors.New("scan cancelled")
)

// ThrottleError carries the server-provided retry delay from a
// rate-limit response, when one was present.
type ThrottleError struct {
	RetryAfter time.Duration // 0 when the server gave no hint
	StatusCode int
}

func (e *ThrottleError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("throttled (status %d, retry after %s)", e.StatusCode, e.RetryAfter)
	}
	return fmt.Sprintf("throttled (status %d)", e.StatusCode)
}

func (e *ThrottleError) Unwrap() error { return ErrThrottled }

// IsFatal reports whether an error must abort the whole scan rather
// than being absorbed as a per-item failure.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuthentication) ||
		errors.Is(err, ErrThrottled) ||
		errors.Is(err, ErrTransient) ||
		errors.Is(err, ErrCancelled)
}
