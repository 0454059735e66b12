package scanner

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"spscan/domain/scan"
	"spscan/logging"
)

// Backoff shape for retried calls. Retry-After from the server always
// wins over computed backoff.
const (
	throttleBackoffBase = 2 * time.Second
	throttleBackoffCap  = 60 * time.Second
	transientBackoff    = 500 * time.Millisecond
)

// ThrottleController wraps every remote call of a scan: it paces
// outgoing requests through a shared rate limiter, retries rate-limit
// responses honoring the server's Retry-After exactly when present,
// retries transient network failures on a smaller budget, and never
// retries authentication failures.
type ThrottleController struct {
	limiter             *rate.Limiter
	maxThrottleRetries  int
	maxTransientRetries int
	logger              *logging.Logger

	// sleep is replaceable in tests to observe computed delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewThrottleController creates a controller from scan parameters.
func NewThrottleController(params *scan.Parameters) *ThrottleController {
	rps := params.RequestsPerSecond
	if rps < 1 {
		rps = 1
	}
	return &ThrottleController{
		limiter:             rate.NewLimiter(rate.Limit(rps), rps),
		maxThrottleRetries:  params.MaxThrottleRetries,
		maxTransientRetries: params.MaxTransientRetries,
		logger:              logging.Default().WithComponent("throttle"),
		sleep:               sleepContext,
	}
}

// Do runs fn under pacing and the retry policy. op names the call for
// logs and error wrapping. The returned error keeps its taxonomy
// identity so callers can distinguish exhausted throttling from auth
// failure.
func (t *ThrottleController) Do(ctx context.Context, op string, fn func() error) error {
	throttleAttempts := 0
	transientAttempts := 0

	for {
		if err := t.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: %w: %v", op, scan.ErrCancelled, err)
		}

		err := fn()
		if err == nil {
			return nil
		}

		switch {
		case errors.Is(err, scan.ErrCancelled):
			return fmt.Errorf("%s: %w", op, err)

		case errors.Is(err, scan.ErrAuthentication):
			return fmt.Errorf("%s: %w", op, err)

		case errors.Is(err, scan.ErrThrottled):
			throttleAttempts++
			if throttleAttempts > t.maxThrottleRetries {
				t.logger.Warn("Throttle retry budget exhausted", "operation", op, "attempts", throttleAttempts)
				return fmt.Errorf("%s: retries exhausted: %w", op, err)
			}
			delay := t.throttleDelay(err, throttleAttempts)
			t.logger.Info("Throttled, backing off",
				"operation", op, "attempt", throttleAttempts, "delay", delay.String())
			if sleepErr := t.sleep(ctx, delay); sleepErr != nil {
				return fmt.Errorf("%s: %w: %v", op, scan.ErrCancelled, sleepErr)
			}

		case errors.Is(err, scan.ErrTransient):
			transientAttempts++
			if transientAttempts > t.maxTransientRetries {
				return fmt.Errorf("%s: retries exhausted: %w", op, err)
			}
			delay := transientBackoff * time.Duration(transientAttempts)
			t.logger.Info("Transient failure, retrying",
				"operation", op, "attempt", transientAttempts, "delay", delay.String())
			if sleepErr := t.sleep(ctx, delay); sleepErr != nil {
				return fmt.Errorf("%s: %w: %v", op, scan.ErrCancelled, sleepErr)
			}

		default:
			return fmt.Errorf("%s: %w", op, err)
		}
	}
}

// throttleDelay picks the wait before the next attempt: the server's
// Retry-After verbatim when present, else exponential backoff with
// jitter.
func (t *ThrottleController) throttleDelay(err error, attempt int) time.Duration {
	var throttleErr *scan.ThrottleError
	if errors.As(err, &throttleErr) && throttleErr.RetryAfter > 0 {
		return throttleErr.RetryAfter
	}

	delay := throttleBackoffBase << (attempt - 1)
	if delay > throttleBackoffCap {
		delay = throttleBackoffCap
	}
	// Up to 50% jitter keeps concurrent scans from retrying in lockstep.
	jitter := time.Duration(rand.Int63n(int64(delay) / 2))
	return delay + jitter
}

// sleepContext blocks for d or until the context is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
