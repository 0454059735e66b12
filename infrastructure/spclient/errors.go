package spclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"spscan/domain/scan"
)

// classifyRemoteError maps a raw transport error onto the scan error
// taxonomy so retry policy can be decided without knowing the client
// internals. The REST client surfaces HTTP failures as text, so status
// detection falls back to token matching on the message.
//
// Throttle classifications carry no RetryAfter: the transport retries
// 429/503 internally and sleeps on the Retry-After header itself, so
// by the time an error reaches this function the hint is spent and
// only the status survives in the message. The throttle controller
// treats the zero value as "no hint" and falls back to capped backoff.
func classifyRemoteError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", scan.ErrCancelled, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", scan.ErrTransient, err)
	}

	msg := err.Error()
	switch {
	case containsStatus(msg, 429):
		return &scan.ThrottleError{StatusCode: 429}
	case containsStatus(msg, 503):
		return &scan.ThrottleError{StatusCode: 503}
	case containsStatus(msg, 401):
		return fmt.Errorf("%w: %v", scan.ErrAuthentication, err)
	case containsStatus(msg, 403):
		return fmt.Errorf("%w: %v", scan.ErrAuthentication, err)
	case containsStatus(msg, 500), containsStatus(msg, 502), containsStatus(msg, 504):
		return fmt.Errorf("%w: %v", scan.ErrTransient, err)
	default:
		return err
	}
}

// containsStatus reports whether the message mentions the given HTTP
// status code as a standalone token.
func containsStatus(msg string, code int) bool {
	token := fmt.Sprintf("%d", code)
	idx := 0
	for {
		i := strings.Index(msg[idx:], token)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(token)
		beforeOK := start == 0 || !isDigit(msg[start-1])
		afterOK := end == len(msg) || !isDigit(msg[end])
		if beforeOK && afterOK {
			return true
		}
		idx = end
	}
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
