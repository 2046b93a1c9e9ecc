package ai

import (
	"context"
	"net/http"
	"time"
)

// RetryPolicy is exponential backoff with a cap: the delay before retry n
// (1-based) is min(BaseDelay*2^(n-1), MaxDelay).
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   10 * time.Second,
	}
}

func (p RetryPolicy) Delay(retry int) time.Duration {
	if retry < 1 {
		return 0
	}
	shift := retry - 1
	if shift > 30 {
		return p.MaxDelay
	}
	delay := p.BaseDelay << uint(shift)
	if delay <= 0 || delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Retryable reports whether an upstream status may be retried.
// 400 and 401 are never retried; neither is any other non-5xx status.
func Retryable(status int) bool {
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnauthorized:
		return false
	case status == http.StatusTooManyRequests:
		return true
	default:
		return status >= 500
	}
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
