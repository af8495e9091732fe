package crm

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"meetingsync/internal/common/metrics"
	"meetingsync/internal/models"
)

// newProviderLimiter builds the per-provider request limiter. Callers block
// in Wait rather than receiving an error; the limiter is shared by every job
// targeting the same provider within the process.
func newProviderLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	perRequest := time.Minute / time.Duration(requestsPerMinute)
	return rate.NewLimiter(rate.Every(perRequest), requestsPerMinute)
}

// waitForSlot blocks until the limiter admits one request or the context is
// cancelled. Waits longer than the tick are counted for observability.
func waitForSlot(ctx context.Context, limiter *rate.Limiter, system models.CRMSystem) error {
	reservation := limiter.Reserve()
	if !reservation.OK() {
		return ctx.Err()
	}
	delay := reservation.Delay()
	if delay == 0 {
		return nil
	}

	metrics.RateLimitWaits.WithLabelValues(string(system)).Inc()
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		reservation.Cancel()
		return ctx.Err()
	}
}

// RetryPolicy bounds request retries with a doubling backoff.
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func DefaultRetryPolicy(maxRetries int) RetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return RetryPolicy{
		MaxRetries:   maxRetries,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
	}
}

// Backoff returns the delay before the given retry attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	delay := p.InitialDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
