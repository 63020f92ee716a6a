package infra

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/makwana23-Harshil/binance-bot/internal/domain"
)

// RetryPolicy wraps every gateway call with the shared token bucket,
// the circuit breaker and bounded exponential-backoff retry.
//
// Classification rules:
//   - duplicate-order rejections count as success: the ambiguous first
//     attempt reached the exchange and the ClientID binds us to it
//   - non-transient rejections surface immediately as ErrRejectedByExchange
//   - transient failures are retried; exhaustion surfaces ErrSubmissionFailed
type RetryPolicy struct {
	limiter     *RateLimiter
	breaker     *CircuitBreaker
	maxAttempts int

	// backoff is swappable so tests can run without real sleeps.
	backoff func(retryCount int) time.Duration
}

// NewRetryPolicy creates a policy. maxAttempts must be at least 1.
func NewRetryPolicy(limiter *RateLimiter, breaker *CircuitBreaker, maxAttempts int) *RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RetryPolicy{
		limiter:     limiter,
		breaker:     breaker,
		maxAttempts: maxAttempts,
		backoff:     BackoffWithJitter,
	}
}

// WithBackoff overrides the backoff schedule. Used by tests.
func (p *RetryPolicy) WithBackoff(f func(int) time.Duration) *RetryPolicy {
	p.backoff = f
	return p
}

// Execute runs call under the policy. ctx bounds the total time including
// rate-limit waits and backoff sleeps.
func (p *RetryPolicy) Execute(ctx context.Context, call func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := p.sleep(ctx, p.backoff(attempt-1)); err != nil {
				return fmt.Errorf("%w: %v (last error: %v)", domain.ErrSubmissionFailed, err, lastErr)
			}
		}

		if p.breaker != nil && !p.breaker.Allow() {
			lastErr = fmt.Errorf("circuit breaker %s", p.breaker.State())
			continue
		}

		if p.limiter != nil {
			if err := p.limiter.Acquire(ctx); err != nil {
				return err // ErrRateLimitTimeout
			}
		}

		err := call(ctx)
		if err == nil {
			if p.breaker != nil {
				p.breaker.RecordSuccess()
			}
			return nil
		}

		if ge, ok := domain.AsGatewayError(err); ok {
			if ge.Duplicate {
				// The first attempt succeeded server-side.
				if p.breaker != nil {
					p.breaker.RecordSuccess()
				}
				slog.Info("Duplicate order rejection treated as success",
					slog.Int("code", ge.Code))
				return nil
			}
			if !ge.Transient {
				if p.breaker != nil {
					p.breaker.RecordSuccess() // the exchange answered; not an outage
				}
				return fmt.Errorf("%w: %v", domain.ErrRejectedByExchange, ge)
			}
		}

		// Transient: network timeout, 5xx, explicit try-again.
		if p.breaker != nil {
			p.breaker.RecordFailure()
		}
		lastErr = err
		slog.Warn("Gateway call failed, will retry",
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", p.maxAttempts),
			slog.Any("error", err))
	}

	return fmt.Errorf("%w: %v", domain.ErrSubmissionFailed, lastErr)
}

func (p *RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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

// IsTransient reports whether an error is worth retrying. Non-gateway
// errors (transport, timeouts) are treated as transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if ge, ok := domain.AsGatewayError(err); ok {
		return ge.Transient
	}
	return !errors.Is(err, context.Canceled)
}
