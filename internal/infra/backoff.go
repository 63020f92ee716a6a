package infra

import (
	"math/rand"
	"time"
)

const (
	// Standard backoff constants
	baseDelay = 500 * time.Millisecond
	maxDelay  = 30 * time.Second
)

// CalculateBackoff returns the exponential backoff duration for a given retry count.
// Logic: baseDelay * 2^retryCount, capped at maxDelay.
// If retryCount is negative, it returns baseDelay.
func CalculateBackoff(retryCount int) time.Duration {
	if retryCount < 0 {
		return baseDelay
	}

	// 2^30 is already far beyond maxDelay; cap early to avoid shift overflow.
	if retryCount > 30 {
		return maxDelay
	}

	backoff := baseDelay * time.Duration(1<<retryCount)

	if backoff > maxDelay {
		return maxDelay
	}

	return backoff
}

// BackoffWithJitter spreads retries from concurrent submitters so they do
// not hammer the exchange in lockstep. Returns a duration in
// [delay/2, delay].
func BackoffWithJitter(retryCount int) time.Duration {
	delay := CalculateBackoff(retryCount)
	half := delay / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}
