package engine

import (
	"math"
	"time"

	"github.com/dagline/dagline/pkg/models"
)

// RetryPolicy is the effective, fully-defaulted retry configuration for
// one node, always exponential backoff per spec §4.6 ("schedule a
// delayed re-execution of N (exponential backoff...)").
type RetryPolicy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryPolicy is used for nodes that set no models.RetryPolicy,
// matching the teacher's DefaultInternalRetryPolicy defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   1,
		InitialDelay:  1 * time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
	}
}

// resolveRetryPolicy converts a node's models.RetryPolicy (if any) into
// an effective RetryPolicy, falling back to fallback for fields
// the node doesn't override.
func resolveRetryPolicy(nodeRetry *models.RetryPolicy, fallback RetryPolicy) RetryPolicy {
	if nodeRetry == nil {
		return fallback
	}
	policy := fallback
	if nodeRetry.MaxAttempts > 0 {
		policy.MaxAttempts = nodeRetry.MaxAttempts
	}
	if nodeRetry.BackoffBaseMs > 0 {
		policy.InitialDelay = time.Duration(nodeRetry.BackoffBaseMs) * time.Millisecond
	}
	if nodeRetry.BackoffFactor > 0 {
		policy.BackoffFactor = nodeRetry.BackoffFactor
	}
	return policy
}

// delayForAttempt returns the backoff delay before retry attempt n
// (1-indexed: the delay before the 2nd overall try is delayForAttempt(1)).
func (rp RetryPolicy) delayForAttempt(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	factor := rp.BackoffFactor
	if factor <= 0 {
		factor = 2.0
	}
	delay := time.Duration(float64(rp.InitialDelay) * math.Pow(factor, float64(attempt-1)))
	if rp.MaxDelay > 0 && delay > rp.MaxDelay {
		delay = rp.MaxDelay
	}
	return delay
}
