package usecase

import (
	"time"

	"github.com/osk/fintrack/internal/domain"
)

// Retry ceilings per nack reason. A validation error gets one more attempt
// in case the rejection was caused by a payload merged mid-flight; a
// conflict is terminal locally and must be reconciled by a pull; transport
// failures retry up to a higher cap.
const (
	maxRetriesValidation = 1
	maxRetriesConflict   = 0
	maxRetriesTransient  = 8
)

// Backoff curve for requeued entries: exponential, base 1s, factor 2,
// capped at 60s.
const (
	backoffBase   = 1 * time.Second
	backoffFactor = 2
	backoffCap    = 60 * time.Second
)

// RetryClassifier maps a nack reason to its retry budget and backoff delay.
// It is a pure value; the zero value is ready to use.
type RetryClassifier struct{}

// MaxRetries returns how many additional attempts a reason allows after the
// first failure.
func (RetryClassifier) MaxRetries(reason domain.NackReason) int {
	switch reason {
	case domain.ReasonNetworkError, domain.ReasonTimeout:
		return maxRetriesTransient
	case domain.ReasonValidationError:
		return maxRetriesValidation
	case domain.ReasonConflict:
		return maxRetriesConflict
	default:
		// Unknown reasons are treated like validation errors: one more
		// attempt, then terminal.
		return maxRetriesValidation
	}
}

// Delay returns how long a requeued entry waits before it becomes eligible
// for the next drain. attempts is the post-increment attempt count, so the
// first retry waits the base interval.
func (RetryClassifier) Delay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}

	d := backoffBase
	for i := 1; i < attempts; i++ {
		d *= backoffFactor
		if d >= backoffCap {
			return backoffCap
		}
	}

	if d > backoffCap {
		return backoffCap
	}
	return d
}

// Retryable reports whether an entry with the given post-increment attempt
// count may be requeued for the reason.
func (c RetryClassifier) Retryable(reason domain.NackReason, attempts int) bool {
	return attempts <= c.MaxRetries(reason)
}
