package usecase

import (
	"testing"
	"time"

	"github.com/osk/fintrack/internal/domain"
)

func TestRetryClassifier_MaxRetries(t *testing.T) {
	tests := []struct {
		reason domain.NackReason
		want   int
	}{
		{domain.ReasonValidationError, 1},
		{domain.ReasonConflict, 0},
		{domain.ReasonNetworkError, 8},
		{domain.ReasonTimeout, 8},
		{domain.NackReason("something_else"), 1},
	}

	var c RetryClassifier
	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			if got := c.MaxRetries(tt.reason); got != tt.want {
				t.Errorf("MaxRetries(%s) = %d, want %d", tt.reason, got, tt.want)
			}
		})
	}
}

func TestRetryClassifier_Delay(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 1 * time.Second},
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{7, 60 * time.Second}, // 64s capped
		{50, 60 * time.Second},
	}

	var c RetryClassifier
	for _, tt := range tests {
		if got := c.Delay(tt.attempts); got != tt.want {
			t.Errorf("Delay(%d) = %s, want %s", tt.attempts, got, tt.want)
		}
	}
}

func TestRetryClassifier_DelayMonotonic(t *testing.T) {
	var c RetryClassifier
	prev := time.Duration(0)
	for attempts := 1; attempts <= 20; attempts++ {
		d := c.Delay(attempts)
		if d < prev {
			t.Fatalf("delay decreased at attempt %d: %s < %s", attempts, d, prev)
		}
		if d > backoffCap {
			t.Fatalf("delay exceeds cap at attempt %d: %s", attempts, d)
		}
		prev = d
	}
}

func TestRetryClassifier_Retryable(t *testing.T) {
	var c RetryClassifier

	if !c.Retryable(domain.ReasonValidationError, 1) {
		t.Error("first validation failure should be retryable")
	}
	if c.Retryable(domain.ReasonValidationError, 2) {
		t.Error("second validation failure should be terminal")
	}
	if c.Retryable(domain.ReasonConflict, 1) {
		t.Error("conflicts are terminal locally")
	}
	if !c.Retryable(domain.ReasonTimeout, 8) {
		t.Error("eighth timeout should still be retryable")
	}
	if c.Retryable(domain.ReasonTimeout, 9) {
		t.Error("ninth timeout should be terminal")
	}
}
