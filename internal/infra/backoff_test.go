package infra

import (
	"testing"
	"time"
)

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		retryCount int
		want       time.Duration
	}{
		{-1, 500 * time.Millisecond},
		{0, 500 * time.Millisecond},
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{10, 30 * time.Second},  // capped
		{100, 30 * time.Second}, // still capped
	}

	for _, tt := range tests {
		delay := CalculateBackoff(tt.retryCount)
		if delay != tt.want {
			t.Errorf("CalculateBackoff(%d) = %s, want %s", tt.retryCount, delay, tt.want)
		}
	}
}

func TestBackoffWithJitter(t *testing.T) {
	for retry := 0; retry < 8; retry++ {
		full := CalculateBackoff(retry)
		for i := 0; i < 50; i++ {
			d := BackoffWithJitter(retry)
			if d < full/2 || d > full {
				t.Fatalf("BackoffWithJitter(%d) = %s, want within [%s, %s]", retry, d, full/2, full)
			}
		}
	}
}
