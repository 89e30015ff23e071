package lavaflow

import (
	"testing"
	"time"
)

func TestBackoffDelayGrowth(t *testing.T) {
	base := 100 * time.Millisecond
	max := time.Second

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 100 * time.Millisecond},
		{attempt: 1, want: 200 * time.Millisecond},
		{attempt: 2, want: 400 * time.Millisecond},
		{attempt: 3, want: 800 * time.Millisecond},
		{attempt: 4, want: time.Second}, // capped
		{attempt: 10, want: time.Second},
	}
	for _, tt := range tests {
		if got := backoffDelay(tt.attempt, base, max, 0); got != tt.want {
			t.Errorf("backoffDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoffDelayOverflowCapsAtMax(t *testing.T) {
	// Shifting far enough to overflow must still cap, never go negative.
	if got := backoffDelay(62, time.Second, 30*time.Second, 0); got != 30*time.Second {
		t.Errorf("backoffDelay(62) = %v, want %v", got, 30*time.Second)
	}
}

func TestBackoffDelayJitterBounds(t *testing.T) {
	base := 100 * time.Millisecond
	jitter := 50 * time.Millisecond
	for range 100 {
		got := backoffDelay(0, base, time.Second, jitter)
		if got < base || got >= base+jitter {
			t.Fatalf("backoffDelay() = %v, want in [%v, %v)", got, base, base+jitter)
		}
	}
}
