package lavaflow

import (
	"math/rand/v2"
	"time"
)

// backoffDelay returns the delay before retry attempt n (0-based):
// base doubled per attempt, capped, plus uniform jitter.
func backoffDelay(attempt int, base, max, jitter time.Duration) time.Duration {
	delay := base << attempt
	if delay > max || delay <= 0 {
		delay = max
	}
	if jitter > 0 {
		delay += rand.N(jitter)
	}
	return delay
}
