package queue

import (
	"math/rand"
	"time"
)

// Backoff computes the retry delay for attempt n: min(2^n, cap) seconds,
// with +/-25% jitter (spec.md §4.4.5).
func Backoff(attempt int) time.Duration {
	return jitter(capped(attempt))
}

func capped(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// Guard against overflow for pathologically large attempt counts;
	// BackoffCap is reached well before this matters.
	if attempt > 30 {
		return BackoffCap
	}
	seconds := time.Duration(1<<uint(attempt)) * time.Second
	if seconds > BackoffCap || seconds <= 0 {
		return BackoffCap
	}
	return seconds
}

func jitter(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	spread := float64(base) * 0.25
	delta := (rand.Float64()*2 - 1) * spread
	result := time.Duration(float64(base) + delta)
	if result < 0 {
		result = 0
	}
	return result
}
