package execution

import "time"

const (
	baseRetryDelay = 1 * time.Second
	maxRetryDelay  = 60 * time.Second
)

// RetryBackoff returns the exponential backoff for a given attempt
// count: base * 2^attempt, capped. Attempt 0 waits one base delay.
func RetryBackoff(attempt int) time.Duration {
	if attempt < 0 {
		return baseRetryDelay
	}
	if attempt > 30 {
		return maxRetryDelay
	}
	d := baseRetryDelay * time.Duration(1<<attempt)
	if d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}
