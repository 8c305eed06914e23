package scheduler

import "time"

// RetryPolicy is linear backoff: attempt n waits BaseDelay*n.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

var (
	DefaultRetryPolicy = RetryPolicy{MaxAttempts: 5, BaseDelay: 60 * time.Second}
	// ValidationPolicy bounds retries of work that cannot reach a platform,
	// such as queue or database hiccups in the worker.
	ValidationPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: 60 * time.Second}
)

func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.BaseDelay * time.Duration(attempt)
}

// CanRetry reports whether another run may follow the given attempt
// (1-based).
func (p RetryPolicy) CanRetry(attempt int) bool {
	return attempt < p.MaxAttempts
}
