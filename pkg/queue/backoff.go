package queue

import "time"

// Default retry backoff parameters. The 5 minute base comes from the
// behavior this engine replaces; it is a configurable default, not a
// hardcoded policy.
const (
	DefaultBackoffBase = 5 * time.Minute
	DefaultBackoffCap  = 6 * time.Hour
)

// Backoff computes the delay before a retried job becomes claimable again.
// The delay grows exponentially with the attempt count: base * 2^(attempts-1),
// capped at Cap. Because the delay never shrinks with attempts, a job's
// scheduled_at is monotonically non-decreasing across retries.
type Backoff struct {
	Base time.Duration
	Cap  time.Duration
}

// DefaultBackoff returns the backoff policy used when none is configured
func DefaultBackoff() Backoff {
	return Backoff{Base: DefaultBackoffBase, Cap: DefaultBackoffCap}
}

// Next returns the delay to apply after the given number of started attempts.
// Attempts below 1 are treated as 1.
func (b Backoff) Next(attempts int8) time.Duration {
	base := b.Base
	if base <= 0 {
		base = DefaultBackoffBase
	}
	cap := b.Cap
	if cap <= 0 {
		cap = DefaultBackoffCap
	}

	if attempts < 1 {
		attempts = 1
	}

	d := base
	for i := int8(1); i < attempts; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	if d > cap {
		return cap
	}
	return d
}
