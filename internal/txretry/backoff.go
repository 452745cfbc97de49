package txretry

import (
	"math"
	"math/rand"
	"time"
)

// BackoffPolicy computes the pause before the next attempt. Delay is called
// with the number of the attempt that just failed, starting at 1.
type BackoffPolicy interface {
	Delay(attempt int) time.Duration
}

// ExponentialBackoff grows the delay geometrically from Base up to Max, then
// spreads it with uniform jitter in [1-Jitter, 1+Jitter] so concurrent
// clients contending on the same rows do not retry in lockstep. It holds no
// state; one value can be shared by any number of executors.
type ExponentialBackoff struct {
	Base       time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64 // fraction in [0, 1]
}

// DefaultBackoff matches the pacing CockroachDB clients use for transaction
// restarts: 50ms doubling up to 2s, half-width jitter.
var DefaultBackoff = ExponentialBackoff{
	Base:       50 * time.Millisecond,
	Max:        2 * time.Second,
	Multiplier: 2,
	Jitter:     0.5,
}

func (b ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := b.Base
	if base <= 0 {
		base = DefaultBackoff.Base
	}
	mult := b.Multiplier
	if mult <= 1 {
		mult = DefaultBackoff.Multiplier
	}

	d := float64(base) * math.Pow(mult, float64(attempt-1))
	if b.Max > 0 && d > float64(b.Max) {
		d = float64(b.Max)
	}
	if b.Jitter > 0 {
		// Uniform in [1-j, 1+j].
		d *= 1 + b.Jitter*(2*rand.Float64()-1)
	}
	return time.Duration(d)
}
