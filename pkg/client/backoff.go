package client

import (
	"math"
	"math/rand/v2"
	"time"
)

// BackoffStrategy decides how long to wait before retry number attempt (0-based).
type BackoffStrategy interface {
	Next(attempt int) time.Duration
}

// ExponentialBackoff waits Base * Factor^attempt, capped at Max, spread by
// +/- Jitter (0.0 to 1.0) of the delay.
type ExponentialBackoff struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64
}

// DefaultBackoff waits 100ms, 200ms, 400ms ... up to 5s with 20% jitter.
func DefaultBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		Base:   100 * time.Millisecond,
		Max:    5 * time.Second,
		Factor: 2.0,
		Jitter: 0.2,
	}
}

func (b *ExponentialBackoff) Next(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(b.Base) * math.Pow(b.Factor, float64(attempt))
	if b.Max > 0 && (delay > float64(b.Max) || math.IsInf(delay, 1)) {
		delay = float64(b.Max)
	}

	if b.Jitter > 0 {
		delay += delay * (rand.Float64()*2 - 1) * b.Jitter
	}
	if delay < 0 {
		return 0
	}
	return time.Duration(delay)
}

// ConstantBackoff always waits the same duration.
type ConstantBackoff time.Duration

func (b ConstantBackoff) Next(int) time.Duration {
	return time.Duration(b)
}
