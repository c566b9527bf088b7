package connection

import (
	"math"
	"time"
)

const (
	DefaultBaseInterval = 1000 * time.Millisecond
	DefaultMaxInterval  = 10000 * time.Millisecond
	DefaultGrowthFactor = 1.5
)

// Backoff computes reconnection delays. The n-th consecutive failure waits
// min(Base*Factor^n, Max).
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
}

// DefaultBackoff returns the stock reconnect policy.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:   DefaultBaseInterval,
		Max:    DefaultMaxInterval,
		Factor: DefaultGrowthFactor,
	}
}

// Delay returns the wait before the attempt following the n-th consecutive
// failure. n below 1 is treated as 1.
func (b Backoff) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	factor := b.Factor
	if factor < 1 {
		factor = 1
	}

	d := float64(b.Base) * math.Pow(factor, float64(n))
	if b.Max > 0 && (d > float64(b.Max) || math.IsInf(d, 1)) {
		return b.Max
	}
	return time.Duration(d)
}
