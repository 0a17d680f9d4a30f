package client

import (
	"math"
	"time"
)

// ReconnectPolicy governs the backoff schedule between reconnect
// attempts after abnormal closures. Attempt counting resets to zero on
// every successful connection.
//
// The delay formula is BaseDelay * attempt (linear) when Multiplier is
// 1 or unset, and BaseDelay * Multiplier^(attempt-1) otherwise.
type ReconnectPolicy struct {
	Attempt     int
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// DefaultReconnectPolicy returns the default backoff schedule:
// 2s, 4s, 6s, 8s, 10s, then exhausted.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts: 5,
		BaseDelay:   2 * time.Second,
		Multiplier:  1,
	}
}

// NextDelay advances the attempt counter and returns the delay before
// the next attempt. ok is false once the cap is exceeded; no further
// attempts may be scheduled after that.
func (p *ReconnectPolicy) NextDelay() (delay time.Duration, ok bool) {
	p.Attempt++
	if p.Attempt > p.MaxAttempts {
		return 0, false
	}
	if p.Multiplier > 1 {
		return time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(p.Attempt-1))), true
	}
	return p.BaseDelay * time.Duration(p.Attempt), true
}

// Reset clears the attempt counter after a successful connection
func (p *ReconnectPolicy) Reset() {
	p.Attempt = 0
}
