package realtime

import (
	"math/rand/v2"
	"time"
)

// Backoff computes reconnect delays: exponential growth from Base capped at
// Max, spread by ±Jitter, never below Floor.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Floor  time.Duration
	Jitter float64

	// random returns a value in [0,1); nil means math/rand/v2
	random func() float64
}

// NewBackoff creates a backoff policy with the given bounds and ±20% jitter
func NewBackoff(base, maxDelay time.Duration) Backoff {
	return Backoff{
		Base:   base,
		Max:    maxDelay,
		Floor:  time.Second,
		Jitter: 0.2,
	}
}

// Delay returns the un-jittered delay for the n-th consecutive attempt
// (1-based): min(Max, Base * 2^(attempt-1)).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := b.Base
	for i := 1; i < attempt; i++ {
		if delay >= b.Max {
			break
		}
		delay *= 2
	}
	if delay > b.Max {
		delay = b.Max
	}
	return delay
}

// Next returns the jittered delay for the n-th consecutive attempt
func (b Backoff) Next(attempt int) time.Duration {
	delay := float64(b.Delay(attempt))
	if b.Jitter > 0 {
		r := b.rand()
		delay += delay * b.Jitter * (2*r - 1)
	}
	d := time.Duration(delay)
	if d < b.Floor {
		d = b.Floor
	}
	return d
}

func (b Backoff) rand() float64 {
	if b.random != nil {
		return b.random()
	}
	return rand.Float64()
}
