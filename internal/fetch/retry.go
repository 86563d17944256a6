package fetch

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// backoffPolicy computes jittered exponential delays between attempts.
type backoffPolicy struct {
	baseDelay time.Duration
	maxDelay  time.Duration
}

func newBackoffPolicy(base, max time.Duration) *backoffPolicy {
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	if max <= 0 {
		max = 8 * time.Second
	}
	return &backoffPolicy{baseDelay: base, maxDelay: max}
}

// Delay returns the wait before attempt n+1 (attempt counts from 1).
// The delay doubles each attempt up to the cap, with up to half of it
// replaced by random jitter.
func (p *backoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	half := time.Duration(delay) / 2
	return half + randomJitter(half)
}

// Wait sleeps for the attempt's delay, returning early if ctx ends.
func (p *backoffPolicy) Wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(p.Delay(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
