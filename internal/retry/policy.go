// Package retry holds the exponential backoff policy shared by renewal
// payment retries, webhook redelivery and outbox dispatch.
package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/flexprice/billing/internal/config"
)

// Policy computes the delay before retry n as base*2^n capped at cap,
// randomised by +/- jitter and never above cap
type Policy struct {
	base   time.Duration
	cap    time.Duration
	jitter float64
}

func NewPolicy(cfg config.BackoffConfig) *Policy {
	return &Policy{
		base:   cfg.Base,
		cap:    cfg.Cap,
		jitter: cfg.Jitter,
	}
}

// Delay returns the wait before the retry that follows the n-th failure
func (p *Policy) Delay(n int) time.Duration {
	if n < 0 {
		n = 0
	}

	b := p.exponential(p.jitter)
	var d time.Duration
	for i := 0; i <= n; i++ {
		d = b.NextBackOff()
	}

	if d > p.cap {
		d = p.cap
	}
	return d
}

// NextRetryAt returns now + Delay(n)
func (p *Policy) NextRetryAt(now time.Time, n int) time.Time {
	return now.Add(p.Delay(n))
}

// Unjittered returns min(base*2^n, cap), the centre of the jitter window
func (p *Policy) Unjittered(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	b := p.exponential(0)
	var d time.Duration
	for i := 0; i <= n; i++ {
		d = b.NextBackOff()
	}
	return d
}

// BackOff returns a fresh backoff.BackOff starting at base, for use with
// backoff.Retry. maxRetries bounds the number of retries after the first try.
func (p *Policy) BackOff(maxRetries int) backoff.BackOff {
	return backoff.WithMaxRetries(p.exponential(p.jitter), uint64(maxRetries))
}

func (p *Policy) exponential(jitter float64) *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.base,
		RandomizationFactor: jitter,
		Multiplier:          2,
		MaxInterval:         p.cap,
		// attempts are bounded by the callers, never by wall time
		MaxElapsedTime: 0,
		Stop:           backoff.Stop,
		Clock:          backoff.SystemClock,
	}
	b.Reset()
	return b
}
