// Package retry runs operations again after transient failures.
package retry

import (
	"context"
	"time"

	"git.home.luguber.info/inful/teadocs/internal/config"
)

// Policy holds backoff settings. It is immutable after construction.
type Policy struct {
	Mode       config.BackoffMode
	Initial    time.Duration
	Max        time.Duration
	MaxRetries int // attempts after the first failure
}

// DefaultPolicy is linear from 250ms, capped at 2s, with two retries.
func DefaultPolicy() Policy {
	return Policy{Mode: config.BackoffLinear, Initial: config.DefaultRetryDelay, Max: 2 * time.Second, MaxRetries: config.DefaultNotifyRetries}
}

// FromNotify builds the publish policy of cfg. A negative max_retries
// disables retries; zero values fall back to DefaultPolicy.
func FromNotify(cfg config.NotifyConfig) Policy {
	p := DefaultPolicy()
	switch {
	case cfg.MaxRetries < 0:
		p.MaxRetries = 0
	case cfg.MaxRetries > 0:
		p.MaxRetries = cfg.MaxRetries
	}
	if cfg.RetryDelay > 0 {
		p.Initial = cfg.RetryDelay
	}
	if cfg.Backoff != "" {
		p.Mode = config.NormalizeBackoff(string(cfg.Backoff))
	}
	if p.Initial > p.Max {
		p.Max = p.Initial
	}
	return p
}

// Delay returns the wait before retry n (1-based).
func (p Policy) Delay(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	var d time.Duration
	switch p.Mode {
	case config.BackoffFixed:
		return p.Initial
	case config.BackoffExponential:
		if n > 30 {
			return p.Max
		}
		d = p.Initial * (1 << (n - 1))
	default:
		d = time.Duration(n) * p.Initial
	}
	if d > p.Max {
		return p.Max
	}
	return d
}

// Do calls fn until it succeeds, the retries are used up or ctx is done.
// onRetry, when set, observes every failure that will be retried. The last
// error is returned.
func (p Policy) Do(ctx context.Context, fn func(context.Context) error, onRetry func(n int, err error)) error {
	err := fn(ctx)
	for n := 1; err != nil && n <= p.MaxRetries; n++ {
		if onRetry != nil {
			onRetry(n, err)
		}
		t := time.NewTimer(p.Delay(n))
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
		err = fn(ctx)
	}
	return err
}
