package delivery

import (
	"context"
	"math/rand"
	"time"

	logx "tgproxy/pkg/logx"
)

const (
	DefaultMaxAttempts = 15
	DefaultBackoffBase = time.Second
	DefaultMinWait     = 2 * time.Second
	DefaultMaxWait     = 120 * time.Second
)

// Policy retries a delivery attempt on Transient failures with randomized
// exponential backoff.
//
// The wait before attempt n+1 is drawn uniformly from
// [MinWait, clamp(Base*2^(n-1), MinWait, MaxWait)].
type Policy struct {
	MaxAttempts int
	Base        time.Duration
	MinWait     time.Duration
	MaxWait     time.Duration

	Log logx.Logger
}

// Attempt performs one delivery attempt. attempt starts at 1.
type Attempt func(ctx context.Context, attempt int) error

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		Base:        DefaultBackoffBase,
		MinWait:     DefaultMinWait,
		MaxWait:     DefaultMaxWait,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Base <= 0 {
		p.Base = DefaultBackoffBase
	}
	if p.MinWait < 0 {
		p.MinWait = 0
	}
	if p.MaxWait < p.MinWait {
		p.MaxWait = p.MinWait
	}
	return p
}

// Wait returns the backoff to sleep after the given failed attempt.
func (p Policy) Wait(attempt int) time.Duration {
	p = p.normalized()
	if attempt < 1 {
		attempt = 1
	}
	high := p.Base
	for i := 1; i < attempt; i++ {
		high *= 2
		if high >= p.MaxWait || high <= 0 {
			high = p.MaxWait
			break
		}
	}
	if high > p.MaxWait {
		high = p.MaxWait
	}
	if high < p.MinWait {
		high = p.MinWait
	}
	span := high - p.MinWait
	if span <= 0 {
		return p.MinWait
	}
	return p.MinWait + time.Duration(rand.Float64()*float64(span))
}

// Do runs fn until it succeeds, fails with a non-Transient error, or the
// attempt budget is spent. On exhaustion the last Transient error is returned
// unchanged. Cancellation of ctx during backoff returns ctx.Err().
func (p Policy) Do(ctx context.Context, fn Attempt) error {
	p = p.normalized()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		lastErr = err
		if attempt >= p.MaxAttempts {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := p.Wait(attempt)
		p.Log.Warn("delivery attempt failed; retrying",
			logx.Int("attempt", attempt),
			logx.Int("max_attempts", p.MaxAttempts),
			logx.Duration("backoff", wait),
			logx.Err(err),
		)
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
	p.Log.Warn("delivery retries exhausted", logx.Int("attempts", p.MaxAttempts), logx.Err(lastErr))
	return lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
