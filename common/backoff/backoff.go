// Package backoff provides a bounded-retry helper around cenkalti/backoff,
// used at the G (Global Store) RPC call sites in globalstore/client; the
// Central Storage (E) backends do not use it. It
// never retries forever: per spec §7, TransientRemote failures bubble up
// to the caller after a bounded number of attempts, and background tasks
// self-heal on the next heartbeat rather than looping here.
package backoff

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy configures the bounded exponential backoff used for a single RPC
// call site.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultPolicy is a sane bound for interactive RPCs: a handful of retries
// over a couple of seconds, never longer.
var DefaultPolicy = Policy{
	InitialInterval: 50 * time.Millisecond,
	MaxInterval:     500 * time.Millisecond,
	MaxElapsedTime:  2 * time.Second,
}

func (p Policy) build(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	eb.MaxInterval = p.MaxInterval
	eb.MaxElapsedTime = p.MaxElapsedTime
	return backoff.WithContext(eb, ctx)
}

// Retry runs fn, retrying transient failures (those for which isTransient
// returns true) under Policy p until it succeeds, a non-transient error is
// returned, the policy's elapsed-time bound is hit, or ctx is cancelled.
func Retry(ctx context.Context, p Policy, isTransient func(error) bool, fn func() error) error {
	op := func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if isTransient != nil && !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(op, p.build(ctx))
}
