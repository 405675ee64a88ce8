// Package lock provides the short-lived mutual exclusion around intake and approval.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when the lock could not be taken within the wait budget.
var ErrTimeout = errors.New("lock wait timed out")

type Locker interface {
	// Acquire blocks until key is held or the wait budget runs out. The
	// returned release func is safe to call more than once.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

type Options struct {
	// Wait bounds how long Acquire blocks.
	Wait time.Duration
	// TTL is how long a distributed lock survives a crashed holder.
	TTL time.Duration
	// Retry is the poll interval while waiting.
	Retry time.Duration
}

func (o Options) withDefaults() Options {
	if o.Wait <= 0 {
		o.Wait = 10 * time.Second
	}
	if o.TTL <= 0 {
		o.TTL = 30 * time.Second
	}
	if o.Retry <= 0 {
		o.Retry = 50 * time.Millisecond
	}
	return o
}

// poll calls try until it succeeds, fails, or the wait budget is spent.
func poll(ctx context.Context, opts Options, try func(context.Context) (bool, error)) error {
	ctx, cancel := context.WithTimeout(ctx, opts.Wait)
	defer cancel()

	ticker := time.NewTicker(opts.Retry)
	defer ticker.Stop()
	for {
		ok, err := try(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ErrTimeout
			}
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ErrTimeout
		case <-ticker.C:
		}
	}
}
