package lock

import (
	"context"
	"sync"
	"time"
)

// Local is an in-process Locker for single-instance deployments and tests.
type Local struct {
	wait time.Duration

	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewLocal(wait time.Duration) *Local {
	return &Local{wait: Options{Wait: wait}.withDefaults().Wait, slots: map[string]chan struct{}{}}
}

func (l *Local) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

func (l *Local) Acquire(ctx context.Context, key string) (func(), error) {
	ch := l.slot(key)
	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
	case <-timer.C:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() { once.Do(func() { <-ch }) }, nil
}
