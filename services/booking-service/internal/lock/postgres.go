package lock

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/md-rashed-zaman/easybook/libs/db"
)

// sessionConn is a connection that can hold session advisory locks.
type sessionConn interface {
	TryLock(ctx context.Context, key int64) (bool, error)
	Unlock(ctx context.Context, key int64) error
	// Release returns the connection to its pool.
	Release()
	// Destroy closes the connection so any lock it still holds is dropped.
	Destroy()
}

// Postgres uses session advisory locks. Each held key pins one connection,
// so the pool passed in should be reserved for locking and not shared with
// the queries the lock holder runs.
type Postgres struct {
	connect func(context.Context) (sessionConn, error)
	opts    Options
	logger  *slog.Logger
}

func NewPostgres(pool *db.Pool, opts Options, logger *slog.Logger) *Postgres {
	return newPostgres(func(ctx context.Context) (sessionConn, error) {
		conn, err := pool.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		return pgxSession{conn}, nil
	}, opts, logger)
}

func newPostgres(connect func(context.Context) (sessionConn, error), opts Options, logger *slog.Logger) *Postgres {
	return &Postgres{connect: connect, opts: opts.withDefaults(), logger: logger}
}

func (p *Postgres) Acquire(ctx context.Context, key string) (func(), error) {
	deadline := time.Now().Add(p.opts.Wait)
	acquireCtx, cancel := context.WithDeadline(ctx, deadline)
	conn, err := p.connect(acquireCtx)
	cancel()
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("acquire lock connection: %w", err)
	}
	lockKey := advisoryKey(key)

	opts := p.opts
	opts.Wait = time.Until(deadline)
	err = poll(ctx, opts, func(ctx context.Context) (bool, error) {
		return conn.TryLock(ctx, lockKey)
	})
	if err != nil {
		// A try that timed out mid-flight may still have taken the lock.
		conn.Destroy()
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := conn.Unlock(unlockCtx, lockKey); err != nil {
				if p.logger != nil {
					p.logger.Warn("advisory unlock failed; dropping connection", "key", key, "err", err)
				}
				conn.Destroy()
				return
			}
			conn.Release()
		})
	}, nil
}

type pgxSession struct {
	conn *pgxpool.Conn
}

func (s pgxSession) TryLock(ctx context.Context, key int64) (bool, error) {
	var locked bool
	err := s.conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&locked)
	return locked, err
}

func (s pgxSession) Unlock(ctx context.Context, key int64) error {
	var unlocked bool
	if err := s.conn.QueryRow(ctx, `SELECT pg_advisory_unlock($1)`, key).Scan(&unlocked); err != nil {
		return err
	}
	if !unlocked {
		return errors.New("advisory lock was not held")
	}
	return nil
}

func (s pgxSession) Release() { s.conn.Release() }

func (s pgxSession) Destroy() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.conn.Hijack().Close(ctx)
}

func advisoryKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("easybook:" + key))
	return int64(h.Sum64())
}
