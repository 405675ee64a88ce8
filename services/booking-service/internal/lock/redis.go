package lock

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared across replicas: SET NX PX with a random owner
// token, released only by the owner.
type Redis struct {
	rdb    redis.UniversalClient
	prefix string
	opts   Options
	logger *slog.Logger
}

func NewRedis(rdb redis.UniversalClient, prefix string, opts Options, logger *slog.Logger) *Redis {
	if prefix == "" {
		prefix = "easybook:lock"
	}
	return &Redis{rdb: rdb, prefix: prefix, opts: opts.withDefaults(), logger: logger}
}

func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	full := r.prefix + ":" + key
	owner := uuid.NewString()

	err := poll(ctx, r.opts, func(ctx context.Context) (bool, error) {
		return r.rdb.SetNX(ctx, full, owner, r.opts.TTL).Result()
	})
	if err != nil {
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// Released on a fresh context: the request context may already be cancelled.
			if err := releaseScript.Run(context.Background(), r.rdb, []string{full}, owner).Err(); err != nil && r.logger != nil {
				r.logger.Warn("redis lock release failed", "key", full, "err", err)
			}
		})
	}, nil
}
