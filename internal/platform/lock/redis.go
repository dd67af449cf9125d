package lock

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/planforge-backend/internal/platform/logger"
)

// Deletes the key only while it still carries our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

type Redis struct {
	log    *logger.Logger
	rdb    goredis.UniversalClient
	prefix string
}

func NewRedis(rdb goredis.UniversalClient, log *logger.Logger) (*Redis, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Redis{log: log.With("service", "RedisLocker"), rdb: rdb, prefix: "planforge:lock:"}, nil
}

func (r *Redis) TryAcquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	tok := newToken()
	full := r.prefix + key
	ok, err := r.rdb.SetNX(ctx, full, tok, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	if !ok {
		return nil, ErrHeld
	}
	return &redisLease{r: r, key: key, full: full, token: tok}, nil
}

type redisLease struct {
	r     *Redis
	key   string
	full  string
	token string
}

func (l *redisLease) Key() string { return l.key }

func (l *redisLease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.r.rdb, []string{l.full}, l.token).Err(); err != nil && err != goredis.Nil {
		l.r.log.Warn("lock release failed", "key", l.key, "error", err)
		return err
	}
	return nil
}
