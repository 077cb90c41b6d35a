// internal/service/migration/lock.go
package migration

import (
	"context"
	"fmt"
	"time"

	xerrors "crm-service/internal/pkg/errors"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

// LockKey guards live migration runs.
const LockKey = "crm:migration:conversations:lock"

// Locker serializes live runs across processes.
type Locker interface {
	// Acquire returns xerrors.ErrLocked when another holder owns key.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

// releaseScript deletes the key only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	client redis.UniversalClient
}

func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	token := ulid.Make().String()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s is held", xerrors.ErrLocked, key)
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("failed to release lock %s: %w", key, err)
		}
		return nil
	}, nil
}
