package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/zatekoja/clinicalorders/internal/domain/providers"
	redisclient "github.com/zatekoja/clinicalorders/internal/infrastructure/clients/redis"
	apperrors "github.com/zatekoja/clinicalorders/pkg/errors"
)

const lockKeyPrefix = "orders:lock:"

// releaseScript deletes the lock only if it still holds our token, so a call that
// outlived its TTL cannot release a lock another instance has taken since.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisSessionLocker is a SET NX lock shared by every API instance using the same Redis.
type RedisSessionLocker struct {
	client *redisclient.Client
	ttl    time.Duration
}

var _ providers.SessionLocker = (*RedisSessionLocker)(nil)

// NewRedisSessionLocker creates a locker whose locks expire after ttl.
func NewRedisSessionLocker(client *redisclient.Client, ttl time.Duration) *RedisSessionLocker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisSessionLocker{client: client, ttl: ttl}
}

func lockKey(sessionID string) string {
	return lockKeyPrefix + sessionID
}

func (l *RedisSessionLocker) TryLock(ctx context.Context, sessionID string) (providers.Unlock, bool, error) {
	key := lockKey(sessionID)
	token := uuid.NewString()

	ok, err := l.client.Client().SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, apperrors.NewInternalError("failed to acquire session lock", fmt.Errorf("setnx %s: %w", key, err))
	}
	if !ok {
		return nil, false, nil
	}

	unlock := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client.Client(), []string{key}, token).Err(); err != nil {
			return fmt.Errorf("failed to release session lock: %w", err)
		}
		return nil
	}
	return unlock, true, nil
}
