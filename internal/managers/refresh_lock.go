package managers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
)

// RefreshLocker serializes token refreshes per integration. Providers that
// invalidate a refresh token on first use would otherwise race when two
// overlapping executions refresh the same credential.
type RefreshLocker interface {
	Lock(ctx context.Context, integrationID string) (func(), error)
}

// MutexRefreshLocker is the in-process fallback used when Redis is not
// configured. It only protects executions within one process.
type MutexRefreshLocker struct {
	mu      sync.Mutex
	mutexes map[string]*sync.Mutex
}

func NewMutexRefreshLocker() *MutexRefreshLocker {
	return &MutexRefreshLocker{
		mutexes: make(map[string]*sync.Mutex),
	}
}

func (l *MutexRefreshLocker) Lock(ctx context.Context, integrationID string) (func(), error) {
	l.mu.Lock()
	mutex, ok := l.mutexes[integrationID]
	if !ok {
		mutex = &sync.Mutex{}
		l.mutexes[integrationID] = mutex
	}
	l.mu.Unlock()

	mutex.Lock()

	return mutex.Unlock, nil
}

const (
	redisLockTTL           = 30 * time.Second
	redisLockRetryInterval = 100 * time.Millisecond
)

// RedisRefreshLocker coordinates refreshes across processes with a SETNX
// lease keyed by integration id.
type RedisRefreshLocker struct {
	client *redis.Client
}

func NewRedisRefreshLocker(client *redis.Client) *RedisRefreshLocker {
	return &RedisRefreshLocker{client: client}
}

func (l *RedisRefreshLocker) Lock(ctx context.Context, integrationID string) (func(), error) {
	key := "chainreact:refresh-lock:" + integrationID
	token := xid.New().String()

	for {
		acquired, err := l.client.SetNX(ctx, key, token, redisLockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire redis refresh lock: %w", err)
		}

		if acquired {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(redisLockRetryInterval):
		}
	}

	unlock := func() {
		// Release only if we still hold the lease.
		current, err := l.client.Get(context.Background(), key).Result()
		if err != nil || current != token {
			return
		}

		if err := l.client.Del(context.Background(), key).Err(); err != nil {
			log.Warn().Err(err).Str("integration_id", integrationID).Msg("Failed to release refresh lock")
		}
	}

	return unlock, nil
}
