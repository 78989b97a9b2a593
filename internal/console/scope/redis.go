package scope

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"go.agentconsole.tech/internal/common/metrics"
)

// DefaultRedisPrefix is the key prefix used when none is configured
const DefaultRedisPrefix = "agentconsole:scope:"

// DefaultLockTTL bounds how long a crashed replica can hold a scope lock
const DefaultLockTTL = 30 * time.Second

const lockRetryInterval = 20 * time.Millisecond

// releaseScript deletes the lock only if this holder still owns it
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisStore stores snapshots in Redis so that every console replica sees
// the same navigation state. Keys expire after the configured TTL, which is
// refreshed on every save.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	lockTTL time.Duration
	locks   keyedLocks
}

// NewRedisStore creates a new Redis scope store from an existing client
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}

	return &RedisStore{
		client:  client,
		prefix:  prefix,
		ttl:     ttl,
		lockTTL: DefaultLockTTL,
	}
}

// SetLockTTL sets the expiry of scope locks. It must exceed the longest
// backend call made while a scope is held.
func (s *RedisStore) SetLockTTL(ttl time.Duration) {
	if ttl > 0 {
		s.lockTTL = ttl
	}
}

// Get retrieves a snapshot
func (s *RedisStore) Get(ctx context.Context, id string) (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	data, err := s.client.Get(ctx, s.prefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		metrics.ScopeStoreErrors.WithLabelValues("redis", "get").Inc()
		return nil, fmt.Errorf("failed to get scope: %w", err)
	}

	if len(data) == 0 {
		return nil, nil
	}

	return decode(data)
}

// Save stores a snapshot
func (s *RedisStore) Save(ctx context.Context, snap *Snapshot) error {
	data, err := encode(snap)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.client.Set(ctx, s.prefix+snap.ID, data, s.ttl).Err(); err != nil {
		metrics.ScopeStoreErrors.WithLabelValues("redis", "save").Inc()
		return fmt.Errorf("failed to save scope: %w", err)
	}

	return nil
}

// Lock takes the scope lock shared by all replicas using SET NX PX.
// Requests on this replica queue locally first so only one of them polls
// Redis at a time.
func (s *RedisStore) Lock(ctx context.Context, id string) (func(), error) {
	unlockLocal, err := s.locks.lock(ctx, id)
	if err != nil {
		return nil, err
	}

	key := s.prefix + id + ":lock"
	token := uuid.NewString()

	ticker := time.NewTicker(lockRetryInterval)
	defer ticker.Stop()

	for {
		ok, err := s.client.SetNX(ctx, key, token, s.lockTTL).Result()
		if err != nil {
			unlockLocal()
			metrics.ScopeStoreErrors.WithLabelValues("redis", "lock").Inc()
			return nil, fmt.Errorf("failed to lock scope: %w", err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			unlockLocal()
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := releaseScript.Run(ctx, s.client, []string{key}, token).Err(); err != nil {
			metrics.ScopeStoreErrors.WithLabelValues("redis", "unlock").Inc()
			slog.Warn("Failed to release scope lock", "key", key, "error", err)
		}
		unlockLocal()
	}, nil
}

// Ping checks the Redis connection
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
