// Package lock provides the launch lock that keeps two orchestrator
// processes from racing to deploy or destroy the same service_name. When
// a Redis URL is configured it backs the lock with SETNX + TTL so the
// lock survives across processes/hosts; otherwise it falls back to an
// in-process mutex map, which is all a single-process deployment needs.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ErrAlreadyLocked is returned by TryAcquire when another holder already
// has the lock for a given key.
var ErrAlreadyLocked = fmt.Errorf("lock: already held")

// Locker acquires and releases a named advisory lock.
type Locker interface {
	// TryAcquire attempts to take the lock for key, returning a release
	// function on success or ErrAlreadyLocked if another holder has it.
	TryAcquire(ctx context.Context, key string) (release func(context.Context), err error)
}

// NewLocker returns a Redis-backed Locker when redisURL is non-empty, and
// an in-process Locker otherwise.
func NewLocker(redisURL string, ttl time.Duration, logger *zap.Logger) (Locker, error) {
	if redisURL == "" {
		return newInProcessLocker(), nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("lock: parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	return &redisLocker{client: client, ttl: ttl, logger: logger}, nil
}

// NewRedisLocker builds a Locker around an already-constructed redis
// client — used by tests against miniredis.
func NewRedisLocker(client *redis.Client, ttl time.Duration, logger *zap.Logger) Locker {
	return &redisLocker{client: client, ttl: ttl, logger: logger}
}

type redisLocker struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

const lockKeyPrefix = "tuna:launch-lock:"

func (l *redisLocker) TryAcquire(ctx context.Context, key string) (func(context.Context), error) {
	redisKey := lockKeyPrefix + key
	token := fmt.Sprintf("%d", time.Now().UnixNano())

	ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock: acquiring %q: %w", key, err)
	}
	if !ok {
		return nil, ErrAlreadyLocked
	}

	release := func(releaseCtx context.Context) {
		// Only release if we still hold it (best-effort; a tie-break on
		// value isn't critical here since the lock's job is to avoid
		// concurrent launches on the happy path, not to be a strict
		// distributed mutex with fencing tokens).
		cur, err := l.client.Get(releaseCtx, redisKey).Result()
		if err != nil {
			if err != redis.Nil {
				l.logger.Warn("lock: release check failed", zap.String("key", key), zap.Error(err))
			}
			return
		}
		if cur == token {
			if err := l.client.Del(releaseCtx, redisKey).Err(); err != nil {
				l.logger.Warn("lock: release delete failed", zap.String("key", key), zap.Error(err))
			}
		}
	}
	return release, nil
}

// inProcessLocker is the no-Redis fallback: a set of held keys guarded by
// one mutex. A key stays held for the lifetime of the deploy/destroy call;
// a second TryAcquire on a held key fails with ErrAlreadyLocked instead of
// waiting.
type inProcessLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
	held  map[string]bool
}

func newInProcessLocker() *inProcessLocker {
	return &inProcessLocker{
		locks: make(map[string]*sync.Mutex),
		held:  make(map[string]bool),
	}
}

func (l *inProcessLocker) TryAcquire(ctx context.Context, key string) (func(context.Context), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[key] {
		return nil, ErrAlreadyLocked
	}
	l.held[key] = true

	release := func(context.Context) {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}
	return release, nil
}
