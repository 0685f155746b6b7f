package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInProcessLocker_SecondAcquireFails(t *testing.T) {
	locker := newInProcessLocker()
	ctx := context.Background()

	release, err := locker.TryAcquire(ctx, "tuna-svc-1")
	require.NoError(t, err)

	_, err = locker.TryAcquire(ctx, "tuna-svc-1")
	assert.ErrorIs(t, err, ErrAlreadyLocked)

	release(ctx)

	_, err = locker.TryAcquire(ctx, "tuna-svc-1")
	assert.NoError(t, err)
}

func TestRedisLocker_SecondAcquireFailsUntilReleased(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	locker := NewRedisLocker(client, 30*time.Second, zap.NewNop())
	ctx := context.Background()

	release, err := locker.TryAcquire(ctx, "tuna-svc-2")
	require.NoError(t, err)

	_, err = locker.TryAcquire(ctx, "tuna-svc-2")
	assert.ErrorIs(t, err, ErrAlreadyLocked)

	release(ctx)

	_, err = locker.TryAcquire(ctx, "tuna-svc-2")
	assert.NoError(t, err)
}

func TestRedisLocker_ExpiresAfterTTL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	locker := NewRedisLocker(client, 1*time.Second, zap.NewNop())
	ctx := context.Background()

	_, err = locker.TryAcquire(ctx, "tuna-svc-3")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	_, err = locker.TryAcquire(ctx, "tuna-svc-3")
	assert.NoError(t, err)
}
