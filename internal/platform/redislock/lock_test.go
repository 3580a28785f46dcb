package redislock

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "lock:org1:proj1:business_plan", Key("org1", " proj1 ", "", "business_plan"))
}

func TestLocalLockerExclusive(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	first, ok, err := l.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must be refused")

	require.NoError(t, first.Unlock(ctx))
	assert.ErrorIs(t, first.Unlock(ctx), ErrNotHeld)

	_, ok, err = l.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalLockerExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	l := &localLocker{held: map[string]localEntry{}, clock: func() time.Time { return now }}

	stale, ok, _ := l.TryLock(ctx, "k", time.Second)
	require.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok, _ = l.TryLock(ctx, "k", time.Second)
	assert.True(t, ok, "expired lock is reclaimable")
	assert.ErrorIs(t, stale.Unlock(ctx), ErrNotHeld, "stale holder cannot release the new owner")
}

func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis lock tests")
	}
	ctx := context.Background()
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	defer rdb.Close()

	l := NewRedisLocker(rdb)
	key := Key("test", time.Now().Format(time.RFC3339Nano))
	lock, ok, err := l.TryLock(ctx, key, 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, key, 5*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, lock.Unlock(ctx))
}
