package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestLockerExcludesSecondHolder(t *testing.T) {
	ctx := context.Background()
	_, client := newTestClient(t)
	locker := NewLocker(client)
	key := TransitionLockKey(time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "servicechange:transition:2024-03-04:lock", key)

	first, err := locker.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, key, time.Minute)
	require.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, first.Release(ctx))
	second, err := locker.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.NoError(t, second.Release(ctx))
}

func TestLockReleaseKeepsForeignOwner(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	locker := NewLocker(client)

	lock, err := locker.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	other, err := locker.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.NoError(t, lock.Release(ctx))

	_, err = locker.Acquire(ctx, "k", time.Minute)
	require.ErrorIs(t, err, ErrLockHeld)
	require.NoError(t, other.Release(ctx))
}

func TestDoneMarkerExpires(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	locker := NewLocker(client)
	key := TransitionDoneKey(time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "servicechange:transition:2024-03-04:done", key)

	done, err := locker.Done(ctx, key)
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, locker.MarkDone(ctx, key, time.Hour))
	done, err = locker.Done(ctx, key)
	require.NoError(t, err)
	assert.True(t, done)

	mr.FastForward(2 * time.Hour)
	done, err = locker.Done(ctx, key)
	require.NoError(t, err)
	assert.False(t, done)
}

func TestJSONRoundTripAndMiss(t *testing.T) {
	ctx := context.Background()
	_, client := newTestClient(t)

	var got []string
	hit, err := GetJSON(ctx, client, "options", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, SetJSON(ctx, client, "options", []string{"a", "b"}, time.Minute))
	hit, err = GetJSON(ctx, client, "options", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []string{"a", "b"}, got)
}
