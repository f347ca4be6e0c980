package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestThrottle(t *testing.T, perMinute int) (*RedisThrottle, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	th := NewRedisThrottle("redis://"+mr.Addr(), perMinute, discardLogger())
	t.Cleanup(func() { _ = th.Close() })

	fixed := time.Date(2026, 1, 1, 12, 0, 5, 0, time.UTC)
	th.now = func() time.Time { return fixed }
	return th, mr
}

func TestRedisThrottle_Allow(t *testing.T) {
	th, mr := newTestThrottle(t, 2)
	ctx := context.Background()

	require.NoError(t, th.Allow(ctx, "1.2.3.4"))
	require.NoError(t, th.Allow(ctx, "1.2.3.4"))
	err := th.Allow(ctx, "1.2.3.4")
	assert.True(t, errors.Is(err, ErrThrottled))

	// other clients have their own budget
	assert.NoError(t, th.Allow(ctx, "5.6.7.8"))

	keys := mr.Keys()
	require.Len(t, keys, 2)
	for _, k := range keys {
		assert.True(t, mr.TTL(k) > 0, "key %s should expire", k)
	}
}

func TestRedisThrottle_NewWindow(t *testing.T) {
	th, _ := newTestThrottle(t, 1)
	ctx := context.Background()

	require.NoError(t, th.Allow(ctx, "c"))
	require.ErrorIs(t, th.Allow(ctx, "c"), ErrThrottled)

	next := th.now().Add(time.Minute)
	th.now = func() time.Time { return next }
	assert.NoError(t, th.Allow(ctx, "c"))
}

func TestRedisThrottle_Ping(t *testing.T) {
	th, mr := newTestThrottle(t, 1)
	require.NoError(t, th.Ping(context.Background()))

	mr.Close()
	assert.ErrorContains(t, th.Ping(context.Background()), "redis ping failed")
	assert.ErrorContains(t, th.Allow(context.Background(), "c"), "redis throttle failed")
}

func TestRedisThrottle_BareAddress(t *testing.T) {
	mr := miniredis.RunT(t)
	th := NewRedisThrottle(mr.Addr(), 1, discardLogger())
	defer func() { _ = th.Close() }()

	assert.NoError(t, th.Ping(context.Background()))
}

func TestRedisThrottle_WaitForConnection(t *testing.T) {
	th, _ := newTestThrottle(t, 1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, th.WaitForConnection(ctx))
}
