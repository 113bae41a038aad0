package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "storefront:marker:order_batch_a@x.io", MarkerKey("order_batch_a@x.io"))
	assert.Equal(t, "storefront:rate_limit:checkout:ip:10.0.0.1", RateLimitKey("ip", "10.0.0.1"))
}

// newTestClient 需要真实 Redis：设置 STOREFRONT_TEST_REDIS_ADDR 后运行。
func newTestClient(t *testing.T) *rd.Client {
	t.Helper()
	addr := os.Getenv("STOREFRONT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("STOREFRONT_TEST_REDIS_ADDR not set")
	}
	rdb := rd.NewClient(&rd.Options{Addr: addr})
	require.NoError(t, rdb.Ping(context.Background()).Err())
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestMarker(t *testing.T) {
	rdb := newTestClient(t)
	ctx := context.Background()
	m := NewMarker(rdb)
	name := "order_batch_" + uuid.NewString()
	t.Cleanup(func() { rdb.Del(ctx, MarkerKey(name)) })

	seen, err := m.Seen(ctx, name)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, m.Mark(ctx, name, time.Minute))
	seen, err = m.Seen(ctx, name)
	require.NoError(t, err)
	assert.True(t, seen)

	ttl := rdb.PTTL(ctx, MarkerKey(name)).Val()
	assert.Greater(t, ttl, time.Duration(0))
}

func TestDelayedQueue(t *testing.T) {
	rdb := newTestClient(t)
	ctx := context.Background()
	key := "storefront:test:delay:" + uuid.NewString()
	t.Cleanup(func() { rdb.Del(ctx, key) })

	now := time.UnixMilli(1_700_000_000_000)
	require.NoError(t, PushDelayed(ctx, rdb, key, "a", now.Add(-time.Second)))
	require.NoError(t, PushDelayed(ctx, rdb, key, "b", now))
	require.NoError(t, PushDelayed(ctx, rdb, key, "c", now.Add(time.Second)))

	items, err := PopDue(ctx, rdb, key, now, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, items)

	n, err := DelayedLen(ctx, rdb, key)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	items, err = PopDue(ctx, rdb, key, now, 10)
	require.NoError(t, err)
	assert.Empty(t, items)
}
