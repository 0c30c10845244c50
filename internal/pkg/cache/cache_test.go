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

func storeContract(t *testing.T, s Store) {
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "plan:BASIC", []byte(`{"type":"BASIC"}`), time.Hour))
	val, ok, err := s.Get(ctx, "plan:BASIC")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"type":"BASIC"}`, string(val))

	require.NoError(t, s.Delete(ctx, "plan:BASIC", "plan:unknown"))
	_, ok, err = s.Get(ctx, "plan:BASIC")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, s.Delete(ctx))
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedisStore(client, "test:")
	storeContract(t, s)

	require.NoError(t, s.Set(context.Background(), "ttl", []byte("x"), time.Minute))
	assert.True(t, mr.Exists("test:ttl"))
	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists("test:ttl"))
}

func TestRedisStoreReportsConnectionErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	_, _, err := NewRedisStore(client, "").Get(context.Background(), "k")
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore(16, time.Hour))
}

func TestMemoryStoreExpires(t *testing.T) {
	s := NewMemoryStore(16, 20*time.Millisecond)
	require.NoError(t, s.Set(context.Background(), "k", []byte("v"), 0))

	assert.Eventually(t, func() bool {
		_, ok, _ := s.Get(context.Background(), "k")
		return !ok
	}, time.Second, 10*time.Millisecond)
}
