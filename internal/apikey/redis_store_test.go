package apikey

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/chenpu17/cc-gw-sub001/internal/model"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, "cc-gw-test")
}

func TestRedisStore_RegisterAndGet(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()
	hash := HashToken("pepper", "sk-live")

	require.NoError(t, s.Register(ctx, hash, "key-1", false))

	k, err := s.Get(ctx, hash)
	require.NoError(t, err)
	require.Equal(t, "key-1", k.ID)
	require.False(t, k.Disabled)
}

func TestRedisStore_GetNotFound(t *testing.T) {
	s := newTestRedisStore(t)
	_, err := s.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestRedisStore_RecordUsageIncrementsViaIDIndex(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()
	hash := HashToken("pepper", "sk-live")
	require.NoError(t, s.Register(ctx, hash, "key-1", false))

	require.NoError(t, s.RecordUsage(ctx, "key-1", model.TokenUsage{InputTokens: 4, OutputTokens: 9}))
	require.NoError(t, s.RecordUsage(ctx, "key-1", model.TokenUsage{InputTokens: 1, OutputTokens: 1}))

	k, err := s.Get(ctx, hash)
	require.NoError(t, err)
	require.EqualValues(t, 2, k.RequestCount)
	require.EqualValues(t, 5, k.InputTokens)
	require.EqualValues(t, 10, k.OutputTokens)
	require.False(t, k.LastUsedAt.IsZero())
}

func TestRedisStore_Wildcard(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()
	hash := HashToken("pepper", "")
	require.NoError(t, s.Register(ctx, hash, "wildcard-key", false))
	s.SetWildcard(hash)

	k, err := s.Wildcard(ctx)
	require.NoError(t, err)
	require.True(t, k.Wildcard)
	require.Equal(t, "wildcard-key", k.ID)
}

func TestRedisStore_RecordUsageUnknownKeyFails(t *testing.T) {
	s := newTestRedisStore(t)
	err := s.RecordUsage(context.Background(), "missing", model.TokenUsage{})
	require.ErrorIs(t, err, ErrKeyNotFound)
}
