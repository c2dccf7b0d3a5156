package tokenstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsdesk/console/internal/domain"
	redisclient "github.com/newsdesk/console/internal/redis"
	"github.com/newsdesk/console/internal/tokenstore"
)

func newTestRedisStore(t *testing.T, ttl time.Duration) (*tokenstore.RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redisclient.NewClient(redisclient.Config{
		Addr:         mr.Addr(),
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	t.Cleanup(func() {
		require.NoError(t, client.Close())
	})

	return tokenstore.NewRedisStore(client.RDB, "client-1", ttl), mr
}

func TestRedisStore_SaveWritesBothKeys(t *testing.T) {
	s, mr := newTestRedisStore(t, 0)

	require.NoError(t, s.Save(context.Background(), samplePair()))

	access, err := mr.Get("newsdesk:tokens:client-1:accessToken")
	require.NoError(t, err)
	assert.Equal(t, "access-abc", access)
	refresh, err := mr.Get("newsdesk:tokens:client-1:refreshToken")
	require.NoError(t, err)
	assert.Equal(t, "refresh-xyz", refresh)
	assert.Zero(t, mr.TTL("newsdesk:tokens:client-1:accessToken"))
}

func TestRedisStore_SaveAppliesTTL(t *testing.T) {
	s, mr := newTestRedisStore(t, time.Hour)

	require.NoError(t, s.Save(context.Background(), samplePair()))

	assert.Equal(t, time.Hour, mr.TTL(tokenstore.RedisKey("client-1", domain.AccessTokenKey)))
	assert.Equal(t, time.Hour, mr.TTL(tokenstore.RedisKey("client-1", domain.RefreshTokenKey)))

	mr.FastForward(2 * time.Hour)

	got, err := s.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisStore_AccessToken(t *testing.T) {
	t.Run("missing key returns empty", func(t *testing.T) {
		s, _ := newTestRedisStore(t, 0)

		got, err := s.AccessToken(context.Background())

		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("round trip", func(t *testing.T) {
		s, _ := newTestRedisStore(t, 0)
		require.NoError(t, s.Save(context.Background(), samplePair()))

		got, err := s.AccessToken(context.Background())

		require.NoError(t, err)
		assert.Equal(t, "access-abc", got)
	})
}

func TestRedisStore_Clear(t *testing.T) {
	s, mr := newTestRedisStore(t, 0)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, samplePair()))

	require.NoError(t, s.Clear(ctx))
	require.NoError(t, s.Clear(ctx))

	assert.False(t, mr.Exists(tokenstore.RedisKey("client-1", domain.AccessTokenKey)))
	assert.False(t, mr.Exists(tokenstore.RedisKey("client-1", domain.RefreshTokenKey)))
}

func TestRedisStore_ServerDown(t *testing.T) {
	s, mr := newTestRedisStore(t, 0)
	mr.Close()
	ctx := context.Background()

	_, err := s.AccessToken(ctx)
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.ErrorIs(t, s.Save(ctx, samplePair()), domain.ErrStorageUnavailable)
	assert.ErrorIs(t, s.Clear(ctx), domain.ErrStorageUnavailable)
}
