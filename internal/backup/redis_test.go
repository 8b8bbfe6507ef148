package backup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SupplySentinel/internal/model"
)

func newMiniRedisStore(t *testing.T, key string) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), key)
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestRedisStore_MissingKeyIsEmpty(t *testing.T) {
	s, _ := newMiniRedisStore(t, "")

	snap, err := s.Read(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestRedisStore_WriteThenRead(t *testing.T) {
	s, mr := newMiniRedisStore(t, "")
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Write(context.Background(), NewSnapshot(testSeries(), now)))
	assert.True(t, mr.Exists(DefaultRedisKey))
	assert.Zero(t, mr.TTL(DefaultRedisKey), "backup never expires")

	snap, err := s.Read(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, model.SourceLive, snap.Source)
	assert.True(t, now.Equal(snap.LastSynced))
	require.Len(t, snap.Emissions, 2)
	assert.Equal(t, "2025-06-01", snap.Emissions[0].Period.String())
	assert.Equal(t, -60.0, snap.Emissions[0].BurntAmount)
}

func TestRedisStore_WriteReplacesSnapshot(t *testing.T) {
	s, mr := newMiniRedisStore(t, "custom:key")
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, NewSnapshot(testSeries(), time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC))))
	later := model.NewEmissionSeries([]model.EmissionRecord{{Period: model.MustDate("2025-06-02"), BurntAmount: -5}}, time.Time{})
	require.NoError(t, s.Write(ctx, NewSnapshot(later, time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC))))

	snap, err := s.Read(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Emissions, 1)
	assert.Equal(t, "2025-06-02", snap.Emissions[0].Period.String())
	assert.True(t, mr.Exists("custom:key"))
	assert.False(t, mr.Exists(DefaultRedisKey))
}

func TestRedisStore_CorruptValue(t *testing.T) {
	s, mr := newMiniRedisStore(t, "")
	require.NoError(t, mr.Set(DefaultRedisKey, "{not json"))

	_, err := s.Read(context.Background())
	assert.ErrorContains(t, err, "unmarshal")
}

func TestRedisStore_DefaultKey(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()

	assert.Equal(t, DefaultRedisKey, NewRedisStore(client, "").key)
	assert.Equal(t, "custom", NewRedisStore(client, "custom").key)
}

func TestRedisStore_UnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	s := NewRedisStore(client, "")
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := s.Read(ctx)
	assert.Error(t, err)

	err = s.Write(ctx, NewSnapshot(testSeries(), time.Now()))
	assert.Error(t, err)
}

func TestRedisStore_RejectsEmptySnapshot(t *testing.T) {
	s := NewRedisStore(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), "")
	defer s.Close()

	assert.ErrorIs(t, s.Write(context.Background(), nil), ErrEmptySnapshot)
}
