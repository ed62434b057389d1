package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisKV(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	kv := NewRedisKV(rdb)
	ctx := context.Background()

	_, err := kv.Get(ctx, "places:ber")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, kv.Set(ctx, "places:berlin", `[{"placeId":"a"}]`, time.Minute))
	require.NoError(t, kv.Set(ctx, "places:bern", `[]`, 0))
	require.NoError(t, kv.Set(ctx, "other:berlin", `x`, 0))

	v, err := kv.Get(ctx, "places:berlin")
	require.NoError(t, err)
	assert.Equal(t, `[{"placeId":"a"}]`, v)

	keys, err := kv.ScanKeys(ctx, "places:*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"places:berlin", "places:bern"}, keys)

	mr.FastForward(2 * time.Minute)
	_, err = kv.Get(ctx, "places:berlin")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryKV(t *testing.T) {
	kv := NewMemoryKV()
	now := time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC)
	kv.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "places:1:Haupt/strasse", "a", time.Minute))
	require.NoError(t, kv.Set(ctx, "places:1:Hafen", "b", 0))
	require.NoError(t, kv.Set(ctx, "places:2:Hafen", "c", 0))

	keys, err := kv.ScanKeys(ctx, "places:1:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"places:1:Hafen", "places:1:Haupt/strasse"}, keys)

	keys, err = kv.ScanKeys(ctx, "places:?:Hafen")
	require.NoError(t, err)
	assert.Equal(t, []string{"places:1:Hafen", "places:2:Hafen"}, keys)

	keys, err = kv.ScanKeys(ctx, "places:1:Ha[u]pt*")
	require.NoError(t, err)
	assert.Empty(t, keys, "brackets match literally")

	now = now.Add(time.Minute)
	_, err = kv.Get(ctx, "places:1:Haupt/strasse")
	assert.ErrorIs(t, err, ErrMiss)
	v, err := kv.Get(ctx, "places:1:Hafen")
	require.NoError(t, err)
	assert.Equal(t, "b", v)
}
