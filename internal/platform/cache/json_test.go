package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Count int `json:"count"`
}

func TestJSONCacheFetchAndBump(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	c := NewJSONCache(client, "inventory", time.Minute)
	ctx := context.Background()

	key, err := c.BuildKey(ctx, "snapshot")
	require.NoError(t, err)
	require.Equal(t, "inventory:snapshot:v1", key)

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return sample{Count: calls}, nil
	}

	var got sample
	require.NoError(t, c.FetchJSON(ctx, key, &got, loader))
	require.Equal(t, 1, got.Count)
	require.NoError(t, c.FetchJSON(ctx, key, &got, loader))
	require.Equal(t, 1, got.Count)
	require.Equal(t, 1, calls)

	require.NoError(t, c.Bump(ctx))
	key, err = c.BuildKey(ctx, "snapshot")
	require.NoError(t, err)
	require.Equal(t, "inventory:snapshot:v2", key)

	hit, err := c.Get(ctx, key, &got)
	require.NoError(t, err)
	require.False(t, hit)
}

func TestJSONCacheNilClientPassThrough(t *testing.T) {
	c := NewJSONCache(nil, "inventory", time.Minute)
	var got sample
	err := c.FetchJSON(context.Background(), "k", &got, func(context.Context) (any, error) {
		return sample{Count: 7}, nil
	})
	require.NoError(t, err)
	require.Equal(t, 7, got.Count)
}
