package main

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"climate-trends-service/cache"
	"climate-trends-service/services"
)

func TestDropReferenceListsSharedStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := cache.NewRedisStoreFromClient(client, "climate:")

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, services.LocationsCacheKey, []byte("[]"), cache.NoExpiry))
	require.NoError(t, store.Set(ctx, services.MetricsCacheKey, []byte("[]"), cache.NoExpiry))

	core, logs := observer.New(zap.InfoLevel)
	dropReferenceLists(ctx, store, zap.New(core))

	assert.False(t, mr.Exists("climate:"+services.LocationsCacheKey))
	assert.False(t, mr.Exists("climate:"+services.MetricsCacheKey))
	assert.Equal(t, 1, logs.FilterMessage("Dropped cached reference lists").Len())
}

func TestDropReferenceListsLocalStore(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	dropReferenceLists(context.Background(), cache.NewMemoryStore(), zap.New(core))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
	assert.Contains(t, entries[0].Message, "until restart")
}
