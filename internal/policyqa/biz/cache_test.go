package biz

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coverport/policyqa/internal/model"
	"github.com/coverport/policyqa/internal/policyqa/store"
)

// setupTestRedis connects to a local Redis and skips the test when none is
// available.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("redis unavailable, skipping cache tests")
	}

	client.FlushDB(ctx)
	return client
}

func testCacheConfig() *QueryCacheConfig {
	return &QueryCacheConfig{
		Enabled:   true,
		TTL:       1 * time.Hour,
		KeyPrefix: "test:policyqa:",
	}
}

func TestNewQueryCacheDefaults(t *testing.T) {
	cache := NewQueryCache(nil, nil)
	require.NotNil(t, cache)
	assert.False(t, cache.config.Enabled)
	assert.Equal(t, 1*time.Hour, cache.config.TTL)
	assert.Equal(t, "policyqa:query:", cache.config.KeyPrefix)
}

func TestCacheKeyScoping(t *testing.T) {
	cache := NewQueryCache(nil, testCacheConfig())

	policyScope := store.PolicyFilter("POL-1")
	question := "Is water damage covered?"

	// Same tenant, scope, and question hash to the same key.
	assert.Equal(t,
		cache.cacheKey("tenant-a", policyScope, question),
		cache.cacheKey("tenant-a", policyScope, question),
	)

	// Different tenants must never share a key.
	assert.NotEqual(t,
		cache.cacheKey("tenant-a", policyScope, question),
		cache.cacheKey("tenant-b", policyScope, question),
	)

	// Different scopes must never share a key.
	assert.NotEqual(t,
		cache.cacheKey("tenant-a", policyScope, question),
		cache.cacheKey("tenant-a", store.PolicyFilter("POL-2"), question),
	)
	assert.NotEqual(t,
		cache.cacheKey("tenant-a", policyScope, question),
		cache.cacheKey("tenant-a", store.CommunicationFilter(""), question),
	)

	assert.Contains(t, cache.cacheKey("tenant-a", policyScope, question), "test:policyqa:")
}

func TestQueryCacheSetAndGet(t *testing.T) {
	client := setupTestRedis(t)
	defer func() { _ = client.Close() }()

	cache := NewQueryCache(client, testCacheConfig())
	ctx := context.Background()

	scope := store.PolicyFilter("POL-1")
	question := "Is water damage covered?"
	result := &model.QueryResult{
		Answer:     "Yes, up to the stated limit (Page 3, Section: COVERAGE LIMITS).",
		Confidence: 0.82,
		QueryID:    "q-1",
		Citations: []model.Citation{
			{Page: "Page 3", Section: "COVERAGE LIMITS", Excerpt: "Water damage is covered.", ChunkID: "c-1", Score: 0.9},
		},
	}

	require.NoError(t, cache.Set(ctx, "tenant-a", scope, question, result))

	cached, err := cache.Get(ctx, "tenant-a", scope, question)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, result.Answer, cached.Answer)
	assert.Equal(t, result.Confidence, cached.Confidence)
	assert.True(t, cached.Cached)
	require.Len(t, cached.Citations, 1)
	assert.Equal(t, "c-1", cached.Citations[0].ChunkID)

	// Another tenant never sees the entry.
	other, err := cache.Get(ctx, "tenant-b", scope, question)
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestQueryCacheMiss(t *testing.T) {
	client := setupTestRedis(t)
	defer func() { _ = client.Close() }()

	cache := NewQueryCache(client, testCacheConfig())

	result, err := cache.Get(context.Background(), "tenant-a", store.PolicyFilter("POL-1"), "never asked")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestQueryCacheDisabled(t *testing.T) {
	cache := NewQueryCache(nil, &QueryCacheConfig{Enabled: false, TTL: time.Hour, KeyPrefix: "x:"})
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "tenant-a", nil, "q", &model.QueryResult{Answer: "a"}))

	cached, err := cache.Get(ctx, "tenant-a", nil, "q")
	require.NoError(t, err)
	assert.Nil(t, cached)

	require.NoError(t, cache.Clear(ctx))

	stats, err := cache.Stats(ctx)
	require.NoError(t, err)
	assert.False(t, stats["enabled"].(bool))
}

func TestQueryCacheClear(t *testing.T) {
	client := setupTestRedis(t)
	defer func() { _ = client.Close() }()

	cache := NewQueryCache(client, testCacheConfig())
	ctx := context.Background()
	scope := store.PolicyFilter("POL-1")

	for _, q := range []string{"q1", "q2", "q3"} {
		require.NoError(t, cache.Set(ctx, "tenant-a", scope, q, &model.QueryResult{Answer: "a"}))
	}

	require.NoError(t, cache.Clear(ctx))

	for _, q := range []string{"q1", "q2", "q3"} {
		cached, err := cache.Get(ctx, "tenant-a", scope, q)
		require.NoError(t, err)
		assert.Nil(t, cached)
	}
}

func TestQueryCacheStats(t *testing.T) {
	client := setupTestRedis(t)
	defer func() { _ = client.Close() }()

	cfg := testCacheConfig()
	cache := NewQueryCache(client, cfg)
	ctx := context.Background()

	for _, q := range []string{"q1", "q2", "q3"} {
		require.NoError(t, cache.Set(ctx, "tenant-a", nil, q, &model.QueryResult{Answer: "a"}))
	}

	stats, err := cache.Stats(ctx)
	require.NoError(t, err)
	assert.True(t, stats["enabled"].(bool))
	assert.Equal(t, 3, stats["key_count"].(int))
	assert.Equal(t, cfg.TTL.String(), stats["ttl"].(string))
}
