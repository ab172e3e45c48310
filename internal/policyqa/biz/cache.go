package biz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/coverport/policyqa/internal/model"
	"github.com/coverport/policyqa/internal/policyqa/store"
)

// QueryCacheConfig configures the Redis-backed query result cache.
type QueryCacheConfig struct {
	// Enabled turns the cache on.
	Enabled bool
	// TTL is the cache entry lifetime.
	TTL time.Duration
	// KeyPrefix namespaces cache keys in Redis.
	KeyPrefix string
}

// DefaultQueryCacheConfig returns the cache defaults.
func DefaultQueryCacheConfig() *QueryCacheConfig {
	return &QueryCacheConfig{
		Enabled:   false,
		TTL:       1 * time.Hour,
		KeyPrefix: "policyqa:query:",
	}
}

// QueryCache caches finished query results in Redis. The key covers the
// tenant and the resolved scope, never just the question text, so cached
// answers can never leak across tenants or scopes.
type QueryCache struct {
	redis  *goredis.Client
	config *QueryCacheConfig
}

// NewQueryCache creates a query cache.
func NewQueryCache(redis *goredis.Client, config *QueryCacheConfig) *QueryCache {
	if config == nil {
		config = DefaultQueryCacheConfig()
	}
	return &QueryCache{
		redis:  redis,
		config: config,
	}
}

// cacheKey hashes the tenant, scope, and question into a fixed-size key.
func (c *QueryCache) cacheKey(tenantID string, scope *store.Filter, question string) string {
	raw := tenantID + "\x00" + question
	if scope != nil {
		raw += "\x00" + string(scope.DocumentType) + "\x00" + scope.PolicyNumber + "\x00" + scope.CommunicationType
	}
	hash := sha256.Sum256([]byte(raw))
	return c.config.KeyPrefix + hex.EncodeToString(hash[:])
}

// Get returns the cached result for a question, or nil on a miss.
func (c *QueryCache) Get(ctx context.Context, tenantID string, scope *store.Filter, question string) (*model.QueryResult, error) {
	if !c.config.Enabled || c.redis == nil {
		return nil, nil
	}

	key := c.cacheKey(tenantID, scope, question)
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err == goredis.Nil {
			logger.Debugw("Query cache miss", "key", key)
			return nil, nil
		}
		logger.Warnw("Failed to read query cache", "error", err.Error(), "key", key)
		return nil, err
	}

	var result model.QueryResult
	if err := json.Unmarshal(data, &result); err != nil {
		logger.Warnw("Failed to unmarshal cached result", "error", err.Error(), "key", key)
		// Drop the corrupted entry.
		_ = c.redis.Del(ctx, key).Err()
		return nil, err
	}

	result.Cached = true
	logger.Debugw("Query cache hit", "key", key, "query_id", result.QueryID)
	return &result, nil
}

// Set stores a finished result. Failures are logged, never fatal.
func (c *QueryCache) Set(ctx context.Context, tenantID string, scope *store.Filter, question string, result *model.QueryResult) error {
	if !c.config.Enabled || c.redis == nil {
		return nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		logger.Warnw("Failed to marshal result for caching", "error", err.Error())
		return err
	}

	key := c.cacheKey(tenantID, scope, question)
	if err := c.redis.Set(ctx, key, data, c.config.TTL).Err(); err != nil {
		logger.Warnw("Failed to write query cache", "error", err.Error(), "key", key)
		return err
	}
	return nil
}

// Clear deletes every cached query result under the configured prefix.
// Used after document deletion, when cached answers may cite removed chunks.
func (c *QueryCache) Clear(ctx context.Context) error {
	if !c.config.Enabled || c.redis == nil {
		return nil
	}

	pattern := c.config.KeyPrefix + "*"
	iter := c.redis.Scan(ctx, 0, pattern, 0).Iterator()

	deleted := 0
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warnw("Failed to delete cache key", "error", err.Error(), "key", iter.Val())
		} else {
			deleted++
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache scan failed: %w", err)
	}

	logger.Infow("Query cache cleared", "deleted", deleted)
	return nil
}

// Stats reports cache configuration and current key count.
func (c *QueryCache) Stats(ctx context.Context) (map[string]any, error) {
	if !c.config.Enabled || c.redis == nil {
		return map[string]any{"enabled": false}, nil
	}

	pattern := c.config.KeyPrefix + "*"
	iter := c.redis.Scan(ctx, 0, pattern, 0).Iterator()

	keyCount := 0
	for iter.Next(ctx) {
		keyCount++
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	return map[string]any{
		"enabled":    true,
		"key_count":  keyCount,
		"ttl":        c.config.TTL.String(),
		"key_prefix": c.config.KeyPrefix,
	}, nil
}
