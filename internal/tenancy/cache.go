package tenancy

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a read-through Redis cache for registry lookups on the resolver
// hot path. A nil *Cache is a no-op, so the registry works without Redis.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(slug string) string {
	return "tenant:" + slug
}

func (c *Cache) Get(ctx context.Context, slug string) (*Tenant, bool) {
	if c == nil {
		return nil, false
	}
	val, err := c.client.Get(ctx, cacheKey(slug)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("tenant cache get failed", "slug", slug, "error", err)
		}
		return nil, false
	}
	var t Tenant
	if err := json.Unmarshal([]byte(val), &t); err != nil {
		return nil, false
	}
	return &t, true
}

func (c *Cache) Set(ctx context.Context, t *Tenant) {
	if c == nil {
		return
	}
	data, err := json.Marshal(t)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(t.Slug), data, c.ttl).Err(); err != nil {
		slog.Warn("tenant cache set failed", "slug", t.Slug, "error", err)
	}
}

// Invalidate drops a cached tenant. Called on every status transition so a
// suspension takes effect within one lookup, not one TTL.
func (c *Cache) Invalidate(ctx context.Context, slug string) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, cacheKey(slug)).Err(); err != nil {
		slog.Warn("tenant cache invalidate failed", "slug", slug, "error", err)
	}
}
