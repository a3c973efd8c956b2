package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Cache wraps Redis helpers for JSON payloads.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// GetJSON unmarshals a cached JSON payload into dst. It reports whether the key existed.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil || c.client == nil || key == "" || c.ttl <= 0 {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON serialises v as JSON and stores it with the configured TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	if c == nil || c.client == nil || key == "" || c.ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// Delete drops a cached key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if c == nil || c.client == nil || key == "" {
		return nil
	}
	return c.client.Del(ctx, key).Err()
}

// CachedStores is a read-through StoreReader. Cache failures fall back to the source.
type CachedStores struct {
	Source StoreReader
	Cache  *Cache
	Logger zerolog.Logger
}

func storeKey(id string) string { return "checkout:store:" + id }

// GetStore implements StoreReader.
func (c *CachedStores) GetStore(ctx context.Context, id string) (Store, error) {
	var cached Store
	hit, err := c.Cache.GetJSON(ctx, storeKey(id), &cached)
	if err != nil {
		c.Logger.Warn().Err(err).Str("store_id", id).Msg("store cache read failed")
	}
	if hit {
		return cached, nil
	}
	store, err := c.Source.GetStore(ctx, id)
	if err != nil {
		return Store{}, err
	}
	if err := c.Cache.SetJSON(ctx, storeKey(id), store); err != nil {
		c.Logger.Warn().Err(err).Str("store_id", id).Msg("store cache write failed")
	}
	return store, nil
}

// Invalidate evicts a store after its settings change.
func (c *CachedStores) Invalidate(ctx context.Context, id string) error {
	return c.Cache.Delete(ctx, storeKey(id))
}
