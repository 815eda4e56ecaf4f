package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/streamhaven/mediasync/pkg/models"
)

// Cache provides read-through caching for asset lookups using Redis. The
// webhook hot path resolves external ids against it before hitting the
// database; every persisted update invalidates the cached entry.
type Cache struct {
	client *redis.Client
}

// NewCache creates a new cache instance
func NewCache(host string, port int, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping checks the Redis connection
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func externalKey(field, value string) string {
	return fmt.Sprintf("asset:%s:%s", field, value)
}

// SetAsset caches an asset under every external id it carries
func (c *Cache) SetAsset(ctx context.Context, asset *models.VideoAsset, ttl time.Duration) error {
	data, err := json.Marshal(asset)
	if err != nil {
		return fmt.Errorf("failed to marshal asset: %w", err)
	}

	if asset.UploadID != "" {
		if err := c.client.Set(ctx, externalKey("upload_id", asset.UploadID), data, ttl).Err(); err != nil {
			return err
		}
	}
	if asset.AssetID != "" {
		if err := c.client.Set(ctx, externalKey("asset_id", asset.AssetID), data, ttl).Err(); err != nil {
			return err
		}
	}

	return nil
}

// GetByExternalID retrieves a cached asset by external id. Returns
// (nil, nil) on a cache miss.
func (c *Cache) GetByExternalID(ctx context.Context, field, value string) (*models.VideoAsset, error) {
	data, err := c.client.Get(ctx, externalKey(field, value)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, fmt.Errorf("failed to get asset from cache: %w", err)
	}

	var asset models.VideoAsset
	if err := json.Unmarshal(data, &asset); err != nil {
		return nil, fmt.Errorf("failed to unmarshal asset: %w", err)
	}

	return &asset, nil
}

// InvalidateAsset removes every cached entry for an asset
func (c *Cache) InvalidateAsset(ctx context.Context, asset *models.VideoAsset) error {
	var keys []string
	if asset.UploadID != "" {
		keys = append(keys, externalKey("upload_id", asset.UploadID))
	}
	if asset.AssetID != "" {
		keys = append(keys, externalKey("asset_id", asset.AssetID))
	}
	if len(keys) == 0 {
		return nil
	}

	return c.client.Del(ctx, keys...).Err()
}
