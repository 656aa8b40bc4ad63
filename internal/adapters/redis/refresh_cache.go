package redis

// Package redis provides Redis-based adapters for the gateway.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tradeboard/gateway/internal/cryptoutil"
	domainauth "github.com/tradeboard/gateway/internal/domain/auth"
)

// RefreshCache is a Redis-based grace cache for rotated token pairs.
// Entries are sealed with the configured Sealer and bound to their key.
type RefreshCache struct {
	client redis.UniversalClient
	sealer cryptoutil.Sealer
	prefix string
}

// RefreshCacheOptions groups dependencies for RefreshCache.
type RefreshCacheOptions struct {
	Client redis.UniversalClient
	Sealer cryptoutil.Sealer
	Prefix string
}

// NewRefreshCache creates a new Redis-based refresh cache.
func NewRefreshCache(opts RefreshCacheOptions) (*RefreshCache, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if opts.Sealer == nil {
		return nil, errors.New("sealer is required")
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "gateway:refresh:"
	}
	return &RefreshCache{client: opts.Client, sealer: opts.Sealer, prefix: prefix}, nil
}

// Put stores tok under key for ttl. The first writer wins; later writes for the same key are ignored.
func (c *RefreshCache) Put(ctx context.Context, key string, tok domainauth.TokenResponse, ttl time.Duration) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}

	fullKey := c.prefix + key
	sealed, err := c.sealer.Seal(data, []byte(fullKey))
	if err != nil {
		return fmt.Errorf("seal token: %w", err)
	}

	if err := c.client.SetNX(ctx, fullKey, sealed, ttl).Err(); err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	return nil
}

// Get returns the cached pair for key. A missing key reports ok=false with a nil error.
func (c *RefreshCache) Get(ctx context.Context, key string) (domainauth.TokenResponse, bool, error) {
	if key == "" {
		return domainauth.TokenResponse{}, false, nil
	}

	fullKey := c.prefix + key
	sealed, err := c.client.Get(ctx, fullKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.TokenResponse{}, false, nil
		}
		return domainauth.TokenResponse{}, false, fmt.Errorf("redis get: %w", err)
	}

	data, err := c.sealer.Open(sealed, []byte(fullKey))
	if err != nil {
		return domainauth.TokenResponse{}, false, fmt.Errorf("open token: %w", err)
	}

	var tok domainauth.TokenResponse
	if err := json.Unmarshal(data, &tok); err != nil {
		return domainauth.TokenResponse{}, false, fmt.Errorf("unmarshal token: %w", err)
	}
	return tok, true, nil
}
