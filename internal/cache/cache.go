// Package cache provides an optional Redis read-through cache for product
// records. Reads are served from the cache when possible; every product
// write must invalidate the entry so the database stays authoritative.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/safar/go-retail-ledger/internal/config"
	"github.com/safar/go-retail-ledger/internal/models"
)

type ProductCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// New returns a ProductCache, or nil when no Redis address is configured.
// All methods are nil-safe so callers need no enabled/disabled branching.
func New(cfg *config.CacheConfig) *ProductCache {
	if cfg.Addr == "" {
		return nil
	}
	return &ProductCache{
		client: redis.NewClient(&redis.Options{Addr: cfg.Addr}),
		prefix: cfg.Prefix,
		ttl:    cfg.TTL,
	}
}

func NewWithClient(client *redis.Client, prefix string, ttl time.Duration) *ProductCache {
	return &ProductCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *ProductCache) key(accountID, productID int64) string {
	return fmt.Sprintf("%sproduct:%d:%d", c.prefix, accountID, productID)
}

// Get returns the cached product and whether it was found. A miss or a
// decode failure is not an error; the caller falls through to the database.
func (c *ProductCache) Get(ctx context.Context, accountID, productID int64) (*models.Product, bool) {
	if c == nil {
		return nil, false
	}

	data, err := c.client.Get(ctx, c.key(accountID, productID)).Bytes()
	if err != nil {
		return nil, false
	}

	var product models.Product
	if err := json.Unmarshal(data, &product); err != nil {
		return nil, false
	}

	return &product, true
}

func (c *ProductCache) Set(ctx context.Context, product *models.Product) error {
	if c == nil {
		return nil
	}

	data, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("marshal product: %w", err)
	}

	if err := c.client.Set(ctx, c.key(product.AccountID, product.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}

	return nil
}

// Invalidate drops a product's cache entry after any write that touches it
// (catalog edit, stock change, delete).
func (c *ProductCache) Invalidate(ctx context.Context, accountID, productID int64) error {
	if c == nil {
		return nil
	}

	if err := c.client.Del(ctx, c.key(accountID, productID)).Err(); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}

	return nil
}

func (c *ProductCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
