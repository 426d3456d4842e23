package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/safar/go-retail-ledger/internal/models"
	"github.com/shopspring/decimal"
)

const testRedisAddr = "localhost:6379"

func setupTestCache(t *testing.T) (*ProductCache, func()) {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: testRedisAddr})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available at %s: %v", testRedisAddr, err)
	}

	c := NewWithClient(client, "test:retailledger:", time.Minute)

	cleanup := func() {
		client.Del(ctx, c.key(1, 100))
		client.Close()
	}

	return c, cleanup
}

func TestProductCacheRoundTrip(t *testing.T) {
	c, cleanup := setupTestCache(t)
	defer cleanup()

	ctx := context.Background()

	product := &models.Product{
		ID:        100,
		AccountID: 1,
		Name:      "Widget",
		Price:     decimal.NewFromFloat(9.99),
		Stock:     12,
	}

	if _, ok := c.Get(ctx, 1, 100); ok {
		t.Fatal("Expected cache miss before Set")
	}

	if err := c.Set(ctx, product); err != nil {
		t.Fatalf("Set: %v", err)
	}

	cached, ok := c.Get(ctx, 1, 100)
	if !ok {
		t.Fatal("Expected cache hit after Set")
	}
	if cached.Name != "Widget" || cached.Stock != 12 {
		t.Errorf("Cached product mismatch: %+v", cached)
	}
	if !cached.Price.Equal(product.Price) {
		t.Errorf("Expected price %s, got %s", product.Price, cached.Price)
	}

	if err := c.Invalidate(ctx, 1, 100); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}

	if _, ok := c.Get(ctx, 1, 100); ok {
		t.Error("Expected cache miss after Invalidate")
	}
}

func TestNilCacheIsSafe(t *testing.T) {
	var c *ProductCache

	ctx := context.Background()

	if _, ok := c.Get(ctx, 1, 1); ok {
		t.Error("Nil cache should always miss")
	}
	if err := c.Set(ctx, &models.Product{}); err != nil {
		t.Errorf("Nil cache Set should be a no-op, got %v", err)
	}
	if err := c.Invalidate(ctx, 1, 1); err != nil {
		t.Errorf("Nil cache Invalidate should be a no-op, got %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Nil cache Close should be a no-op, got %v", err)
	}
}
