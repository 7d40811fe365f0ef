package service

import (
	"context"
	"encoding/json"
	"time"

	pricingdomain "github.com/quoteforgelabs/quoteforge/internal/pricing/domain"
	"github.com/redis/go-redis/v9"
)

// matrixCache is a read-through cache for computed price matrices. Entries
// are keyed by input hash so a stale catalog never serves: bumping the
// catalog version changes nothing here, callers flush by TTL.
type matrixCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func newMatrixCache(rdb *redis.Client, ttl time.Duration) *matrixCache {
	return &matrixCache{rdb: rdb, ttl: ttl}
}

func (c *matrixCache) Get(ctx context.Context, key string) (pricingdomain.PriceMatrix, bool) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var matrix pricingdomain.PriceMatrix
	if err := json.Unmarshal(raw, &matrix); err != nil {
		return nil, false
	}
	return matrix, true
}

func (c *matrixCache) Put(ctx context.Context, key string, matrix pricingdomain.PriceMatrix) {
	raw, err := json.Marshal(matrix)
	if err != nil {
		return
	}
	// Best effort: a failed write only costs a recompute.
	c.rdb.Set(ctx, key, raw, c.ttl)
}
