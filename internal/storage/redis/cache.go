// Package redis keeps confirmed orders in Redis so idempotent replays skip the
// database.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xenking/promo-quoter/internal/domain/cart"
	"github.com/xenking/promo-quoter/internal/domain/order"
)

// KeyIdempotentConfirm is the key template for cached confirmations.
const KeyIdempotentConfirm = "idem:cart:confirm:%s"

// DefaultTTL bounds how long a confirmation stays cached.
const DefaultTTL = 24 * time.Hour

var _ cart.ReplayCache = (*IdempotencyCache)(nil)

// IdempotencyCache implements cart.ReplayCache.
type IdempotencyCache struct {
	rdb goredis.UniversalClient
	ttl time.Duration
}

// NewIdempotencyCache returns a cache storing entries for ttl. A zero ttl
// means DefaultTTL.
func NewIdempotencyCache(rdb goredis.UniversalClient, ttl time.Duration) *IdempotencyCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &IdempotencyCache{rdb: rdb, ttl: ttl}
}

// Connect dials addr and verifies the server answers.
func Connect(ctx context.Context, addr string) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "ping redis %s", addr)
	}
	return rdb, nil
}

// Get returns the order cached under key, or nil on a miss.
func (c *IdempotencyCache) Get(ctx context.Context, key string) (*order.Order, error) {
	b, err := c.rdb.Get(ctx, cacheKey(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get")
	}
	return decode(b)
}

// Put caches o under its idempotency key. An existing entry is kept since
// orders never change.
func (c *IdempotencyCache) Put(ctx context.Context, o *order.Order) error {
	if o.IdempotencyKey == "" {
		return nil
	}
	b, err := json.Marshal(o)
	if err != nil {
		return errors.Wrap(err, "encode order")
	}
	if err := c.rdb.SetNX(ctx, cacheKey(o.IdempotencyKey), b, c.ttl).Err(); err != nil {
		return errors.Wrap(err, "set")
	}
	return nil
}

func cacheKey(key string) string {
	return fmt.Sprintf(KeyIdempotentConfirm, key)
}

func decode(b []byte) (*order.Order, error) {
	var o order.Order
	if err := json.Unmarshal(b, &o); err != nil {
		return nil, errors.Wrap(err, "decode order")
	}
	return &o, nil
}
