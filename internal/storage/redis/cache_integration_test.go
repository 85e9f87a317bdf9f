//go:build integration

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/promo-quoter/internal/domain/order"
)

func TestIdempotencyCache_Redis(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	endpoint, err := ctr.Endpoint(ctx, "")
	require.NoError(t, err)

	rdb, err := Connect(ctx, endpoint)
	require.NoError(t, err)
	defer rdb.Close()

	c := NewIdempotencyCache(rdb, time.Minute)

	miss, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Nil(t, miss)

	first := &order.Order{ID: "o-1", IdempotencyKey: "k1", Total: decimal.RequireFromString("10.00")}
	require.NoError(t, c.Put(ctx, first))
	require.NoError(t, c.Put(ctx, &order.Order{ID: "o-2", IdempotencyKey: "k1"}))

	got, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "o-1", got.ID)

	ttl, err := rdb.TTL(ctx, cacheKey("k1")).Result()
	require.NoError(t, err)
	assert.Positive(t, ttl)

	require.NoError(t, c.Put(ctx, &order.Order{ID: "o-3"}))
}
