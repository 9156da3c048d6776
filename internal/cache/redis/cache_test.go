package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/postal-resolver/internal/resolver"
)

func TestNewWithoutURLDisablesCache(t *testing.T) {
	t.Parallel()

	c, err := New(context.Background(), Config{})
	require.NoError(t, err)
	require.Nil(t, c)
}

func TestNewRejectsBadURL(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{URL: "http://not-redis"})
	require.Error(t, err)
}

func TestNewWithClientDefaultsTTL(t *testing.T) {
	t.Parallel()

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { _ = client.Close() })

	c := NewWithClient(client, 0)
	require.Equal(t, DefaultTTL, c.ttl)
}

func TestUnreachableRedisReportsErrors(t *testing.T) {
	t.Parallel()

	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	c := NewWithClient(client, time.Minute)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "postal:LA FLORIDA|LAS ACACIAS|7700")
	require.Error(t, err)
	require.False(t, ok)

	require.Error(t, c.Set(ctx, "postal:LA FLORIDA|LAS ACACIAS|7700", resolver.Result{PostalCode: "8260323"}))
}
