// Package redis shares flow state with other processes through Redis: the
// latest snapshot of every flow, abort flags, and whisker usage per run.
package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTL is the expiry of per-flow keys.
const TTL = time.Hour

// Client wraps the Redis client.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client connected to the given address,
// e.g. "localhost:6379".
func NewClient(addr string) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	return &Client{rdb: rdb}
}

// Ping checks that the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis client connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}
