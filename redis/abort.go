// Table 2: aborted flows.

package redis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

const table2Prefix = "table_2:"

// SetAbort flags flow id as aborted for reason.
func (c *Client) SetAbort(ctx context.Context, id, reason string) error {
	return c.rdb.Set(ctx, table2Prefix+id, reason, TTL).Err()
}

// GetAbort returns the abort reason of flow id. A flow that was never
// flagged is not aborted.
func (c *Client) GetAbort(ctx context.Context, id string) (string, bool, error) {
	reason, err := c.rdb.Get(ctx, table2Prefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return reason, true, nil
}

// ClearAbort removes the abort flag of flow id.
func (c *Client) ClearAbort(ctx context.Context, id string) error {
	return c.rdb.Del(ctx, table2Prefix+id).Err()
}
