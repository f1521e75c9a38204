// Table 3: whisker usage per run.

package redis

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/m-lab/remycc/remy"
)

const table3Prefix = "table_3:"

// AddUsage adds the use counts of every whisker of tree to the usage hash of
// run, keyed by the whisker's position in table order. Whiskers never used
// are skipped.
func (c *Client) AddUsage(ctx context.Context, run string, tree *remy.WhiskerTree) error {
	key := table3Prefix + run
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for i, w := range tree.Whiskers() {
			if n := w.Count(); n > 0 {
				p.HIncrBy(ctx, key, strconv.Itoa(i), int64(n))
			}
		}
		p.Expire(ctx, key, TTL)
		return nil
	})
	return err
}

// GetUsage returns the use counts of run, indexed by whisker position.
func (c *Client) GetUsage(ctx context.Context, run string) (map[int]int64, error) {
	raw, err := c.rdb.HGetAll(ctx, table3Prefix+run).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[int]int64, len(raw))
	for k, v := range raw {
		i, err := strconv.Atoi(k)
		if err != nil {
			return nil, err
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}
