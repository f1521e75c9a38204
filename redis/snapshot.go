// Table 1: latest state of each flow.

package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/m-lab/remycc/controller"
)

const table1Prefix = "table_1:"

// Snapshot is the latest state of a flow.
type Snapshot struct {
	Record     controller.Record `json:"record"`
	Memory     string            `json:"memory"`
	PacingRate float64           `json:"pacing_rate"`
	Whisker    string            `json:"whisker,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// SetSnapshot stores s under its flow id.
func (c *Client) SetSnapshot(ctx context.Context, s *Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, table1Prefix+s.Record.ID, data, TTL).Err()
}

// GetSnapshot returns the snapshot of flow id, or redis.Nil if there is none.
func (c *Client) GetSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	data, err := c.rdb.Get(ctx, table1Prefix+id).Bytes()
	if err != nil {
		return nil, err
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
