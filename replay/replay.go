// Package replay runs recorded ACK traces through whisker-tree controllers,
// one controller per flow, all sharing the same tree.
package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/apex/log"
	"golang.org/x/sync/errgroup"

	"github.com/m-lab/remycc/controller"
	"github.com/m-lab/remycc/logging"
	"github.com/m-lab/remycc/metrics"
	"github.com/m-lab/remycc/redis"
	"github.com/m-lab/remycc/remy"
	"github.com/m-lab/remycc/trace"
)

// Store receives flow state while a replay runs. *redis.Client is one.
type Store interface {
	SetSnapshot(ctx context.Context, s *redis.Snapshot) error
	SetAbort(ctx context.Context, id, reason string) error
	AddUsage(ctx context.Context, run string, tree *remy.WhiskerTree) error
}

// Config configures a replay.
type Config struct {
	SegmentSize uint32
	// FailFast turns the first aborted flow into an error of Run and
	// cancels the remaining flows.
	FailFast bool
	// Parallelism bounds the number of flows replayed at once. Zero means
	// no bound.
	Parallelism int
	// Store is optional.
	Store Store
	RunID string
}

// FlowResult summarises the replay of one flow.
type FlowResult struct {
	ID         string `json:"id"`
	Events     int    `json:"events"`
	Decisions  int    `json:"decisions"`
	Suppressed int    `json:"suppressed"`
	Resets     int    `json:"resets"`
	FinalCwnd  uint32 `json:"final_cwnd"`
	Aborted    bool   `json:"aborted"`
	Reason     string `json:"reason,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Result is the outcome of a replay. Flows are in order of first appearance
// in the trace, and Records are grouped by flow in the same order.
type Result struct {
	RunID   string
	Flows   []FlowResult
	Records []controller.Record
}

type flowOutput struct {
	result  FlowResult
	records []controller.Record
}

// Run replays events against tree.
func Run(ctx context.Context, tree *remy.WhiskerTree, events []trace.AckEvent, cfg Config) (*Result, error) {
	ids, flows := trace.GroupByFlow(events)
	outputs := make([]flowOutput, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Parallelism > 0 {
		g.SetLimit(cfg.Parallelism)
	}
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			out, err := runFlow(gctx, tree, id, flows[id], cfg)
			outputs[i] = out
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{RunID: cfg.RunID}
	for _, out := range outputs {
		res.Flows = append(res.Flows, out.result)
		res.Records = append(res.Records, out.records...)
	}
	if cfg.Store != nil {
		if err := cfg.Store.AddUsage(ctx, cfg.RunID, tree); err != nil {
			return nil, fmt.Errorf("publishing usage: %w", err)
		}
	}
	return res, nil
}

func runFlow(ctx context.Context, tree *remy.WhiskerTree, id string, events []trace.AckEvent, cfg Config) (flowOutput, error) {
	out := flowOutput{result: FlowResult{ID: id, Events: len(events)}}
	ctl := controller.New(id, tree, controller.Config{SegmentSize: cfg.SegmentSize})
	entry := logging.Flow(id)

	var last controller.Decision
	d, err := ctl.Init()
	for i := 0; err == nil && i < len(events); i++ {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		e := &events[i]
		if e.Reset {
			out.result.Resets++
			d, err = ctl.Reset()
			continue
		}
		ctl.NotifyIdle(e.Idle)
		ctl.PktsAcked(e.SegmentsAcked)
		d, err = ctl.OnAck(e.Ack())
		if err != nil {
			break
		}
		if d.Source != controller.SourceTable {
			out.result.Suppressed++
			continue
		}
		out.result.Decisions++
		out.records = append(out.records, ctl.Record(e.TimeMs))
		last = d
	}
	if err != nil {
		out.result.FinalCwnd = last.Cwnd
		reason := controller.AbortReason(err)
		out.result.Aborted = true
		out.result.Reason = reason
		out.result.Error = err.Error()
		metrics.ReplayFlows.WithLabelValues("aborted").Inc()
		entry.WithError(err).WithField("events", len(events)).Warn("flow aborted")
		if cfg.Store != nil {
			if serr := cfg.Store.SetAbort(ctx, id, reason); serr != nil {
				entry.WithError(serr).Warn("cannot flag aborted flow")
			}
		}
		if cfg.FailFast {
			return out, fmt.Errorf("flow %s: %w", id, err)
		}
		return out, nil
	}

	out.result.FinalCwnd = d.Cwnd
	metrics.ReplayFlows.WithLabelValues("completed").Inc()
	entry.WithFields(log.Fields{
		"decisions":  out.result.Decisions,
		"suppressed": out.result.Suppressed,
		"cwnd":       out.result.FinalCwnd,
	}).Info("flow replayed")
	if cfg.Store != nil && len(out.records) > 0 {
		m := ctl.Memory()
		s := &redis.Snapshot{
			Record:     out.records[len(out.records)-1],
			Memory:     m.String(),
			PacingRate: last.PacingRate,
			UpdatedAt:  time.Now().UTC(),
		}
		if last.Whisker != nil {
			s.Whisker = last.Whisker.String()
		}
		if err := cfg.Store.SetSnapshot(ctx, s); err != nil {
			return out, fmt.Errorf("flow %s: storing snapshot: %w", id, err)
		}
	}
	return out, nil
}
