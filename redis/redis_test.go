package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/m-lab/go/testingx"
	"github.com/redis/go-redis/v9"

	"github.com/m-lab/remycc/controller"
	"github.com/m-lab/remycc/remy"
)

func clientSetup(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	c := NewClient(mr.Addr())
	t.Cleanup(func() { _ = c.Close() })
	testingx.Must(t, c.Ping(context.Background()), "Ping")
	return c, mr
}

func TestSnapshot(t *testing.T) {
	c, mr := clientSetup(t)
	ctx := context.Background()
	if _, err := c.GetSnapshot(ctx, "flow-1"); !errors.Is(err, redis.Nil) {
		t.Fatalf("GetSnapshot() of an unknown flow error = %v, want redis.Nil", err)
	}
	s := &Snapshot{
		Record:     controller.Record{ID: "flow-1", TimeMs: 12, Cwnd: 7, RTTRatio: 1.25},
		Memory:     "sewma=1.000000",
		PacingRate: 8e6,
		UpdatedAt:  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	testingx.Must(t, c.SetSnapshot(ctx, s), "SetSnapshot")
	got, err := c.GetSnapshot(ctx, "flow-1")
	testingx.Must(t, err, "GetSnapshot")
	if got.Record != s.Record || got.PacingRate != s.PacingRate || !got.UpdatedAt.Equal(s.UpdatedAt) {
		t.Errorf("GetSnapshot() = %+v, want %+v", got, s)
	}
	if ttl := mr.TTL(table1Prefix + "flow-1"); ttl != TTL {
		t.Errorf("snapshot TTL = %v, want %v", ttl, TTL)
	}
	mr.FastForward(TTL + time.Second)
	if _, err := c.GetSnapshot(ctx, "flow-1"); !errors.Is(err, redis.Nil) {
		t.Errorf("GetSnapshot() after expiry error = %v, want redis.Nil", err)
	}
}

func TestAbort(t *testing.T) {
	c, _ := clientSetup(t)
	ctx := context.Background()
	tests := []struct {
		name        string
		set         string
		clear       bool
		wantReason  string
		wantAborted bool
	}{
		{name: "never-flagged"},
		{name: "flagged", set: "coverage", wantReason: "coverage", wantAborted: true},
		{name: "reflagged", set: "invariant", wantReason: "invariant", wantAborted: true},
		{name: "cleared", clear: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.set != "" {
				testingx.Must(t, c.SetAbort(ctx, "flow-2", tt.set), "SetAbort")
			}
			if tt.clear {
				testingx.Must(t, c.ClearAbort(ctx, "flow-2"), "ClearAbort")
			}
			reason, aborted, err := c.GetAbort(ctx, "flow-2")
			testingx.Must(t, err, "GetAbort")
			if reason != tt.wantReason || aborted != tt.wantAborted {
				t.Errorf("GetAbort() = %q, %v; want %q, %v", reason, aborted, tt.wantReason, tt.wantAborted)
			}
		})
	}
}

func TestUsage(t *testing.T) {
	c, mr := clientSetup(t)
	ctx := context.Background()

	mem := func(v float64) remy.Memory {
		m, err := remy.NewMemoryFromFields(remy.Dims7, []float64{v, v, v, v, v, v, v})
		testingx.Must(t, err, "memory")
		return m
	}
	left, err := remy.NewMemoryRange(mem(0), mem(10))
	testingx.Must(t, err, "range")
	right, err := remy.NewMemoryRange(mem(10), mem(20))
	testingx.Must(t, err, "range")
	tree, err := remy.NewWhiskerTree(remy.Dims7, []*remy.Whisker{
		remy.NewWhisker(left, 1, 1, 0),
		remy.NewWhisker(right, 1, 1, 0),
		remy.NewWhisker(mustUnused(t), 1, 1, 0),
	})
	testingx.Must(t, err, "tree")
	for _, v := range []float64{1, 2, 15} {
		m := mem(v)
		_, err := tree.UseWhisker(&m)
		testingx.Must(t, err, "UseWhisker")
	}

	// Two senders share the run.
	testingx.Must(t, c.AddUsage(ctx, "run", tree), "AddUsage")
	testingx.Must(t, c.AddUsage(ctx, "run", tree), "AddUsage")
	got, err := c.GetUsage(ctx, "run")
	testingx.Must(t, err, "GetUsage")
	if len(got) != 2 || got[0] != 4 || got[1] != 2 {
		t.Errorf("GetUsage() = %v, want map[0:4 1:2]", got)
	}
	if mr.TTL(table3Prefix+"run") != TTL {
		t.Errorf("usage TTL = %v, want %v", mr.TTL(table3Prefix+"run"), TTL)
	}

	mr.HSet(table3Prefix+"bad", "x", "1")
	if _, err := c.GetUsage(ctx, "bad"); err == nil {
		t.Error("GetUsage() accepted a non-numeric field")
	}
}

// mustUnused returns a range disjoint from the ones looked up in TestUsage.
func mustUnused(t *testing.T) remy.MemoryRange {
	t.Helper()
	lo, err := remy.NewMemoryFromFields(remy.Dims7, []float64{20, 20, 20, 20, 20, 20, 20})
	testingx.Must(t, err, "memory")
	hi, err := remy.NewMemoryFromFields(remy.Dims7, []float64{30, 30, 30, 30, 30, 30, 30})
	testingx.Must(t, err, "memory")
	r, err := remy.NewMemoryRange(lo, hi)
	testingx.Must(t, err, "range")
	return r
}

func TestClosedClient(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	c := NewClient(mr.Addr())
	mr.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Ping(ctx); err == nil {
		t.Error("Ping() of a stopped server succeeded")
	}
	if _, _, err := c.GetAbort(ctx, "x"); err == nil {
		t.Error("GetAbort() of a stopped server succeeded")
	}
	c.Close()
}
