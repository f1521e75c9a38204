// Package telemetry samples in-network signals that a controller can fold
// into its memory.
package telemetry

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/prometheus/procfs"

	"github.com/m-lab/remycc/logging"
)

var procPath = "/proc"

// LinkWatcher measures the transmit rate of a network device every period,
// from /proc/net/dev.
type LinkWatcher struct {
	period time.Duration
	device string
	pfs    procfs.FS
	// Mbit/s, as math.Float64bits.
	current atomic.Uint64
}

// NewLinkWatcher returns a watcher sampling device once per period. It fails
// if the device does not exist. Callers run Watch in a goroutine.
func NewLinkWatcher(device string, period time.Duration) (*LinkWatcher, error) {
	pfs, err := procfs.NewFS(procPath)
	if err != nil {
		return nil, err
	}
	if _, err := readNetDevLine(pfs, device); err != nil {
		return nil, err
	}
	if period <= 0 {
		period = time.Second
	}
	return &LinkWatcher{
		period: period,
		device: device,
		pfs:    pfs,
	}, nil
}

// Link returns the last measured transmit rate in Mbit/s.
func (lw *LinkWatcher) Link() float64 {
	return math.Float64frombits(lw.current.Load())
}

// Watch updates the rate every period until ctx is done, and returns the
// context error.
func (lw *LinkWatcher) Watch(ctx context.Context) error {
	t := time.NewTicker(lw.period)
	defer t.Stop()

	v, err := readNetDevLine(lw.pfs, lw.device)
	if err != nil {
		return err
	}
	prev, last := v.TxBytes, time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-t.C:
			v, err := readNetDevLine(lw.pfs, lw.device)
			if err != nil {
				logging.Logger.WithError(err).Warn("Error reading /proc/net/dev")
				continue
			}
			lw.current.Store(math.Float64bits(mbps(prev, v.TxBytes, now.Sub(last))))
			prev, last = v.TxBytes, now
		}
	}
}

func mbps(prev, cur uint64, elapsed time.Duration) float64 {
	if cur < prev || elapsed <= 0 {
		return 0
	}
	return float64(cur-prev) * 8 / elapsed.Seconds() / 1e6
}

func readNetDevLine(pfs procfs.FS, device string) (procfs.NetDevLine, error) {
	nd, err := pfs.NetDev()
	if err != nil {
		return procfs.NetDevLine{}, err
	}
	v, ok := nd[device]
	if !ok {
		return procfs.NetDevLine{}, fmt.Errorf("device not found: %q", device)
	}
	return v, nil
}
