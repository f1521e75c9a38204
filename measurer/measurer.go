// Package measurer drives a controller from periodic TCP_INFO readings of a
// live connection.
package measurer

import (
	"context"
	"time"

	"github.com/apex/log"
	"github.com/m-lab/go/memoryless"
	"github.com/m-lab/tcp-info/tcp"

	"github.com/m-lab/remycc/controller"
	"github.com/m-lab/remycc/logging"
	"github.com/m-lab/remycc/tcpinfox"
)

// Default sampling intervals.
const (
	MinSamplingInterval     = 5 * time.Millisecond
	AverageSamplingInterval = 20 * time.Millisecond
	MaxSamplingInterval     = 80 * time.Millisecond
)

// InfoReader reads the TCP_INFO of one connection.
type InfoReader interface {
	GetTCPInfo() (*tcp.LinuxTCPInfo, error)
}

// Applier applies decisions to the connection. netx.Socket is one.
type Applier interface {
	Apply(controller.Decision) error
}

// LinkReader reports link telemetry in Mbit/s. telemetry.LinkWatcher is one.
type LinkReader interface {
	Link() float64
}

// Config configures a Measurer. Only the zero value of Ticker selects the
// default intervals.
type Config struct {
	Ticker  memoryless.Config
	Applier Applier
	Link    LinkReader
}

// Sample is emitted after every decision taken from the table.
type Sample struct {
	Record   controller.Record
	Decision controller.Decision
}

// Measurer performs measurements and control for one connection.
type Measurer struct {
	reader InfoReader
	ctl    *controller.Controller
	cfg    Config
	ticker *memoryless.Ticker
}

// New returns a measurer reading from reader and driving ctl.
func New(reader InfoReader, ctl *controller.Controller, cfg Config) *Measurer {
	if cfg.Ticker == (memoryless.Config{}) {
		cfg.Ticker = memoryless.Config{
			Min:      MinSamplingInterval,
			Expected: AverageSamplingInterval,
			Max:      MaxSamplingInterval,
		}
	}
	return &Measurer{reader: reader, ctl: ctl, cfg: cfg}
}

func (m *Measurer) loop(cancel context.CancelFunc, dst chan<- Sample) {
	entry := logging.Flow(m.ctl.ID())
	entry.Debug("measurer: start")
	defer entry.Debug("measurer: stop")
	defer close(dst)
	defer cancel()

	if _, err := m.ctl.Init(); err != nil {
		entry.WithError(err).Warn("controller init failed")
		return
	}
	start := time.Now()
	var prev *tcp.LinuxTCPInfo
	last := start
	// The ticker closes its channel once ctx expires.
	for now := range m.ticker.C {
		info, err := m.reader.GetTCPInfo()
		if err != nil {
			entry.WithError(err).Warn("GetTCPInfo failed")
			return
		}
		m.observe(prev, info)
		s, ok := tcpinfox.ToSummary(prev, info, now.Sub(last))
		prev, last = info, now
		if !ok {
			continue
		}
		if m.cfg.Link != nil {
			s.Telemetry = &controller.Telemetry{Link: m.cfg.Link.Link()}
		}
		d, err := m.ctl.OnSummary(s)
		if err != nil {
			entry.WithError(err).Warn("controller aborted")
			return
		}
		if d.Source != controller.SourceTable {
			continue
		}
		if m.cfg.Applier != nil {
			if err := m.cfg.Applier.Apply(d); err != nil {
				entry.WithError(err).WithFields(log.Fields{"rate": d.PacingRate}).Warn("cannot apply decision")
			}
		}
		ms := float64(now.Sub(start)) / float64(time.Millisecond)
		dst <- Sample{Record: m.ctl.Record(ms), Decision: d} // Liveness: this is blocking
	}
}

// observe reports newly delivered data and idleness to the controller.
func (m *Measurer) observe(prev, cur *tcp.LinuxTCPInfo) {
	var delivered, sent uint32
	if prev != nil {
		delivered, sent = prev.Delivered, prev.DataSegsOut
	}
	m.ctl.PktsAcked(cur.Delivered - delivered)
	m.ctl.NotifyIdle(cur.Unacked == 0 && cur.DataSegsOut == sent)
}

// Start runs the measurement loop in a background goroutine and emits
// samples on the returned channel.
//
// Liveness guarantee: the measurer terminates after timeout, provided that
// the consumer keeps reading from the returned channel. It stops early when
// ctx is canceled, when Stop is called, when the connection can no longer be
// read, or when the controller aborts.
func (m *Measurer) Start(ctx context.Context, timeout time.Duration) <-chan Sample {
	dst := make(chan Sample)
	mctx, cancel := context.WithTimeout(ctx, timeout)
	ticker, err := memoryless.NewTicker(mctx, m.cfg.Ticker)
	if err != nil {
		logging.Logger.WithError(err).Warn("memoryless.NewTicker failed")
		cancel()
		close(dst)
		return dst
	}
	m.ticker = ticker
	go m.loop(cancel, dst)
	return dst
}

// Stop ends the measurements and drains src. Users that call Start should
// also call Stop.
func (m *Measurer) Stop(src <-chan Sample) {
	if m.ticker != nil {
		m.ticker.Stop()
	}
	for range src {
		// make sure we drain the channel, so the measurement loop can exit.
	}
}
