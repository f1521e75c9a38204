// Package controller drives a single flow's congestion window and pacing rate
// from a shared whisker tree.
//
// A Controller belongs to one flow and is not safe for concurrent use. The
// tree it consults may be shared by any number of controllers.
package controller

import (
	"errors"
	"fmt"
	"time"

	"github.com/apex/log"

	"github.com/m-lab/remycc/logging"
	"github.com/m-lab/remycc/metrics"
	"github.com/m-lab/remycc/remy"
)

// ErrAborted is returned by every call on a controller after a contract
// violation or a coverage fault. The returned error also wraps the first
// failure.
var ErrAborted = errors.New("controller: flow aborted")

// DefaultSegmentSize is used when Config.SegmentSize is zero.
const DefaultSegmentSize = 1448

// Source says where a Decision came from.
type Source string

// Decision sources.
const (
	SourceTable     Source = "table"
	SourceBootstrap Source = "bootstrap"
	SourceIdle      Source = "idle"
)

// Config holds the per-flow settings of a Controller.
type Config struct {
	// SegmentSize is the sender MSS in bytes.
	SegmentSize uint32
}

// Decision is the window and pacing state a sender should apply.
type Decision struct {
	// Cwnd is the congestion window in segments.
	Cwnd      uint32
	CwndBytes uint64
	// Pacing is false when the window alone bounds the sending rate.
	Pacing bool
	// PacingRate is in bits per second.
	PacingRate float64
	// IntersendTime is the whisker's intersend scaled by the receive EWMA,
	// in microseconds.
	IntersendTime float64
	Source        Source
	// Whisker is nil when the table was not consulted.
	Whisker *remy.Whisker
}

// Ack describes one acknowledgement delivering data.
type Ack struct {
	SegmentsAcked uint32
	// Delivered is the delivery time of the acknowledged data, measured
	// from any fixed origin shared by the flow.
	Delivered    time.Duration
	RTT          time.Duration
	LastAckedSeq uint64
	IntQueue     float64
	IntLink      float64
}

// Telemetry carries in-network queue and link signals.
type Telemetry struct {
	Queue float64
	Link  float64
}

// Summary holds rate, loss and RTT statistics computed outside the
// controller, for example from successive TCP_INFO snapshots. Rates are
// inter-packet gaps in microseconds and RTTs are in microseconds.
type Summary struct {
	SendRate     float64
	DeliveryRate float64
	Lost         uint32
	MinRTT       float64
	LastRTT      float64
	InFlight     uint32
	Telemetry    *Telemetry
}

// Controller applies a whisker tree to one flow.
type Controller struct {
	id          string
	tree        *remy.WhiskerTree
	memory      remy.Memory
	segmentSize uint32

	cwnd          uint32
	intersendTime float64
	lastRTT       float64
	pktsAcked     bool
	idle          bool
	summarized    bool

	err error
}

// New returns a controller for flow id using tree.
func New(id string, tree *remy.WhiskerTree, cfg Config) *Controller {
	seg := cfg.SegmentSize
	if seg == 0 {
		seg = DefaultSegmentSize
	}
	return &Controller{
		id:          id,
		tree:        tree,
		memory:      remy.NewMemory(tree.Dims()),
		segmentSize: seg,
	}
}

// ID returns the flow identifier.
func (c *Controller) ID() string {
	return c.id
}

// Memory returns a copy of the flow's current memory.
func (c *Controller) Memory() remy.Memory {
	return c.memory
}

// Err returns the error that aborted the flow, or nil.
func (c *Controller) Err() error {
	return c.err
}

// Init chooses the initial window from the zero memory.
func (c *Controller) Init() (Decision, error) {
	if err := c.aborted(); err != nil {
		return Decision{}, err
	}
	c.cwnd = 0
	return c.decide()
}

// PktsAcked records that segmentsAcked segments were acknowledged. The ACK of
// the SYN carries no data and does not end the bootstrap phase.
func (c *Controller) PktsAcked(segmentsAcked uint32) {
	c.pktsAcked = c.pktsAcked || segmentsAcked > 0
}

// NotifyIdle records whether the application has stopped sending.
func (c *Controller) NotifyIdle(idle bool) {
	c.idle = idle
}

// OnAck folds the acknowledgement into the flow's memory and returns the
// decision for the new state.
func (c *Controller) OnAck(a Ack) (Decision, error) {
	if err := c.aborted(); err != nil {
		return Decision{}, err
	}
	if d, ok := c.suppressed(); ok {
		return d, nil
	}
	received := float64(a.Delivered) / float64(time.Microsecond)
	rtt := float64(a.RTT) / float64(time.Microsecond)
	seq := float64(a.LastAckedSeq / uint64(c.segmentSize))
	p := remy.NewTelemetryPacket(received-rtt, received, seq, a.IntQueue, a.IntLink)
	if err := c.memory.UpdateFromObservations([]remy.Packet{p}); err != nil {
		return Decision{}, c.abort(err)
	}
	c.lastRTT = rtt
	return c.decide()
}

// OnSummary is OnAck for callers that only have aggregate statistics.
func (c *Controller) OnSummary(s Summary) (Decision, error) {
	if err := c.aborted(); err != nil {
		return Decision{}, err
	}
	if d, ok := c.suppressed(); ok {
		return d, nil
	}
	err := c.memory.UpdateFromSummary(!c.summarized, s.SendRate, s.DeliveryRate, s.Lost, s.MinRTT, s.LastRTT, s.InFlight)
	if err != nil {
		return Decision{}, c.abort(err)
	}
	c.summarized = true
	if s.Telemetry != nil {
		if err := c.memory.UpdateTelemetry(s.Telemetry.Queue, s.Telemetry.Link); err != nil {
			return Decision{}, c.abort(err)
		}
	}
	c.lastRTT = s.LastRTT
	return c.decide()
}

// Reset forgets the flow's history after a retransmission timeout and
// chooses a fresh initial window.
func (c *Controller) Reset() (Decision, error) {
	if err := c.aborted(); err != nil {
		return Decision{}, err
	}
	c.memory.Reset()
	c.cwnd = 0
	c.pktsAcked = false
	c.summarized = false
	return c.decide()
}

func (c *Controller) suppressed() (Decision, bool) {
	var src Source
	switch {
	case !c.pktsAcked:
		src = SourceBootstrap
	case c.idle:
		src = SourceIdle
	default:
		return Decision{}, false
	}
	metrics.Decisions.WithLabelValues(string(src)).Inc()
	return Decision{Source: src}, true
}

func (c *Controller) decide() (Decision, error) {
	w, err := c.tree.UseWhisker(&c.memory)
	if err != nil {
		return Decision{}, c.abort(err)
	}
	c.cwnd = w.Window(c.cwnd)
	c.intersendTime = w.Intersend() * c.memory.Field(remy.RecvEWMA)
	d := Decision{
		Cwnd:          c.cwnd,
		CwndBytes:     uint64(c.cwnd) * uint64(c.segmentSize),
		IntersendTime: c.intersendTime,
		Source:        SourceTable,
		Whisker:       w,
	}
	if c.intersendTime != 0 {
		d.Pacing = true
		d.PacingRate = float64(c.segmentSize) * 8 * 1e6 / c.intersendTime
		metrics.PacingRate.Observe(d.PacingRate / 1e6)
	}
	metrics.Decisions.WithLabelValues(string(SourceTable)).Inc()
	metrics.CongestionWindow.Observe(float64(c.cwnd))
	logging.Flow(c.id).WithFields(log.Fields{
		"memory":    c.memory.String(),
		"whisker":   w.String(),
		"cwnd":      d.Cwnd,
		"intersend": d.IntersendTime,
		"rate":      d.PacingRate,
	}).Debug("decision")
	return d, nil
}

// AbortReason classifies an error returned by a Controller as "invariant",
// "coverage" or "other".
func AbortReason(err error) string {
	var ie *remy.InvariantError
	var ce *remy.CoverageError
	switch {
	case errors.As(err, &ie):
		return "invariant"
	case errors.As(err, &ce):
		return "coverage"
	}
	return "other"
}

func (c *Controller) abort(err error) error {
	c.err = err
	reason := AbortReason(err)
	metrics.FlowAborts.WithLabelValues(reason).Inc()
	logging.Flow(c.id).WithError(err).WithField("reason", reason).Error("aborting flow")
	return c.aborted()
}

func (c *Controller) aborted() error {
	if c.err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrAborted, c.err)
}
