// Package remy implements the runtime half of a Remy congestion controller:
// the per-flow Memory of recent network behaviour, the whiskers that map a
// region of that state space to a window and pacing action, and the whisker
// tree used to find the action for the current state.
//
// A WhiskerTree is immutable once built and may be shared by any number of
// flows. A Memory belongs to exactly one flow and must not be used from more
// than one goroutine.
package remy

import (
	"fmt"
	"math"
)

// Memory field indexes, in table order.
const (
	SendEWMA      = iota // fast EWMA of the inter-send gap
	RecvEWMA             // fast EWMA of the inter-receive gap
	RTTRatio             // current RTT / min RTT
	SlowRecvEWMA         // slow EWMA of the inter-receive gap
	RTTDiff              // current RTT - min RTT
	QueueingDelay        // RecvEWMA times packets in flight
	RecentLoss           // loss EWMA or recent loss count
	IntQueue             // last queue telemetry value
	IntLink              // EWMA of link telemetry
)

const (
	alpha     = 1.0 / 8.0
	slowAlpha = 1.0 / 256.0

	// LossMemory bounds RecentLoss on the summary path.
	LossMemory = 20

	// MaxObservedValue bounds the EWMAs and the RTT ratio derived from
	// packet observations.
	MaxObservedValue = 16380

	// MaxSummaryValue bounds every field derived from summary statistics
	// and the link telemetry EWMA.
	MaxSummaryValue = 163839
)

var fieldNames = [NumFields]string{
	"sewma", "rewma", "rttr", "slowrewma", "rttd", "qdelay", "loss", "intq", "intl",
}

// FieldName returns the short name of field i as printed by Memory.String.
func FieldName(i int) string {
	return fieldNames[i]
}

// Memory summarises the recent behaviour of a single flow.
type Memory struct {
	fields [NumFields]float64
	dims   Dims

	lastTickSent     float64
	lastTickReceived float64
	minRTT           float64
	lastSeqNo        float64
}

// NewMemory returns a zeroed Memory comparing the first dims fields.
func NewMemory(dims Dims) Memory {
	return Memory{dims: dims}
}

// NewMemoryFromFields returns a Memory whose first len(values) fields are set
// from values. It is how table bounds are built, so len(values) must equal
// dims.
func NewMemoryFromFields(dims Dims, values []float64) (Memory, error) {
	if !dims.Valid() {
		return Memory{}, fmt.Errorf("%w: %d", ErrInvalidDims, dims)
	}
	if len(values) != int(dims) {
		return Memory{}, fmt.Errorf("%w: got %d values for %d dims", ErrDimsMismatch, len(values), dims)
	}
	m := NewMemory(dims)
	for i, v := range values {
		if math.IsNaN(v) {
			return Memory{}, m.violation("not NaN", i, v)
		}
		m.fields[i] = v
	}
	return m, nil
}

// Dims returns the number of active axes.
func (m *Memory) Dims() Dims {
	return m.dims
}

// Field returns field i, 0 <= i < NumFields.
func (m *Memory) Field(i int) float64 {
	return m.fields[i]
}

// MinRTT returns the minimum RTT seen so far, in the caller's tick unit.
func (m *Memory) MinRTT() float64 {
	return m.minRTT
}

// Reset zeroes every field and forgets the tick, RTT and sequence tracking.
// The next observation is treated as a bootstrap sample.
func (m *Memory) Reset() {
	*m = Memory{dims: m.dims}
}

// UpdateFromObservations folds a batch of packet observations into m.
//
// The first observation of a flow only seeds the tick and min RTT tracking.
// An observation whose send or receive tick went backwards reuses the current
// EWMA as its gap; this is an approximation inherited from Remy, not an
// estimate of the real gap.
func (m *Memory) UpdateFromObservations(packets []Packet) error {
	for _, p := range packets {
		if err := m.observe(p); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) observe(p Packet) error {
	if p.TickReceived < p.TickSent || math.IsNaN(p.TickReceived-p.TickSent) {
		return &InvariantError{
			Invariant: "tick_received >= tick_sent",
			Field:     "tick_received",
			Value:     p.TickReceived,
			Memory:    m.String(),
		}
	}
	rtt := p.TickReceived - p.TickSent
	if m.lastTickSent == 0 && m.lastTickReceived == 0 {
		m.lastTickSent = p.TickSent
		m.lastTickReceived = p.TickReceived
		m.minRTT = rtt
		return nil
	}

	minRTT := math.Min(m.minRTT, rtt)
	ratio := rtt / minRTT
	if !(ratio >= 1) {
		return m.violation("rtt_ratio >= 1", RTTRatio, ratio)
	}

	next := *m
	next.minRTT = minRTT
	if p.SeqNo > m.lastSeqNo+1 {
		next.fields[RecentLoss] = (1-alpha)*m.fields[RecentLoss] + alpha
	} else {
		next.fields[RecentLoss] = (1 - alpha) * m.fields[RecentLoss]
	}
	next.lastSeqNo = math.Max(m.lastSeqNo, p.SeqNo)

	intersend := m.fields[SendEWMA]
	if p.TickSent >= m.lastTickSent {
		intersend = p.TickSent - m.lastTickSent
		next.lastTickSent = p.TickSent
	}
	interreceive := m.fields[RecvEWMA]
	if p.TickReceived >= m.lastTickReceived {
		interreceive = p.TickReceived - m.lastTickReceived
		next.lastTickReceived = p.TickReceived
	}

	next.fields[SendEWMA] = math.Min(ewma(m.fields[SendEWMA], intersend, alpha), MaxObservedValue)
	next.fields[RecvEWMA] = math.Min(ewma(m.fields[RecvEWMA], interreceive, alpha), MaxObservedValue)
	next.fields[SlowRecvEWMA] = math.Min(ewma(m.fields[SlowRecvEWMA], interreceive, slowAlpha), MaxObservedValue)
	next.fields[RTTRatio] = math.Min(ratio, MaxObservedValue)
	next.telemetry(p.QueueStat, p.LinkStat)
	return m.commit(&next)
}

// UpdateFromSummary folds externally computed rate, loss and RTT statistics
// into m. It is used when per-packet observations are not available. The
// EWMAs are not blended on the first call of a flow (isFirst), since there is
// no baseline yet.
func (m *Memory) UpdateFromSummary(isFirst bool, sendRate, deliveryRate float64, lossCount uint32, minRTT, lastRTT float64, inFlight uint32) error {
	ratio := lastRTT / minRTT
	if !(ratio >= 1) {
		return m.violation("rtt_ratio >= 1", RTTRatio, ratio)
	}
	diff := lastRTT - minRTT
	if !(diff >= 0) {
		return m.violation("rtt_diff >= 0", RTTDiff, diff)
	}

	next := *m
	if !isFirst {
		next.fields[SendEWMA] = ewma(m.fields[SendEWMA], sendRate, alpha)
		next.fields[RecvEWMA] = ewma(m.fields[RecvEWMA], deliveryRate, alpha)
		next.fields[SlowRecvEWMA] = ewma(m.fields[SlowRecvEWMA], deliveryRate, slowAlpha)
	}
	next.fields[RecentLoss] = math.Min(float64(lossCount), LossMemory)
	next.minRTT = minRTT
	next.fields[RTTRatio] = math.Min(ratio, MaxSummaryValue)
	next.fields[RTTDiff] = math.Min(diff, MaxSummaryValue)
	next.fields[QueueingDelay] = math.Min(next.fields[RecvEWMA]*float64(inFlight), MaxSummaryValue)

	for _, i := range []int{RecvEWMA, SendEWMA, SlowRecvEWMA} {
		next.fields[i] = math.Min(next.fields[i], MaxSummaryValue)
	}
	return m.commit(&next)
}

// UpdateTelemetry folds in-network telemetry into a flow that is driven by
// UpdateFromSummary. The queue signal is kept as its last value and the link
// signal is averaged, as on the observation path.
func (m *Memory) UpdateTelemetry(queue, link float64) error {
	next := *m
	next.telemetry(queue, link)
	return m.commit(&next)
}

func (m *Memory) telemetry(queue, link float64) {
	m.fields[IntQueue] = math.Min(queue, MaxSummaryValue)
	m.fields[IntLink] = math.Min(ewma(m.fields[IntLink], link, alpha), MaxSummaryValue)
}

// commit replaces m with next when next passes check. On error m is left
// as it was.
func (m *Memory) commit(next *Memory) error {
	if err := next.check(); err != nil {
		return err
	}
	*m = *next
	return nil
}

// check verifies that no field is NaN, infinite or negative.
func (m *Memory) check() error {
	for i, v := range m.fields {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return m.violation("finite and non-negative", i, v)
		}
	}
	return nil
}

func (m *Memory) violation(invariant string, field int, value float64) *InvariantError {
	return &InvariantError{
		Invariant: invariant,
		Field:     fieldNames[field],
		Value:     value,
		Memory:    m.String(),
	}
}

// GreaterEqual reports whether every active field of m is >= the same field
// of other.
func (m *Memory) GreaterEqual(other *Memory) bool {
	for i := 0; i < int(m.dims); i++ {
		if m.fields[i] < other.fields[i] {
			return false
		}
	}
	return true
}

// Equal reports whether the active fields of m and other are equal.
func (m *Memory) Equal(other *Memory) bool {
	if m.dims != other.dims {
		return false
	}
	for i := 0; i < int(m.dims); i++ {
		if m.fields[i] != other.fields[i] {
			return false
		}
	}
	return true
}

func (m *Memory) String() string {
	return fmt.Sprintf("sewma=%f, rewma=%f, rttr=%f, slowrewma=%f, rttd=%f, qdelay=%f, loss=%f, intq=%f, intl=%f",
		m.fields[SendEWMA], m.fields[RecvEWMA], m.fields[RTTRatio], m.fields[SlowRecvEWMA],
		m.fields[RTTDiff], m.fields[QueueingDelay], m.fields[RecentLoss], m.fields[IntQueue],
		m.fields[IntLink])
}

func ewma(old, sample, a float64) float64 {
	return (1-a)*old + a*sample
}
