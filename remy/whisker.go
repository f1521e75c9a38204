package remy

import (
	"fmt"
	"sync/atomic"
)

// MaxWindow is the largest congestion window, in segments, a whisker can
// produce.
const MaxWindow = 16384

// Whisker is a trained control rule: for any Memory inside its domain the
// next window is WindowIncrement + WindowMultiple * window, and packets are
// paced Intersend milliseconds apart (before scaling by the flow's
// inter-receive EWMA).
type Whisker struct {
	windowIncrement int
	windowMultiple  float64
	intersend       float64
	domain          MemoryRange

	count atomic.Uint64
}

// NewWhisker returns a whisker acting on domain.
func NewWhisker(domain MemoryRange, increment int, multiple, intersend float64) *Whisker {
	return &Whisker{
		windowIncrement: increment,
		windowMultiple:  multiple,
		intersend:       intersend,
		domain:          domain,
	}
}

// Domain returns the region of state space where the whisker applies.
func (w *Whisker) Domain() *MemoryRange {
	return &w.domain
}

// WindowIncrement returns the additive term of the window update.
func (w *Whisker) WindowIncrement() int {
	return w.windowIncrement
}

// WindowMultiple returns the multiplicative term of the window update.
func (w *Whisker) WindowMultiple() float64 {
	return w.windowMultiple
}

// Intersend returns the unscaled pacing interval in milliseconds.
func (w *Whisker) Intersend() float64 {
	return w.intersend
}

// Window returns the window, in segments, that follows previous.
func (w *Whisker) Window(previous uint32) uint32 {
	next := float64(w.windowIncrement) + w.windowMultiple*float64(previous)
	if !(next > 0) {
		return 0
	}
	if next >= MaxWindow {
		return MaxWindow
	}
	return uint32(next)
}

// Count returns how many lookups resolved to this whisker. It is diagnostic
// only.
func (w *Whisker) Count() uint64 {
	return w.count.Load()
}

func (w *Whisker) use() {
	w.count.Add(1)
}

func (w *Whisker) String() string {
	return fmt.Sprintf("{%s} => (win: %d + (%f * win) intersend: %.2f ms) (used: %d)",
		w.domain.String(), w.windowIncrement, w.windowMultiple, w.intersend, w.Count())
}
