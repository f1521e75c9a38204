package remy

import (
	"testing"

	"github.com/m-lab/go/testingx"
)

func mustMemory(t *testing.T, dims Dims, values ...float64) Memory {
	t.Helper()
	m, err := NewMemoryFromFields(dims, values)
	testingx.Must(t, err, "failed to build memory from %v", values)
	return m
}

func mustRange(t *testing.T, lower, upper Memory) MemoryRange {
	t.Helper()
	r, err := NewMemoryRange(lower, upper)
	testingx.Must(t, err, "failed to build range")
	return r
}

// uniform returns a vector of dims copies of v.
func uniform(dims Dims, v float64) []float64 {
	out := make([]float64, dims)
	for i := range out {
		out[i] = v
	}
	return out
}

// gridWhiskers splits every active axis of [0, bound) at its midpoint and
// returns one whisker per cell, 2^dims in total.
func gridWhiskers(t *testing.T, dims Dims, bound float64) []*Whisker {
	t.Helper()
	var out []*Whisker
	cells := 1 << uint(dims)
	for c := 0; c < cells; c++ {
		lo := make([]float64, dims)
		hi := make([]float64, dims)
		for i := 0; i < int(dims); i++ {
			if c&(1<<uint(i)) == 0 {
				lo[i], hi[i] = 0, bound/2
			} else {
				lo[i], hi[i] = bound/2, bound
			}
		}
		r := mustRange(t, mustMemory(t, dims, lo...), mustMemory(t, dims, hi...))
		out = append(out, NewWhisker(r, c, 1, float64(c)/10))
	}
	return out
}

// kdNode recursively halves [lo, hi) along successive axes down to depth
// levels, producing a nested tree over the same cells as gridWhiskers.
func kdNode(t *testing.T, dims Dims, lo, hi []float64, axis, depth int) *Node {
	t.Helper()
	r := mustRange(t, mustMemory(t, dims, lo...), mustMemory(t, dims, hi...))
	if depth == 0 {
		return &Node{Whisker: NewWhisker(r, axis, 1, 0)}
	}
	mid := (lo[axis] + hi[axis]) / 2
	leftHi := append([]float64(nil), hi...)
	leftHi[axis] = mid
	rightLo := append([]float64(nil), lo...)
	rightLo[axis] = mid
	next := (axis + 1) % int(dims)
	return &Node{
		Domain: r,
		Children: []*Node{
			kdNode(t, dims, lo, leftHi, next, depth-1),
			kdNode(t, dims, rightLo, hi, next, depth-1),
		},
	}
}
