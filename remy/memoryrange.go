package remy

import "fmt"

// MemoryRange is an axis-aligned box over the active Memory axes, closed
// below and open above.
type MemoryRange struct {
	lower Memory
	upper Memory
}

// NewMemoryRange returns the box [lower, upper). Both bounds must have the same
// dimensionality and lower must not exceed upper on any active axis.
func NewMemoryRange(lower, upper Memory) (MemoryRange, error) {
	if lower.dims != upper.dims {
		return MemoryRange{}, fmt.Errorf("%w: lower has %d dims, upper has %d",
			ErrDimsMismatch, lower.dims, upper.dims)
	}
	for i := 0; i < int(lower.dims); i++ {
		if lower.fields[i] > upper.fields[i] {
			return MemoryRange{}, fmt.Errorf("%w: %s %g > %g",
				ErrEmptyRange, fieldNames[i], lower.fields[i], upper.fields[i])
		}
	}
	return MemoryRange{lower: lower, upper: upper}, nil
}

// Dims returns the dimensionality of the range.
func (r *MemoryRange) Dims() Dims {
	return r.lower.dims
}

// Lower returns a copy of the inclusive lower bound.
func (r *MemoryRange) Lower() Memory {
	return r.lower
}

// Upper returns a copy of the exclusive upper bound.
func (r *MemoryRange) Upper() Memory {
	return r.upper
}

// Contains reports whether lower[i] <= m[i] < upper[i] on every active axis of
// the range.
func (r *MemoryRange) Contains(m *Memory) bool {
	for i := 0; i < int(r.lower.dims); i++ {
		v := m.fields[i]
		if v < r.lower.fields[i] || v >= r.upper.fields[i] {
			return false
		}
	}
	return true
}

// Overlaps reports whether some point is contained by both r and other.
func (r *MemoryRange) Overlaps(other *MemoryRange) bool {
	for i := 0; i < int(r.lower.dims); i++ {
		if r.lower.fields[i] >= other.upper.fields[i] || other.lower.fields[i] >= r.upper.fields[i] {
			return false
		}
	}
	return true
}

// Encloses reports whether every point of other is also a point of r.
func (r *MemoryRange) Encloses(other *MemoryRange) bool {
	return other.lower.GreaterEqual(&r.lower) && r.upper.GreaterEqual(&other.upper)
}

// Equal reports whether both bounds are equal.
func (r *MemoryRange) Equal(other *MemoryRange) bool {
	return r.lower.Equal(&other.lower) && r.upper.Equal(&other.upper)
}

func (r *MemoryRange) String() string {
	return fmt.Sprintf("(lo: <%s> hi: <%s>)", r.lower.String(), r.upper.String())
}
