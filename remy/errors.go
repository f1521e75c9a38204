package remy

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDims is returned for a dimensionality other than 7 or 9.
	ErrInvalidDims = errors.New("remy: invalid dimensionality")

	// ErrDimsMismatch is returned when two vectors that must be compared do
	// not share the same dimensionality.
	ErrDimsMismatch = errors.New("remy: dimensionality mismatch")

	// ErrEmptyRange is returned for a range whose lower bound exceeds its
	// upper bound on some active axis.
	ErrEmptyRange = errors.New("remy: lower bound above upper bound")

	// ErrMalformedTree is returned by the tree constructors when a node is
	// neither a leaf nor an interior node, or a child escapes its parent.
	ErrMalformedTree = errors.New("remy: malformed whisker tree")

	// ErrOverlap is returned when two sibling domains claim the same point.
	ErrOverlap = errors.New("remy: overlapping whisker domains")
)

// InvariantError reports a violated Memory invariant. It always points at an
// inconsistency in the caller's RTT or timestamp bookkeeping and is never
// retried.
type InvariantError struct {
	// Invariant is the violated condition, e.g. "rtt_ratio >= 1".
	Invariant string
	// Field is the Memory field (or input) holding the offending value.
	Field string
	// Value is the offending value.
	Value float64
	// Memory is the state of the flow when the violation was detected.
	Memory string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("remy: invariant %q violated: %s=%g (%s)",
		e.Invariant, e.Field, e.Value, e.Memory)
}

// CoverageError is returned by WhiskerTree.UseWhisker when the number of
// whiskers covering a Memory is not exactly one. It means the trained table
// does not partition the state space.
type CoverageError struct {
	// Matches is the number of whiskers whose domain contains the Memory.
	Matches int
	// Memory is the Memory that was looked up.
	Memory string
}

func (e *CoverageError) Error() string {
	if e.Matches == 0 {
		return fmt.Sprintf("remy: no whisker found for memory: %s", e.Memory)
	}
	return fmt.Sprintf("remy: %d whiskers found for memory: %s", e.Matches, e.Memory)
}
