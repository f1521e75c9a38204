// Package whiskers reads trained whisker tables and writes the usage dumps
// that are analysed after a run.
package whiskers

import (
	"errors"
	"fmt"

	"github.com/m-lab/remycc/remy"
)

// ErrNoWhiskers is returned for a table that has neither a whisker list nor
// a tree.
var ErrNoWhiskers = errors.New("whiskers: table has no whiskers")

// Table is the serialized form of a whisker table. Exactly one of Whiskers
// and Tree is set.
type Table struct {
	// Dims, when present, must equal the dimensionality requested by the
	// caller.
	Dims     int       `json:"dims,omitempty" yaml:"dims,omitempty"`
	Whiskers []Whisker `json:"whiskers,omitempty" yaml:"whiskers,omitempty"`
	Tree     *Node     `json:"tree,omitempty" yaml:"tree,omitempty"`
}

// Range is a serialized remy.MemoryRange.
type Range struct {
	Lower []float64 `json:"lower" yaml:"lower"`
	Upper []float64 `json:"upper" yaml:"upper"`
}

// Whisker is a serialized remy.Whisker.
type Whisker struct {
	Domain          Range   `json:"domain" yaml:"domain"`
	WindowIncrement int     `json:"window_increment" yaml:"window_increment"`
	WindowMultiple  float64 `json:"window_multiple" yaml:"window_multiple"`
	Intersend       float64 `json:"intersend" yaml:"intersend"`
}

// Node is a serialized tree node.
type Node struct {
	Domain   *Range   `json:"domain,omitempty" yaml:"domain,omitempty"`
	Whisker  *Whisker `json:"whisker,omitempty" yaml:"whisker,omitempty"`
	Children []*Node  `json:"children,omitempty" yaml:"children,omitempty"`
}

// Build validates t against dims and returns the tree it describes.
func Build(t *Table, dims remy.Dims, opts ...remy.TreeOption) (*remy.WhiskerTree, error) {
	if !dims.Valid() {
		return nil, fmt.Errorf("%w: %d", remy.ErrInvalidDims, dims)
	}
	if t.Dims != 0 && t.Dims != int(dims) {
		return nil, fmt.Errorf("%w: table has %d dims, want %d", remy.ErrDimsMismatch, t.Dims, dims)
	}
	switch {
	case t.Tree != nil && len(t.Whiskers) > 0:
		return nil, errors.New("whiskers: table has both a whisker list and a tree")
	case t.Tree != nil:
		root, err := t.Tree.build(dims)
		if err != nil {
			return nil, err
		}
		return remy.NewWhiskerTreeFromNode(dims, root, opts...)
	case len(t.Whiskers) > 0:
		ws := make([]*remy.Whisker, 0, len(t.Whiskers))
		for i := range t.Whiskers {
			w, err := t.Whiskers[i].build(dims)
			if err != nil {
				return nil, fmt.Errorf("whisker %d: %w", i, err)
			}
			ws = append(ws, w)
		}
		return remy.NewWhiskerTree(dims, ws, opts...)
	}
	return nil, ErrNoWhiskers
}

func (r *Range) build(dims remy.Dims) (remy.MemoryRange, error) {
	lower, err := remy.NewMemoryFromFields(dims, r.Lower)
	if err != nil {
		return remy.MemoryRange{}, fmt.Errorf("lower: %w", err)
	}
	upper, err := remy.NewMemoryFromFields(dims, r.Upper)
	if err != nil {
		return remy.MemoryRange{}, fmt.Errorf("upper: %w", err)
	}
	return remy.NewMemoryRange(lower, upper)
}

func (w *Whisker) build(dims remy.Dims) (*remy.Whisker, error) {
	domain, err := w.Domain.build(dims)
	if err != nil {
		return nil, err
	}
	return remy.NewWhisker(domain, w.WindowIncrement, w.WindowMultiple, w.Intersend), nil
}

func (n *Node) build(dims remy.Dims) (*remy.Node, error) {
	if n == nil {
		return nil, fmt.Errorf("%w: null node", remy.ErrMalformedTree)
	}
	out := &remy.Node{}
	if n.Domain != nil {
		d, err := n.Domain.build(dims)
		if err != nil {
			return nil, err
		}
		out.Domain = d
	}
	if n.Whisker != nil {
		w, err := n.Whisker.build(dims)
		if err != nil {
			return nil, err
		}
		out.Whisker = w
	}
	for _, c := range n.Children {
		child, err := c.build(dims)
		if err != nil {
			return nil, err
		}
		out.Children = append(out.Children, child)
	}
	return out, nil
}

// FromTree returns the flat serialized form of tree.
func FromTree(tree *remy.WhiskerTree) *Table {
	t := &Table{Dims: int(tree.Dims())}
	for _, w := range tree.Whiskers() {
		t.Whiskers = append(t.Whiskers, fromWhisker(w))
	}
	return t
}

func fromWhisker(w *remy.Whisker) Whisker {
	d := w.Domain()
	lo, hi := d.Lower(), d.Upper()
	out := Whisker{
		WindowIncrement: w.WindowIncrement(),
		WindowMultiple:  w.WindowMultiple(),
		Intersend:       w.Intersend(),
	}
	for i := 0; i < int(d.Dims()); i++ {
		out.Domain.Lower = append(out.Domain.Lower, lo.Field(i))
		out.Domain.Upper = append(out.Domain.Upper, hi.Field(i))
	}
	return out
}
