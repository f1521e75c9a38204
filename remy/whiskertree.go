package remy

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/m-lab/remycc/metrics"
)

// Node describes one node of a whisker tree to be built. A leaf carries a
// Whisker and no children; an interior node carries children and an
// optional Domain, which defaults to the bounding box of its children.
type Node struct {
	Domain   MemoryRange
	Whisker  *Whisker
	Children []*Node
}

type node struct {
	domain   MemoryRange
	leaf     *Whisker
	children []*node
}

// TreeOption configures a WhiskerTree.
type TreeOption func(*WhiskerTree)

// WithRelaxedCoverage accepts tables whose sibling domains overlap. When a
// lookup matches more than one whisker the first in table order wins, and the
// tree's ambiguity counter is incremented. A lookup with no match is still an
// error.
func WithRelaxedCoverage() TreeOption {
	return func(t *WhiskerTree) {
		t.relaxed = true
	}
}

// WhiskerTree is an immutable set of whiskers partitioning the state space,
// arranged as a tree of nested domains. Lookups are safe for concurrent use.
type WhiskerTree struct {
	root    *node
	dims    Dims
	relaxed bool
	leaves  []*Whisker

	ambiguous atomic.Uint64
}

// NewWhiskerTree builds a single-level tree from a flat list of whiskers. The
// root domain is the bounding box of the whisker domains.
func NewWhiskerTree(dims Dims, whiskers []*Whisker, opts ...TreeOption) (*WhiskerTree, error) {
	root := &Node{}
	for _, w := range whiskers {
		root.Children = append(root.Children, &Node{Whisker: w})
	}
	return NewWhiskerTreeFromNode(dims, root, opts...)
}

// NewWhiskerTreeFromNode builds a tree from a nested description. It checks
// that every domain has the tree's dimensionality, that children lie inside
// their parent and, unless coverage is relaxed, that no two siblings overlap.
func NewWhiskerTreeFromNode(dims Dims, root *Node, opts ...TreeOption) (*WhiskerTree, error) {
	if !dims.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDims, dims)
	}
	t := &WhiskerTree{dims: dims}
	for _, opt := range opts {
		opt(t)
	}
	n, err := t.build(root, "root")
	if err != nil {
		return nil, err
	}
	t.root = n
	return t, nil
}

func (t *WhiskerTree) build(desc *Node, path string) (*node, error) {
	if desc == nil {
		return nil, fmt.Errorf("%w: %s is nil", ErrMalformedTree, path)
	}
	switch {
	case desc.Whisker != nil && len(desc.Children) == 0:
		w := desc.Whisker
		if w.domain.Dims() != t.dims {
			return nil, fmt.Errorf("%w: %s has %d dims, tree has %d",
				ErrDimsMismatch, path, w.domain.Dims(), t.dims)
		}
		if desc.Domain.Dims() != 0 && !desc.Domain.Equal(&w.domain) {
			return nil, fmt.Errorf("%w: %s domain differs from its whisker's", ErrMalformedTree, path)
		}
		t.leaves = append(t.leaves, w)
		return &node{domain: w.domain, leaf: w}, nil

	case desc.Whisker == nil && len(desc.Children) > 0:
		n := &node{}
		for i, c := range desc.Children {
			child, err := t.build(c, fmt.Sprintf("%s.%d", path, i))
			if err != nil {
				return nil, err
			}
			n.children = append(n.children, child)
		}
		if desc.Domain.Dims() == 0 {
			n.domain = boundingBox(n.children)
		} else {
			n.domain = desc.Domain
		}
		if n.domain.Dims() != t.dims {
			return nil, fmt.Errorf("%w: %s has %d dims, tree has %d",
				ErrDimsMismatch, path, n.domain.Dims(), t.dims)
		}
		for i, c := range n.children {
			if !n.domain.Encloses(&c.domain) {
				return nil, fmt.Errorf("%w: %s.%d lies outside its parent", ErrMalformedTree, path, i)
			}
			if t.relaxed {
				continue
			}
			for j := i + 1; j < len(n.children); j++ {
				if c.domain.Overlaps(&n.children[j].domain) {
					return nil, fmt.Errorf("%w: %s.%d and %s.%d", ErrOverlap, path, i, path, j)
				}
			}
		}
		return n, nil
	}
	return nil, fmt.Errorf("%w: %s must have either a whisker or children", ErrMalformedTree, path)
}

func boundingBox(children []*node) MemoryRange {
	box := children[0].domain
	for _, c := range children[1:] {
		for i := 0; i < int(box.lower.dims); i++ {
			if c.domain.lower.fields[i] < box.lower.fields[i] {
				box.lower.fields[i] = c.domain.lower.fields[i]
			}
			if c.domain.upper.fields[i] > box.upper.fields[i] {
				box.upper.fields[i] = c.domain.upper.fields[i]
			}
		}
	}
	return box
}

// Dims returns the dimensionality of the tree.
func (t *WhiskerTree) Dims() Dims {
	return t.dims
}

// Domain returns the root domain.
func (t *WhiskerTree) Domain() MemoryRange {
	return t.root.domain
}

// Whiskers returns the leaves in table order.
func (t *WhiskerTree) Whiskers() []*Whisker {
	return append([]*Whisker(nil), t.leaves...)
}

// Ambiguous returns the number of relaxed lookups that matched more than one
// whisker.
func (t *WhiskerTree) Ambiguous() uint64 {
	return t.ambiguous.Load()
}

// UseWhisker returns the whisker whose domain contains m and records its use.
// Unless coverage is relaxed, a result other than exactly one matching
// whisker is a *CoverageError.
func (t *WhiskerTree) UseWhisker(m *Memory) (*Whisker, error) {
	w, matches := t.root.find(m, t.relaxed)
	switch {
	case matches == 0:
		metrics.WhiskerLookups.WithLabelValues("miss").Inc()
		return nil, &CoverageError{Matches: 0, Memory: m.String()}
	case matches > 1 && !t.relaxed:
		metrics.WhiskerLookups.WithLabelValues("overlap").Inc()
		return nil, &CoverageError{Matches: matches, Memory: m.String()}
	case matches > 1:
		t.ambiguous.Add(1)
		metrics.WhiskerLookups.WithLabelValues("ambiguous").Inc()
	default:
		metrics.WhiskerLookups.WithLabelValues("match").Inc()
	}
	w.use()
	return w, nil
}

// find returns the first leaf containing m together with the number of
// leaves containing it. Strict lookups stop counting at two.
func (n *node) find(m *Memory, relaxed bool) (*Whisker, int) {
	if !n.domain.Contains(m) {
		return nil, 0
	}
	if n.leaf != nil {
		return n.leaf, 1
	}
	var found *Whisker
	total := 0
	for _, c := range n.children {
		w, k := c.find(m, relaxed)
		if k == 0 {
			continue
		}
		if found == nil {
			found = w
		}
		total += k
		if total > 1 && !relaxed {
			break
		}
	}
	return found, total
}

// String renders one bracketed whisker per line, in table order.
func (t *WhiskerTree) String() string {
	var b strings.Builder
	for _, w := range t.leaves {
		b.WriteString("[")
		b.WriteString(w.String())
		b.WriteString("]\n")
	}
	return b.String()
}
