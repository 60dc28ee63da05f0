package network

import (
	"errors"
	"fmt"
	"sort"

	"bnsearch/internal/boolean"
)

var (
	ErrDuplicateLabel      = errors.New("duplicate node label")
	ErrDanglingPredecessor = errors.New("predecessor not in network")
	ErrArityMismatch       = errors.New("function arity does not match predecessor count")
	ErrSelfLoop            = errors.New("node is its own predecessor")
	ErrUnknownNode         = errors.New("unknown node")
	ErrEmptyLabel          = errors.New("empty node label")
	ErrIOSetNotSubset      = errors.New("input/output label not in network")
	ErrIOOverlap           = errors.New("input and output sets overlap")
)

// Node is one boolean variable of a network. Predecessors are kept sorted so
// the function's parameter order, and therefore serialization, is stable.
type Node struct {
	label        string
	predecessors []string
	function     *boolean.Function
	initialState bool
	state        bool
}

// NewNode builds a node. fn's parameters follow the order of predecessors as
// given; when that order is not sorted the table is permuted to match the
// sorted order, so callers may list predecessors in any order.
func NewNode(label string, predecessors []string, fn *boolean.Function, initialState bool) (*Node, error) {
	if label == "" {
		return nil, ErrEmptyLabel
	}
	if fn == nil {
		return nil, fmt.Errorf("node %s: nil function", label)
	}
	if fn.Arity() != len(predecessors) {
		return nil, fmt.Errorf("node %s: %w: arity=%d predecessors=%d", label, ErrArityMismatch, fn.Arity(), len(predecessors))
	}

	order := make([]int, len(predecessors))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return predecessors[order[i]] < predecessors[order[j]] })

	sorted := make([]string, len(predecessors))
	permuted := false
	for j, from := range order {
		sorted[j] = predecessors[from]
		if from != j {
			permuted = true
		}
		if j > 0 && sorted[j] == sorted[j-1] {
			return nil, fmt.Errorf("node %s: %w: predecessor %s listed twice", label, ErrDuplicateLabel, sorted[j])
		}
	}

	fn = fn.Clone()
	if permuted {
		fn = fn.Permute(order)
	}
	return &Node{
		label:        label,
		predecessors: sorted,
		function:     fn,
		initialState: initialState,
		state:        initialState,
	}, nil
}

func (n *Node) Label() string {
	return n.label
}

// Predecessors returns a copy of the sorted predecessor labels.
func (n *Node) Predecessors() []string {
	return append([]string{}, n.predecessors...)
}

// Function returns the node's truth table. Mutating it mutates the node.
func (n *Node) Function() *boolean.Function {
	return n.function
}

func (n *Node) State() bool {
	return n.state
}

func (n *Node) InitialState() bool {
	return n.initialState
}

func (n *Node) clone() *Node {
	return &Node{
		label:        n.label,
		predecessors: append([]string(nil), n.predecessors...),
		function:     n.function.Clone(),
		initialState: n.initialState,
		state:        n.state,
	}
}

func (n *Node) equal(other *Node) bool {
	if n.label != other.label || n.initialState != other.initialState || n.state != other.state {
		return false
	}
	if len(n.predecessors) != len(other.predecessors) {
		return false
	}
	for i := range n.predecessors {
		if n.predecessors[i] != other.predecessors[i] {
			return false
		}
	}
	return n.function.Equal(other.function)
}
