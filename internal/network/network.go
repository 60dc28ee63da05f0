package network

import (
	"fmt"
	"math/rand"
	"time"

	"bnsearch/internal/boolean"
)

// State is a label to boolean snapshot of a network.
type State map[string]bool

func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Network is an insertion-ordered set of nodes updated synchronously.
// A Network is not safe for concurrent use; Clone it to hand a copy to
// another goroutine.
type Network struct {
	order          []string
	nodes          map[string]*Node
	rng            boolean.Rand
	allowSelfLoops bool
}

type options struct {
	rng            boolean.Rand
	allowSelfLoops bool
}

type Option func(*options)

// WithRand sets the random source used to sample probabilistic entries.
func WithRand(r boolean.Rand) Option {
	return func(o *options) { o.rng = r }
}

// AllowSelfLoops permits a node to list itself as a predecessor.
func AllowSelfLoops() Option {
	return func(o *options) { o.allowSelfLoops = true }
}

// New assembles nodes into a network and validates it. Nodes are owned by the
// network afterwards.
func New(nodes []*Node, opts ...Option) (*Network, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	n := &Network{
		order:          make([]string, 0, len(nodes)),
		nodes:          make(map[string]*Node, len(nodes)),
		rng:            o.rng,
		allowSelfLoops: o.allowSelfLoops,
	}
	for _, node := range nodes {
		if node == nil {
			return nil, fmt.Errorf("nil node at position %d", len(n.order))
		}
		if _, exists := n.nodes[node.label]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateLabel, node.label)
		}
		n.order = append(n.order, node.label)
		n.nodes[node.label] = node
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return n, nil
}

// Validate checks that every predecessor exists, arities match, and, unless
// allowed, no node feeds itself.
func (n *Network) Validate() error {
	for _, label := range n.order {
		node := n.nodes[label]
		if node.function.Arity() != len(node.predecessors) {
			return fmt.Errorf("node %s: %w", label, ErrArityMismatch)
		}
		for _, pred := range node.predecessors {
			if _, ok := n.nodes[pred]; !ok {
				return fmt.Errorf("node %s: %w: %s", label, ErrDanglingPredecessor, pred)
			}
			if pred == label && !n.allowSelfLoops {
				return fmt.Errorf("%w: %s", ErrSelfLoop, label)
			}
		}
	}
	return nil
}

func (n *Network) Len() int {
	return len(n.order)
}

// Labels returns node labels in insertion order.
func (n *Network) Labels() []string {
	return append([]string(nil), n.order...)
}

func (n *Network) Node(label string) (*Node, bool) {
	node, ok := n.nodes[label]
	return node, ok
}

// Nodes returns the nodes in insertion order.
func (n *Network) Nodes() []*Node {
	out := make([]*Node, len(n.order))
	for i, label := range n.order {
		out[i] = n.nodes[label]
	}
	return out
}

func (n *Network) SelfLoopsAllowed() bool {
	return n.allowSelfLoops
}

func (n *Network) SetRand(r boolean.Rand) {
	n.rng = r
}

func (n *Network) random() boolean.Rand {
	if n.rng == nil {
		n.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return n.rng
}

// IsDeterministic reports whether every node function is deterministic.
func (n *Network) IsDeterministic() bool {
	for _, node := range n.nodes {
		if !node.function.IsDeterministic() {
			return false
		}
	}
	return true
}

// State snapshots every node's current state.
func (n *Network) State() State {
	out := make(State, len(n.order))
	for _, label := range n.order {
		out[label] = n.nodes[label].state
	}
	return out
}

// StateVector returns current states in insertion order.
func (n *Network) StateVector() []bool {
	out := make([]bool, len(n.order))
	for i, label := range n.order {
		out[i] = n.nodes[label].state
	}
	return out
}

// SetStateVector overrides all states, in insertion order.
func (n *Network) SetStateVector(states []bool) error {
	if len(states) != len(n.order) {
		return fmt.Errorf("state vector has %d entries, network has %d nodes", len(states), len(n.order))
	}
	for i, label := range n.order {
		n.nodes[label].state = states[i]
	}
	return nil
}

// SetState overrides one node's current state.
func (n *Network) SetState(label string, v bool) error {
	node, ok := n.nodes[label]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, label)
	}
	node.state = v
	return nil
}

// Pin overrides the states of the given nodes, typically inputs before a step.
func (n *Network) Pin(states State) error {
	for label := range states {
		if _, ok := n.nodes[label]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownNode, label)
		}
	}
	for label, v := range states {
		n.nodes[label].state = v
	}
	return nil
}

// Reset restores every node to its initial state.
func (n *Network) Reset() {
	for _, node := range n.nodes {
		node.state = node.initialState
	}
}

// Update advances the network one synchronous generation and returns the new
// snapshot. Every node reads the pre-update snapshot, so node order does not
// matter. Nodes without predecessors keep their state.
func (n *Network) Update() State {
	old := n.State()
	r := n.random()
	var args []bool
	for _, label := range n.order {
		node := n.nodes[label]
		if len(node.predecessors) == 0 {
			continue
		}
		args = args[:0]
		for _, pred := range node.predecessors {
			v, ok := old[pred]
			if !ok {
				panic(fmt.Sprintf("network: node %s reads missing predecessor %s", label, pred))
			}
			args = append(args, v)
		}
		node.state = node.function.Call(r, args)
	}
	return n.State()
}

// Step is an alias for Update.
func (n *Network) Step() State {
	return n.Update()
}

// Run applies Update steps times and returns every intermediate snapshot,
// not including the starting one.
func (n *Network) Run(steps int) []State {
	out := make([]State, 0, steps)
	for i := 0; i < steps; i++ {
		out = append(out, n.Update())
	}
	return out
}

// Clone deep-copies the network. The clone gets its own random source.
func (n *Network) Clone() *Network {
	out := &Network{
		order:          append([]string(nil), n.order...),
		nodes:          make(map[string]*Node, len(n.nodes)),
		allowSelfLoops: n.allowSelfLoops,
	}
	for label, node := range n.nodes {
		out.nodes[label] = node.clone()
	}
	return out
}

// Equal reports structural equality: same labels in the same order, same
// predecessors, equal truth tables, and equal initial and current states.
func (n *Network) Equal(other *Network) bool {
	if n == nil || other == nil {
		return n == other
	}
	if len(n.order) != len(other.order) {
		return false
	}
	for i, label := range n.order {
		if other.order[i] != label {
			return false
		}
		if !n.nodes[label].equal(other.nodes[label]) {
			return false
		}
	}
	return true
}
