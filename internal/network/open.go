package network

import (
	"fmt"
	"sort"
)

// OpenNetwork is a network with designated input and output nodes.
type OpenNetwork struct {
	*Network
	inputs  []string
	outputs []string
}

// NewOpen wraps net with sorted, disjoint input and output label sets.
func NewOpen(net *Network, inputs, outputs []string) (*OpenNetwork, error) {
	if net == nil {
		return nil, fmt.Errorf("nil network")
	}
	in, err := sortedSubset(net, inputs)
	if err != nil {
		return nil, fmt.Errorf("inputs: %w", err)
	}
	out, err := sortedSubset(net, outputs)
	if err != nil {
		return nil, fmt.Errorf("outputs: %w", err)
	}
	inSet := toSet(in)
	for _, label := range out {
		if _, ok := inSet[label]; ok {
			return nil, fmt.Errorf("%w: %s", ErrIOOverlap, label)
		}
	}
	return &OpenNetwork{Network: net, inputs: in, outputs: out}, nil
}

func sortedSubset(net *Network, labels []string) ([]string, error) {
	out := append([]string{}, labels...)
	sort.Strings(out)
	for i, label := range out {
		if _, ok := net.nodes[label]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrIOSetNotSubset, label)
		}
		if i > 0 && out[i-1] == label {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateLabel, label)
		}
	}
	return out, nil
}

func toSet(labels []string) map[string]struct{} {
	out := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		out[label] = struct{}{}
	}
	return out
}

func (o *OpenNetwork) Inputs() []string {
	return append([]string(nil), o.inputs...)
}

func (o *OpenNetwork) Outputs() []string {
	return append([]string(nil), o.outputs...)
}

// TerminalNodes lists non-input nodes without predecessors. Their state never
// changes, so flipping their tables has no effect.
func (o *OpenNetwork) TerminalNodes() []string {
	inSet := toSet(o.inputs)
	var out []string
	for _, label := range o.order {
		if _, isInput := inSet[label]; isInput {
			continue
		}
		if len(o.nodes[label].predecessors) == 0 {
			out = append(out, label)
		}
	}
	return out
}

// DefaultExclusions is the set of nodes normally kept out of flip candidacy:
// inputs and terminal nodes.
func (o *OpenNetwork) DefaultExclusions() []string {
	out := append(o.Inputs(), o.TerminalNodes()...)
	sort.Strings(out)
	return out
}

// OutputState snapshots the output nodes.
func (o *OpenNetwork) OutputState() State {
	out := make(State, len(o.outputs))
	for _, label := range o.outputs {
		out[label] = o.nodes[label].state
	}
	return out
}

// StepWith pins the inputs then advances one generation.
func (o *OpenNetwork) StepWith(inputs State) (State, error) {
	inSet := toSet(o.inputs)
	for label := range inputs {
		if _, ok := inSet[label]; !ok {
			return nil, fmt.Errorf("%w: %s is not an input", ErrUnknownNode, label)
		}
	}
	if err := o.Pin(inputs); err != nil {
		return nil, err
	}
	return o.Update(), nil
}

func (o *OpenNetwork) Clone() *OpenNetwork {
	return &OpenNetwork{
		Network: o.Network.Clone(),
		inputs:  append([]string(nil), o.inputs...),
		outputs: append([]string(nil), o.outputs...),
	}
}

func (o *OpenNetwork) Equal(other *OpenNetwork) bool {
	if o == nil || other == nil {
		return o == other
	}
	return o.Network.Equal(other.Network) && equalStrings(o.inputs, other.inputs) && equalStrings(o.outputs, other.outputs)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
