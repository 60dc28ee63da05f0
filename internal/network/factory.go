package network

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"

	"bnsearch/internal/boolean"
)

var ErrInvalidFactory = errors.New("invalid factory configuration")

// SizeSpec names a set of nodes either by count or by explicit labels.
// The zero value is the empty set.
type SizeSpec struct {
	count  int
	labels []string
}

// Count is a spec of n nodes labelled "0" through "n-1".
func Count(n int) SizeSpec {
	return SizeSpec{count: n}
}

// Labels is a spec of the given node labels.
func Labels(labels ...string) SizeSpec {
	return SizeSpec{labels: append([]string(nil), labels...)}
}

func (s SizeSpec) IsZero() bool {
	return s.count == 0 && len(s.labels) == 0
}

// AritySpec gives every node the same arity or assigns arity per label.
type AritySpec struct {
	uniform int
	perNode map[string]int
}

func Uniform(k int) AritySpec {
	return AritySpec{uniform: k}
}

// PerNode assigns arities by label; labels absent from the map get arity 0.
func PerNode(arities map[string]int) AritySpec {
	out := make(map[string]int, len(arities))
	for k, v := range arities {
		out[k] = v
	}
	return AritySpec{perNode: out}
}

type FactoryConfig struct {
	Size  SizeSpec
	Arity AritySpec
	// Bias is the probability that a generated truth-table entry is true.
	Bias float64
	// Probabilistic draws each entry's bias uniformly instead of a 0/1 value.
	Probabilistic      bool
	AllowSelfLoops     bool
	RandomInitialState bool
	// Inputs given by Count take the first labels; Outputs by Count the last.
	Inputs  SizeSpec
	Outputs SizeSpec
}

// Factory generates random networks from a configuration resolved once at
// construction.
type Factory struct {
	cfg     FactoryConfig
	labels  []string
	arity   map[string]int
	inputs  []string
	outputs []string
}

func NewFactory(cfg FactoryConfig) (*Factory, error) {
	if cfg.Bias < 0 || cfg.Bias > 1 {
		return nil, fmt.Errorf("%w: bias %v outside [0, 1]", ErrInvalidFactory, cfg.Bias)
	}
	labels, err := resolveLabels(cfg.Size)
	if err != nil {
		return nil, err
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("%w: network needs at least one node", ErrInvalidFactory)
	}
	known := toSet(labels)
	if len(known) != len(labels) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFactory, ErrDuplicateLabel)
	}

	inputs, err := resolveIO(cfg.Inputs, labels, known, true)
	if err != nil {
		return nil, fmt.Errorf("inputs: %w", err)
	}
	outputs, err := resolveIO(cfg.Outputs, labels, known, false)
	if err != nil {
		return nil, fmt.Errorf("outputs: %w", err)
	}
	inSet := toSet(inputs)
	for _, label := range outputs {
		if _, ok := inSet[label]; ok {
			return nil, fmt.Errorf("%w: %s", ErrIOOverlap, label)
		}
	}

	available := len(labels) - 1
	if cfg.AllowSelfLoops {
		available = len(labels)
	}
	arity := make(map[string]int, len(labels))
	for _, label := range labels {
		k := cfg.Arity.uniform
		if cfg.Arity.perNode != nil {
			k = cfg.Arity.perNode[label]
		}
		if _, isInput := inSet[label]; isInput {
			k = 0
		}
		if k < 0 || k > boolean.MaxArity {
			return nil, fmt.Errorf("%w: node %s arity %d", ErrInvalidFactory, label, k)
		}
		if k > available {
			return nil, fmt.Errorf("%w: node %s arity %d exceeds %d candidate predecessors", ErrInvalidFactory, label, k, available)
		}
		arity[label] = k
	}
	for label := range cfg.Arity.perNode {
		if _, ok := known[label]; !ok {
			return nil, fmt.Errorf("%w: arity for %s", ErrUnknownNode, label)
		}
	}

	return &Factory{cfg: cfg, labels: labels, arity: arity, inputs: inputs, outputs: outputs}, nil
}

func resolveLabels(spec SizeSpec) ([]string, error) {
	if len(spec.labels) > 0 {
		for _, l := range spec.labels {
			if l == "" {
				return nil, ErrEmptyLabel
			}
		}
		return append([]string(nil), spec.labels...), nil
	}
	if spec.count < 0 {
		return nil, fmt.Errorf("%w: negative node count %d", ErrInvalidFactory, spec.count)
	}
	out := make([]string, spec.count)
	for i := range out {
		out[i] = strconv.Itoa(i)
	}
	return out, nil
}

func resolveIO(spec SizeSpec, labels []string, known map[string]struct{}, head bool) ([]string, error) {
	if len(spec.labels) > 0 {
		for _, l := range spec.labels {
			if _, ok := known[l]; !ok {
				return nil, fmt.Errorf("%w: %s", ErrIOSetNotSubset, l)
			}
		}
		return append([]string(nil), spec.labels...), nil
	}
	if spec.count < 0 || spec.count > len(labels) {
		return nil, fmt.Errorf("%w: count %d for %d nodes", ErrInvalidFactory, spec.count, len(labels))
	}
	if head {
		return append([]string(nil), labels[:spec.count]...), nil
	}
	return append([]string(nil), labels[len(labels)-spec.count:]...), nil
}

func (f *Factory) Labels() []string {
	return append([]string(nil), f.labels...)
}

// Generate draws a network. Each node's predecessors are sampled without
// replacement from the other nodes.
func (f *Factory) Generate(rng *rand.Rand) (*Network, error) {
	if rng == nil {
		return nil, fmt.Errorf("%w: random source is required", ErrInvalidFactory)
	}
	nodes := make([]*Node, 0, len(f.labels))
	for _, label := range f.labels {
		candidates := make([]string, 0, len(f.labels))
		for _, other := range f.labels {
			if other != label || f.cfg.AllowSelfLoops {
				candidates = append(candidates, other)
			}
		}
		k := f.arity[label]
		perm := rng.Perm(len(candidates))
		preds := make([]string, k)
		for i := 0; i < k; i++ {
			preds[i] = candidates[perm[i]]
		}
		fn := boolean.NewFunction(k, func(int, []bool) boolean.Value {
			if f.cfg.Probabilistic {
				return boolean.Probabilistic(rng.Float64())
			}
			return boolean.Deterministic(rng.Float64() < f.cfg.Bias)
		})
		initial := false
		if f.cfg.RandomInitialState {
			initial = rng.Intn(2) == 1
		}
		node, err := NewNode(label, preds, fn, initial)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}

	var opts []Option
	if f.cfg.AllowSelfLoops {
		opts = append(opts, AllowSelfLoops())
	}
	opts = append(opts, WithRand(rng))
	return New(nodes, opts...)
}

// GenerateOpen draws a network and attaches the configured inputs and outputs.
func (f *Factory) GenerateOpen(rng *rand.Rand) (*OpenNetwork, error) {
	net, err := f.Generate(rng)
	if err != nil {
		return nil, err
	}
	return NewOpen(net, f.inputs, f.outputs)
}
