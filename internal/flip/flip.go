package flip

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strconv"

	"bnsearch/internal/network"
)

var (
	// ErrNoCandidates means every truth-table entry is excluded. It is distinct
	// from a scramble that legitimately selects zero flips.
	ErrNoCandidates = errors.New("no flip candidates available")
	ErrInvalidFlip  = errors.New("invalid flip")
)

// Flip addresses one truth-table entry of one node.
type Flip struct {
	Label string `json:"label"`
	Index int    `json:"index"`
}

func (f Flip) String() string {
	return f.Label + "[" + strconv.Itoa(f.Index) + "]"
}

// Exclusions keeps whole nodes and individual flips out of candidacy.
// A nil *Exclusions excludes nothing.
type Exclusions struct {
	nodes map[string]struct{}
	flips map[Flip]struct{}
}

func NewExclusions(nodes ...string) *Exclusions {
	e := &Exclusions{nodes: map[string]struct{}{}, flips: map[Flip]struct{}{}}
	for _, label := range nodes {
		e.nodes[label] = struct{}{}
	}
	return e
}

func (e *Exclusions) ExcludeNode(labels ...string) {
	for _, label := range labels {
		e.nodes[label] = struct{}{}
	}
}

func (e *Exclusions) ExcludeFlip(flips ...Flip) {
	for _, f := range flips {
		e.flips[f] = struct{}{}
	}
}

func (e *Exclusions) HasNode(label string) bool {
	if e == nil {
		return false
	}
	_, ok := e.nodes[label]
	return ok
}

func (e *Exclusions) HasFlip(f Flip) bool {
	if e == nil {
		return false
	}
	_, ok := e.flips[f]
	return ok
}

// Nodes returns the excluded node labels, sorted.
func (e *Exclusions) Nodes() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.nodes))
	for label := range e.nodes {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

// FlipCount is the number of individually excluded flips.
func (e *Exclusions) FlipCount() int {
	if e == nil {
		return 0
	}
	return len(e.flips)
}

func (e *Exclusions) Clone() *Exclusions {
	out := NewExclusions()
	if e == nil {
		return out
	}
	for label := range e.nodes {
		out.nodes[label] = struct{}{}
	}
	for f := range e.flips {
		out.flips[f] = struct{}{}
	}
	return out
}

// Merge returns a new set holding the union of e and other.
func (e *Exclusions) Merge(other *Exclusions) *Exclusions {
	out := e.Clone()
	if other == nil {
		return out
	}
	for label := range other.nodes {
		out.nodes[label] = struct{}{}
	}
	for f := range other.flips {
		out.flips[f] = struct{}{}
	}
	return out
}

// Available enumerates every flip not excluded, in node insertion order then
// ascending index.
func Available(net *network.Network, excluded *Exclusions) []Flip {
	var out []Flip
	for _, node := range net.Nodes() {
		if excluded.HasNode(node.Label()) {
			continue
		}
		size := node.Function().Len()
		for i := 0; i < size; i++ {
			f := Flip{Label: node.Label(), Index: i}
			if excluded.HasFlip(f) {
				continue
			}
			out = append(out, f)
		}
	}
	return out
}

// Sample draws min(n, len(available)) distinct flips uniformly without
// replacement. available is not modified.
func Sample(rng *rand.Rand, available []Flip, n int) []Flip {
	if n <= 0 || len(available) == 0 {
		return []Flip{}
	}
	if n > len(available) {
		n = len(available)
	}
	pool := append([]Flip(nil), available...)
	for i := 0; i < n; i++ {
		j := i + rng.Intn(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:n]
}

// Apply complements the bias of every addressed entry in place. All flips are
// checked before any entry changes, so a failed Apply leaves net untouched.
func Apply(net *network.Network, flips []Flip) error {
	for _, f := range flips {
		node, ok := net.Node(f.Label)
		if !ok {
			return fmt.Errorf("%w: %s: %w", ErrInvalidFlip, f, network.ErrUnknownNode)
		}
		if f.Index < 0 || f.Index >= node.Function().Len() {
			return fmt.Errorf("%w: %s: index out of range [0, %d)", ErrInvalidFlip, f, node.Function().Len())
		}
	}
	for _, f := range flips {
		node, _ := net.Node(f.Label)
		node.Function().FlipAt(f.Index)
	}
	return nil
}

// Revert undoes Apply. Flipping is an involution, so this is Apply again.
func Revert(net *network.Network, flips []Flip) error {
	return Apply(net, flips)
}
