package attractor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"bnsearch/internal/network"
)

const (
	DefaultMaxNodes = 20
	maxNodesLimit   = 30
)

// Builtin is an in-process exhaustive oracle. It enumerates all 2^n states
// of the network under deterministic synchronous dynamics, so it only suits
// small networks. Probabilistic entries collapse to their more likely value.
type Builtin struct {
	// MaxNodes caps n; zero means DefaultMaxNodes.
	MaxNodes int
	// Workers sizes the worker pool; zero means GOMAXPROCS.
	Workers int
	Logger  *slog.Logger
}

func (b *Builtin) maxNodes() int {
	if b.MaxNodes <= 0 {
		return DefaultMaxNodes
	}
	return min(b.MaxNodes, maxNodesLimit)
}

func (b *Builtin) workers() int {
	if b.Workers > 0 {
		return b.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (b *Builtin) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default().With(slog.String("component", "attractor"))
}

// Analyze parses ebnf and analyzes the resulting network.
func (b *Builtin) Analyze(ctx context.Context, ebnf string) (*Result, error) {
	net, err := network.ParseEBNF(ebnf)
	if err != nil {
		return nil, fmt.Errorf("parse ebnf: %w", err)
	}
	return b.AnalyzeNetwork(ctx, net)
}

// AnalyzeNetwork computes attractors, basin sizes and the perturbation ATM.
func (b *Builtin) AnalyzeNetwork(ctx context.Context, net *network.Network) (*Result, error) {
	space, err := b.explore(ctx, net)
	if err != nil {
		return nil, err
	}
	return space.result(), nil
}

// stateSpace holds the transition graph of a network. State s encodes label j
// in bit n-1-j, so the first label is the most significant bit.
type stateSpace struct {
	labels  []string
	n       int
	succ    []uint32
	cycles  [][]uint32
	onCycle []int32
	basin   []int32
	sizes   []int
}

func (b *Builtin) explore(ctx context.Context, net *network.Network) (*stateSpace, error) {
	n := net.Len()
	if n > b.maxNodes() {
		return nil, fmt.Errorf("%w: %d nodes, limit %d", ErrStateSpaceTooLarge, n, b.maxNodes())
	}
	sp := &stateSpace{labels: net.Labels(), n: n}
	if err := sp.successors(ctx, net, b.workers()); err != nil {
		return nil, err
	}
	sp.findCycles()
	if err := sp.basins(ctx, b.workers()); err != nil {
		return nil, err
	}
	b.logger().Debug("attractor_analysis",
		slog.Int("nodes", n),
		slog.Int("attractors", len(sp.cycles)),
	)
	return sp, nil
}

type compiledNode struct {
	preds []int
	table []bool
}

func compile(net *network.Network) []compiledNode {
	pos := make(map[string]int, net.Len())
	for i, label := range net.Labels() {
		pos[label] = i
	}
	out := make([]compiledNode, net.Len())
	for i, node := range net.Nodes() {
		preds := node.Predecessors()
		c := compiledNode{preds: make([]int, len(preds))}
		for j, p := range preds {
			c.preds[j] = pos[p]
		}
		fn := node.Function()
		c.table = make([]bool, fn.Len())
		for k := range c.table {
			c.table[k] = fn.ValueAt(k).Truthy()
		}
		out[i] = c
	}
	return out
}

func bit(s uint32, n, j int) bool {
	return s&(1<<(n-1-j)) != 0
}

func next(nodes []compiledNode, s uint32) uint32 {
	n := len(nodes)
	var out uint32
	for i, c := range nodes {
		v := bit(s, n, i)
		if len(c.preds) > 0 {
			idx := 0
			for _, p := range c.preds {
				idx <<= 1
				if bit(s, n, p) {
					idx |= 1
				}
			}
			v = c.table[idx]
		}
		if v {
			out |= 1 << (n - 1 - i)
		}
	}
	return out
}

// chunks splits [0, total) into at most workers contiguous ranges.
func chunks(total, workers int) [][2]int {
	if workers < 1 {
		workers = 1
	}
	size := (total + workers - 1) / workers
	var out [][2]int
	for lo := 0; lo < total; lo += size {
		out = append(out, [2]int{lo, min(lo+size, total)})
	}
	return out
}

func (sp *stateSpace) successors(ctx context.Context, net *network.Network, workers int) error {
	nodes := compile(net)
	total := 1 << sp.n
	sp.succ = make([]uint32, total)
	g, ctx := errgroup.WithContext(ctx)
	for _, r := range chunks(total, workers) {
		lo, hi := r[0], r[1]
		g.Go(func() error {
			for s := lo; s < hi; s++ {
				if s&0xfff == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				sp.succ[s] = next(nodes, uint32(s))
			}
			return nil
		})
	}
	return g.Wait()
}

func (sp *stateSpace) findCycles() {
	total := len(sp.succ)
	const (
		unseen = iota
		onPath
		done
	)
	status := make([]uint8, total)
	sp.onCycle = make([]int32, total)
	for i := range sp.onCycle {
		sp.onCycle[i] = -1
	}
	var cycles [][]uint32
	var path []uint32
	for start := 0; start < total; start++ {
		if status[start] != unseen {
			continue
		}
		path = path[:0]
		s := uint32(start)
		for status[s] == unseen {
			status[s] = onPath
			path = append(path, s)
			s = sp.succ[s]
		}
		if status[s] == onPath {
			i := len(path) - 1
			for path[i] != s {
				i--
			}
			cycles = append(cycles, canonical(path[i:]))
		}
		for _, p := range path {
			status[p] = done
		}
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i][0] < cycles[j][0] })
	for id, c := range cycles {
		for _, s := range c {
			sp.onCycle[s] = int32(id)
		}
	}
	sp.cycles = cycles
}

// canonical rotates a cycle so its smallest state comes first.
func canonical(cycle []uint32) []uint32 {
	best := 0
	for i, s := range cycle {
		if s < cycle[best] {
			best = i
		}
	}
	out := make([]uint32, 0, len(cycle))
	out = append(out, cycle[best:]...)
	return append(out, cycle[:best]...)
}

func (sp *stateSpace) basins(ctx context.Context, workers int) error {
	total := len(sp.succ)
	sp.basin = make([]int32, total)
	ranges := chunks(total, workers)
	partial := make([][]int, len(ranges))
	g, ctx := errgroup.WithContext(ctx)
	for w, r := range ranges {
		lo, hi := r[0], r[1]
		counts := make([]int, len(sp.cycles))
		partial[w] = counts
		g.Go(func() error {
			for s := lo; s < hi; s++ {
				if s&0xfff == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				x := uint32(s)
				for sp.onCycle[x] < 0 {
					x = sp.succ[x]
				}
				id := sp.onCycle[x]
				sp.basin[s] = id
				counts[id]++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	sp.sizes = make([]int, len(sp.cycles))
	for _, counts := range partial {
		for id, c := range counts {
			sp.sizes[id] += c
		}
	}
	return nil
}

func (sp *stateSpace) encode(s uint32) string {
	var b strings.Builder
	b.Grow(sp.n)
	for j := 0; j < sp.n; j++ {
		if bit(s, sp.n, j) {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// atm estimates transition probabilities by flipping each node of each
// attractor state once and recording which basin the perturbed state is in.
func (sp *stateSpace) atm() [][]float64 {
	k := len(sp.cycles)
	out := make([][]float64, k)
	for a, cycle := range sp.cycles {
		row := make([]float64, k)
		trials := 0
		for _, s := range cycle {
			for j := 0; j < sp.n; j++ {
				row[sp.basin[s^(1<<j)]]++
				trials++
			}
		}
		if trials == 0 {
			row[a] = 1
		} else {
			for i := range row {
				row[i] /= float64(trials)
			}
		}
		out[a] = row
	}
	return out
}

func (sp *stateSpace) result() *Result {
	total := float64(len(sp.succ))
	res := &Result{Labels: sp.labels, Attractors: make([]Attractor, len(sp.cycles)), ATM: sp.atm()}
	for id, cycle := range sp.cycles {
		states := make([]string, len(cycle))
		for i, s := range cycle {
			states[i] = sp.encode(s)
		}
		res.Attractors[id] = Attractor{States: states, Basin: float64(sp.sizes[id]) / total}
	}
	return res
}
