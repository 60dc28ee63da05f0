package attractor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"bnsearch/internal/network"
)

// InputBasins aggregates, for every assignment of the input nodes, how many
// initial states of the remaining nodes settle into each attractor.
type InputBasins struct {
	Inputs []string
	Result *Result
	// Counts is keyed by the input assignment as a bit string in Inputs order.
	Counts map[string][]int
}

// BasinsByInput simulates every input assignment combined with every
// initial state of the non-input nodes. Each input assignment runs as one
// task on its own clone of the network; results are merged after all tasks
// finish. The network must be deterministic.
func (b *Builtin) BasinsByInput(ctx context.Context, open *network.OpenNetwork) (*InputBasins, error) {
	if !open.IsDeterministic() {
		return nil, errors.New("basin testing needs a deterministic network")
	}
	space, err := b.explore(ctx, open.Network)
	if err != nil {
		return nil, err
	}
	res := space.result()

	labels := open.Labels()
	inputs := open.Inputs()
	isInput := make(map[string]bool, len(inputs))
	for _, label := range inputs {
		isInput[label] = true
	}
	var free []string
	for _, label := range labels {
		if !isInput[label] {
			free = append(free, label)
		}
	}

	assignments := 1 << len(inputs)
	counts := make([][]int, assignments)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers())
	for a := 0; a < assignments; a++ {
		snapshot := open.Network.Clone()
		g.Go(func() error {
			row := make([]int, len(space.cycles))
			pinned := make(network.State, len(inputs))
			for i, label := range inputs {
				pinned[label] = bitOf(a, len(inputs), i)
			}
			for s := 0; s < 1<<len(free); s++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				for i, label := range free {
					pinned[label] = bitOf(s, len(free), i)
				}
				if err := snapshot.Pin(pinned); err != nil {
					return err
				}
				id, err := settle(snapshot, space)
				if err != nil {
					return err
				}
				row[id]++
			}
			counts[a] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &InputBasins{Inputs: inputs, Result: res, Counts: make(map[string][]int, assignments)}
	for a, row := range counts {
		out.Counts[bitString(a, len(inputs))] = row
	}
	return out, nil
}

// settle steps net until it lands on an attractor state.
func settle(net *network.Network, space *stateSpace) (int, error) {
	for steps := 0; steps <= len(space.succ); steps++ {
		if id := space.onCycle[encodeVector(net.StateVector())]; id >= 0 {
			return int(id), nil
		}
		net.Update()
	}
	return 0, fmt.Errorf("trajectory did not reach an attractor")
}

func encodeVector(v []bool) uint32 {
	var s uint32
	for _, b := range v {
		s <<= 1
		if b {
			s |= 1
		}
	}
	return s
}

func bitOf(x, width, i int) bool {
	return x&(1<<(width-1-i)) != 0
}

func bitString(x, width int) string {
	var b strings.Builder
	for i := 0; i < width; i++ {
		if bitOf(x, width, i) {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}
