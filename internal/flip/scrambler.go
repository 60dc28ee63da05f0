package flip

import (
	"errors"
	"math/rand"

	"bnsearch/internal/network"
)

// Scrambler produces neighbors of a network by flipping random truth-table
// entries in place. The caller owns the network until the matching Tidy or
// acceptance. A Scrambler shares its Rand with the network it edits and is
// not safe for concurrent use.
type Scrambler struct {
	Rand *rand.Rand
	// Base is always excluded, typically inputs and terminal nodes.
	Base *Exclusions
	// Tabu adds every drawn flip to the returned exclusion set, so a rejected
	// move is not drawn again until the engine clears the set on acceptance.
	Tabu bool
}

// NewScrambler excludes the open network's inputs and terminal nodes.
func NewScrambler(rng *rand.Rand, open *network.OpenNetwork, tabu bool) *Scrambler {
	return &Scrambler{Rand: rng, Base: NewExclusions(open.DefaultExclusions()...), Tabu: tabu}
}

// Scramble applies up to n flips drawn from the entries not excluded by Base
// or excluded. It returns the mutated network, the applied flips, and the
// exclusion set the next scramble should honor.
func (s *Scrambler) Scramble(net *network.Network, n int, excluded *Exclusions) (*network.Network, []Flip, *Exclusions, error) {
	if s == nil || s.Rand == nil {
		return net, nil, excluded, errors.New("random source is required")
	}
	pool := Available(net, s.Base.Merge(excluded))
	if len(pool) == 0 {
		return net, nil, excluded, ErrNoCandidates
	}
	chosen := Sample(s.Rand, pool, n)

	if err := Apply(net, chosen); err != nil {
		return net, nil, excluded, err
	}
	next := excluded.Clone()
	if s.Tabu {
		next.ExcludeFlip(chosen...)
	}
	return net, chosen, next, nil
}

// Tidy rolls back a rejected scramble.
func (s *Scrambler) Tidy(net *network.Network, flips []Flip) (*network.Network, error) {
	return net, Revert(net, flips)
}
