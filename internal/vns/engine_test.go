package vns

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bnsearch/internal/boolean"
	"bnsearch/internal/flip"
	"bnsearch/internal/network"
)

func testNetwork(t *testing.T) *network.Network {
	t.Helper()
	f, err := network.NewFactory(network.FactoryConfig{Size: network.Count(3), Arity: network.Uniform(2), Bias: 0})
	require.NoError(t, err)
	net, err := f.Generate(rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	return net
}

func countTrue(net *network.Network) int {
	total := 0
	for _, node := range net.Nodes() {
		fn := node.Function()
		for i := 0; i < fn.Len(); i++ {
			if fn.ValueAt(i).Truthy() {
				total++
			}
		}
	}
	return total
}

func onesObjective(_ context.Context, net *network.Network, _ Context[int]) (int, error) {
	return countTrue(net), nil
}

func constant(score int) EvaluateFunc[*network.Network, int] {
	return func(context.Context, *network.Network, Context[int]) (int, error) { return score, nil }
}

func networkEngine(seed int64, evaluate EvaluateFunc[*network.Network, int], compare Comparator[int]) *Engine[*network.Network, int] {
	s := &flip.Scrambler{Rand: rand.New(rand.NewSource(seed))}
	return &Engine[*network.Network, int]{
		Evaluate: evaluate,
		Compare:  compare,
		Scramble: s.Scramble,
		Tidy:     s.Tidy,
	}
}

func rejectAll(int, int) bool { return false }

func TestSearchClimbsToTarget(t *testing.T) {
	net := testNetwork(t)
	require.Equal(t, 0, countTrue(net))

	e := networkEngine(2, onesObjective, Maximize[int]())
	e.Reached = AtLeast[int]()
	best, state, err := e.Search(context.Background(), net, AdaptiveWalk(12, 5000, -1))
	require.NoError(t, err)

	assert.True(t, state.Reached)
	assert.Equal(t, ReasonTargetReached, state.Reason)
	assert.Equal(t, 12, state.Score)
	assert.Equal(t, 12, countTrue(best))
	assert.Equal(t, 12, state.Accepted)
	assert.Equal(t, state.Iteration+1, state.Evaluations)
}

func TestSearchScoreNeverWorsensUnderStrictComparator(t *testing.T) {
	net := testNetwork(t)
	initial := countTrue(net)

	var history []int
	e := networkEngine(3, onesObjective, Maximize[int]())
	e.Observe = func(s Step[int]) { history = append(history, s.Score) }
	best, state, err := e.Search(context.Background(), net, Params[int]{
		TargetScore: 100, MinFlips: 1, MaxFlips: 4, MaxIters: 200, MaxStalls: 3, MaxStagnation: -1,
	})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, state.Score, initial)
	assert.Equal(t, state.Score, countTrue(best))
	for i := 1; i < len(history); i++ {
		assert.GreaterOrEqual(t, history[i], history[i-1])
	}
}

func TestNeighborhoodGrowsAfterMaxStalls(t *testing.T) {
	net := testNetwork(t)
	orig := net.Clone()

	var sizes []int
	e := networkEngine(4, constant(0), rejectAll)
	e.Observe = func(s Step[int]) { sizes = append(sizes, s.NFlips) }
	best, state, err := e.Search(context.Background(), net, Params[int]{
		TargetScore: 1, MinFlips: 1, MaxFlips: -1, MaxIters: 3, MaxStalls: 3, MaxStagnation: -1,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, state.Iteration)
	assert.Equal(t, 2, state.NFlips)
	assert.Equal(t, 0, state.NStalls)
	assert.Equal(t, 3, state.Stagnation)
	assert.Equal(t, []int{1, 1, 1}, sizes)
	assert.Equal(t, ReasonMaxIters, state.Reason)
	assert.False(t, state.Reached)
	assert.True(t, best.Equal(orig), "rejected candidates must be reverted")
}

func TestAdaptiveWalkWithAcceptingComparatorRunsToMaxIters(t *testing.T) {
	net := testNetwork(t)
	e := networkEngine(5, constant(0), MaximizeWeak[int]())

	_, state, err := e.Search(context.Background(), net, AdaptiveWalk(1, 50, -1))
	require.NoError(t, err)
	assert.Equal(t, 50, state.Iteration)
	assert.Equal(t, 50, state.Accepted)
	assert.False(t, state.Terminated)
	assert.Equal(t, ReasonMaxIters, state.Reason)
	assert.Equal(t, 1, state.NFlips)
}

func TestSearchStopsOnStagnation(t *testing.T) {
	e := networkEngine(6, constant(0), rejectAll)
	_, state, err := e.Search(context.Background(), testNetwork(t), Params[int]{
		TargetScore: 1, MinFlips: 1, MaxFlips: -1, MaxIters: 100, MaxStalls: -1, MaxStagnation: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, state.Iteration)
	assert.True(t, state.Terminated)
	assert.Equal(t, ReasonMaxStagnation, state.Reason)
}

func TestSearchStopsWhenNeighborhoodExceedsMaxFlips(t *testing.T) {
	e := networkEngine(7, constant(0), rejectAll)
	_, state, err := e.Search(context.Background(), testNetwork(t), Params[int]{
		TargetScore: 1, MinFlips: 1, MaxFlips: 2, MaxIters: 100, MaxStalls: 2, MaxStagnation: -1,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, state.Iteration)
	assert.Equal(t, 3, state.NFlips)
	assert.Equal(t, ReasonMaxFlips, state.Reason)
}

func TestSearchStopsWithoutCandidates(t *testing.T) {
	net := testNetwork(t)
	s := &flip.Scrambler{Rand: rand.New(rand.NewSource(1)), Base: flip.NewExclusions(net.Labels()...)}
	e := &Engine[*network.Network, int]{Evaluate: constant(0), Compare: rejectAll, Scramble: s.Scramble, Tidy: s.Tidy}

	_, state, err := e.Search(context.Background(), net, AdaptiveWalk(1, 10, -1))
	require.NoError(t, err)
	assert.Equal(t, 0, state.Iteration)
	assert.True(t, state.Terminated)
	assert.Equal(t, ReasonNoCandidates, state.Reason)
}

func TestTabuExhaustsCandidates(t *testing.T) {
	net := testNetwork(t)
	s := &flip.Scrambler{Rand: rand.New(rand.NewSource(1)), Tabu: true}
	e := &Engine[*network.Network, int]{Evaluate: constant(0), Compare: rejectAll, Scramble: s.Scramble, Tidy: s.Tidy}

	_, state, err := e.Search(context.Background(), net, AdaptiveWalk(1, 100, -1))
	require.NoError(t, err)
	assert.Equal(t, 12, state.Iteration)
	assert.Equal(t, ReasonNoCandidates, state.Reason)
	assert.Equal(t, 12, state.Excluded.FlipCount())
}

func TestSearchPropagatesEvaluatorErrorAndReverts(t *testing.T) {
	net := testNetwork(t)
	orig := net.Clone()
	boom := errors.New("oracle crashed")
	calls := 0
	evaluate := func(_ context.Context, n *network.Network, _ Context[int]) (int, error) {
		calls++
		if calls == 3 {
			return 0, boom
		}
		return countTrue(n), nil
	}

	e := networkEngine(8, evaluate, rejectAll)
	best, state, err := e.Search(context.Background(), net, AdaptiveWalk(100, 10, -1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, 1, state.Iteration)
	assert.Equal(t, 2, state.Evaluations)
	assert.Equal(t, 1, state.Stagnation)
	assert.True(t, best.Equal(orig))
}

func TestSearchHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := networkEngine(9, constant(0), rejectAll)
	_, state, err := e.Search(ctx, testNetwork(t), AdaptiveWalk(1, 10, -1))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, state.Iteration)
}

func TestSearchReachedBeforeFirstIteration(t *testing.T) {
	e := networkEngine(10, constant(5), Maximize[int]())
	e.Reached = AtLeast[int]()
	_, state, err := e.Search(context.Background(), testNetwork(t), AdaptiveWalk(5, 10, -1))
	require.NoError(t, err)
	assert.Equal(t, 0, state.Iteration)
	assert.Equal(t, 1, state.Evaluations)
	assert.Equal(t, ReasonTargetReached, state.Reason)
}

func TestSearchRejectsInvalidParams(t *testing.T) {
	e := networkEngine(11, constant(0), rejectAll)
	_, _, err := e.Search(context.Background(), testNetwork(t), Params[int]{MinFlips: 0, MaxFlips: 1, MaxIters: 1})
	assert.True(t, errors.Is(err, ErrInvalidParams))
	_, _, err = e.Search(context.Background(), testNetwork(t), Params[int]{MinFlips: 3, MaxFlips: 2, MaxIters: 1})
	assert.True(t, errors.Is(err, ErrInvalidParams))
	_, _, err = e.Search(context.Background(), testNetwork(t), Params[int]{MinFlips: 1, MaxFlips: 1, MaxIters: -1})
	assert.True(t, errors.Is(err, ErrInvalidParams))

	empty := &Engine[*network.Network, int]{}
	_, _, err = empty.Search(context.Background(), testNetwork(t), AdaptiveWalk(1, 1, -1))
	assert.Error(t, err)
}

func TestSearchFuncWithGenericSolution(t *testing.T) {
	// A solution that is a single function, scrambled by hand.
	fn := boolean.NewFunction(2, nil)
	scramble := func(f *boolean.Function, n int, excl *flip.Exclusions) (*boolean.Function, []flip.Flip, *flip.Exclusions, error) {
		for i := 0; i < f.Len(); i++ {
			if !f.ValueAt(i).Truthy() {
				f.FlipAt(i)
				return f, []flip.Flip{{Label: "f", Index: i}}, excl, nil
			}
		}
		return f, nil, excl, flip.ErrNoCandidates
	}
	tidy := func(f *boolean.Function, flips []flip.Flip) (*boolean.Function, error) {
		for _, fl := range flips {
			f.FlipAt(fl.Index)
		}
		return f, nil
	}
	evaluate := func(_ context.Context, f *boolean.Function, _ Context[float64]) (float64, error) {
		total := 0.0
		for i := 0; i < f.Len(); i++ {
			total += f.ValueAt(i).Bias()
		}
		return total, nil
	}

	best, state, err := Search(context.Background(), fn, evaluate, Maximize[float64](), scramble, tidy, AdaptiveWalk(4.0, 10, -1))
	require.NoError(t, err)
	assert.Equal(t, 4.0, state.Score)
	assert.True(t, best.Equal(boolean.Constant(2, boolean.Deterministic(true))))
	assert.Equal(t, ReasonNoCandidates, state.Reason)
}
