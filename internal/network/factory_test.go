package network

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactoryGeneratesUniformArity(t *testing.T) {
	f, err := NewFactory(FactoryConfig{Size: Count(6), Arity: Uniform(2), Bias: 0.5})
	require.NoError(t, err)

	net, err := f.Generate(rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1", "2", "3", "4", "5"}, net.Labels())
	for _, node := range net.Nodes() {
		preds := node.Predecessors()
		assert.Len(t, preds, 2)
		assert.NotContains(t, preds, node.Label())
		assert.True(t, node.Function().IsDeterministic())
	}
}

func TestFactoryIsReproducible(t *testing.T) {
	f, err := NewFactory(FactoryConfig{Size: Labels("a", "b", "c", "d"), Arity: Uniform(3), Bias: 0.3, RandomInitialState: true})
	require.NoError(t, err)

	a, err := f.Generate(rand.New(rand.NewSource(11)))
	require.NoError(t, err)
	b, err := f.Generate(rand.New(rand.NewSource(11)))
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
}

func TestFactoryBiasExtremes(t *testing.T) {
	for _, bias := range []float64{0, 1} {
		f, err := NewFactory(FactoryConfig{Size: Count(4), Arity: Uniform(2), Bias: bias})
		require.NoError(t, err)
		net, err := f.Generate(rand.New(rand.NewSource(1)))
		require.NoError(t, err)
		for _, node := range net.Nodes() {
			fn := node.Function()
			for i := 0; i < fn.Len(); i++ {
				assert.Equal(t, bias == 1, fn.ValueAt(i).Sample(nil))
			}
		}
	}
}

func TestFactoryProbabilisticEntries(t *testing.T) {
	f, err := NewFactory(FactoryConfig{Size: Count(3), Arity: Uniform(1), Probabilistic: true})
	require.NoError(t, err)
	net, err := f.Generate(rand.New(rand.NewSource(5)))
	require.NoError(t, err)
	assert.False(t, net.IsDeterministic())
}

func TestFactoryPerNodeArityAndSelfLoops(t *testing.T) {
	f, err := NewFactory(FactoryConfig{
		Size:           Labels("x", "y"),
		Arity:          PerNode(map[string]int{"x": 2}),
		AllowSelfLoops: true,
	})
	require.NoError(t, err)
	net, err := f.Generate(rand.New(rand.NewSource(2)))
	require.NoError(t, err)

	x, _ := net.Node("x")
	y, _ := net.Node("y")
	assert.Equal(t, []string{"x", "y"}, x.Predecessors())
	assert.Empty(t, y.Predecessors())
}

func TestFactoryOpenNetwork(t *testing.T) {
	f, err := NewFactory(FactoryConfig{
		Size:    Count(5),
		Arity:   Uniform(2),
		Bias:    0.5,
		Inputs:  Count(2),
		Outputs: Count(1),
	})
	require.NoError(t, err)

	open, err := f.GenerateOpen(rand.New(rand.NewSource(9)))
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1"}, open.Inputs())
	assert.Equal(t, []string{"4"}, open.Outputs())
	for _, label := range open.Inputs() {
		node, _ := open.Node(label)
		assert.Empty(t, node.Predecessors())
	}
	assert.Subset(t, open.DefaultExclusions(), open.Inputs())
}

func TestFactoryRejectsBadConfig(t *testing.T) {
	_, err := NewFactory(FactoryConfig{Size: Count(3), Arity: Uniform(3)})
	assert.True(t, errors.Is(err, ErrInvalidFactory))

	_, err = NewFactory(FactoryConfig{Size: Count(0)})
	assert.True(t, errors.Is(err, ErrInvalidFactory))

	_, err = NewFactory(FactoryConfig{Size: Count(3), Bias: 1.5})
	assert.True(t, errors.Is(err, ErrInvalidFactory))

	_, err = NewFactory(FactoryConfig{Size: Labels("a", "a")})
	assert.True(t, errors.Is(err, ErrDuplicateLabel))

	_, err = NewFactory(FactoryConfig{Size: Labels("a", "b"), Inputs: Labels("a"), Outputs: Labels("a")})
	assert.True(t, errors.Is(err, ErrIOOverlap))

	_, err = NewFactory(FactoryConfig{Size: Labels("a", "b"), Inputs: Labels("c")})
	assert.True(t, errors.Is(err, ErrIOSetNotSubset))

	_, err = NewFactory(FactoryConfig{Size: Labels("a"), Arity: PerNode(map[string]int{"z": 0})})
	assert.True(t, errors.Is(err, ErrUnknownNode))

	f, err := NewFactory(FactoryConfig{Size: Count(2)})
	require.NoError(t, err)
	_, err = f.Generate(nil)
	assert.Error(t, err)
}
