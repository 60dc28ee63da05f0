package vns

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdaptiveWalkPreset(t *testing.T) {
	p := AdaptiveWalk(0.9, 100, 20)
	require.NoError(t, p.Validate())
	assert.Equal(t, 1, p.MinFlips)
	assert.Equal(t, 1, p.MaxFlips)
	assert.Equal(t, -1, p.MaxStalls)
	assert.Equal(t, 20, p.MaxStagnation)
	assert.Equal(t, 0.9, p.TargetScore)
}

func TestParamsValidate(t *testing.T) {
	cases := []struct {
		name string
		p    Params[float64]
		ok   bool
	}{
		{"unbounded", Params[float64]{MinFlips: 3, MaxFlips: -1, MaxIters: 10, MaxStalls: -1, MaxStagnation: -1}, true},
		{"zero iterations", Params[float64]{MinFlips: 1, MaxFlips: 1, MaxIters: 0}, true},
		{"min above max", Params[float64]{MinFlips: 2, MaxFlips: 1, MaxIters: 10}, false},
		{"zero min flips", Params[float64]{MinFlips: 0, MaxFlips: 1, MaxIters: 10}, false},
		{"stall sentinel below -1", Params[float64]{MinFlips: 1, MaxFlips: 1, MaxIters: 10, MaxStalls: -2}, false},
		{"stagnation sentinel below -1", Params[float64]{MinFlips: 1, MaxFlips: 1, MaxIters: 10, MaxStagnation: -5}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.p.Validate()
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, ErrInvalidParams), "got %v", err)
		})
	}
}
