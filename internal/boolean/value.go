package boolean

import "fmt"

// Rand is the randomness a probabilistic Value needs to draw a sample.
// *math/rand.Rand satisfies it.
type Rand interface {
	Float64() float64
}

// Value is a truth probability in [0, 1]. A bias of exactly 0 or 1 is
// deterministic; anything in between draws a fresh Bernoulli sample on every
// evaluation.
//
// The complement is tracked as a flag rather than stored as 1-bias so that
// flipping twice restores the exact original bias.
type Value struct {
	bias    float64
	negated bool
}

// Deterministic returns a Value that always evaluates to v.
func Deterministic(v bool) Value {
	if v {
		return Value{bias: 1}
	}
	return Value{bias: 0}
}

// Probabilistic returns a Value that is true with the given bias. The bias is
// clamped to [0, 1].
func Probabilistic(bias float64) Value {
	return Value{bias: clamp(bias)}
}

// FromInt coerces an integer truth value: zero is false, anything else true.
func FromInt(v int) Value {
	return Deterministic(v != 0)
}

func (v Value) Bias() float64 {
	if v.negated {
		return 1 - v.bias
	}
	return v.bias
}

func (v Value) IsDeterministic() bool {
	return v.bias == 0 || v.bias == 1
}

// Sample evaluates the value. Deterministic values ignore r, which may be nil.
func (v Value) Sample(r Rand) bool {
	if v.IsDeterministic() {
		return (v.bias == 1) != v.negated
	}
	if r == nil {
		panic("boolean: probabilistic value sampled without a random source")
	}
	return r.Float64() < v.Bias()
}

// Flipped returns the value with bias 1-bias. Flipping is an involution.
func (v Value) Flipped() Value {
	return Value{bias: v.bias, negated: !v.negated}
}

// Truthy collapses the value to its most likely outcome. Ties resolve false.
func (v Value) Truthy() bool {
	return v.Bias() > 0.5
}

// Equal compares biases.
func (v Value) Equal(other Value) bool {
	return v.Bias() == other.Bias()
}

func (v Value) String() string {
	if v.IsDeterministic() {
		if v.Sample(nil) {
			return "true"
		}
		return "false"
	}
	return fmt.Sprintf("p(%g)", v.Bias())
}

func clamp(bias float64) float64 {
	if bias != bias {
		return 0
	}
	if bias < 0 {
		return 0
	}
	if bias > 1 {
		return 1
	}
	return bias
}
