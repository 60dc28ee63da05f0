package vns

import "cmp"

// Comparator reports whether a is at least as good as b under the caller's
// acceptance policy. The engine accepts a candidate when
// Compare(candidate, incumbent) is true.
type Comparator[V any] func(a, b V) bool

// Maximize accepts strictly larger scores. Ties are rejected and count as
// stalls, which is the hill-climbing behavior of an adaptive walk.
func Maximize[V cmp.Ordered]() Comparator[V] {
	return func(a, b V) bool { return a > b }
}

// Minimize accepts strictly smaller scores. Ties are rejected.
func Minimize[V cmp.Ordered]() Comparator[V] {
	return func(a, b V) bool { return a < b }
}

// MaximizeWeak accepts ties, letting the walk drift across plateaus.
func MaximizeWeak[V cmp.Ordered]() Comparator[V] {
	return func(a, b V) bool { return a >= b }
}

// MinimizeWeak accepts ties.
func MinimizeWeak[V cmp.Ordered]() Comparator[V] {
	return func(a, b V) bool { return a <= b }
}

// AtLeast is the usual target check for maximized scores.
func AtLeast[V cmp.Ordered]() Comparator[V] {
	return func(score, target V) bool { return score >= target }
}

// AtMost is the usual target check for minimized scores.
func AtMost[V cmp.Ordered]() Comparator[V] {
	return func(score, target V) bool { return score <= target }
}

// Lexicographic compares score vectors element by element, larger first
// elements winning. Ties on every element are accepted only when weak is set.
// Vectors of different length compare on their common prefix, then the
// longer vector wins.
func Lexicographic[V cmp.Ordered](weak bool) Comparator[[]V] {
	return func(a, b []V) bool {
		n := min(len(a), len(b))
		for i := 0; i < n; i++ {
			if c := cmp.Compare(a[i], b[i]); c != 0 {
				return c > 0
			}
		}
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		return weak
	}
}
