package boolean

import (
	"fmt"
	"strings"
)

// MaxArity bounds truth tables to 2^MaxArity entries.
const MaxArity = 24

// Function is a truth table of arity k with exactly 2^k entries.
//
// Entry i corresponds to the tuple whose first parameter is the most
// significant bit of i, so index 0 is all-false and index 2^k-1 is all-true.
// The bijection never changes for the lifetime of the function; mutation only
// replaces the bias stored at an index.
type Function struct {
	arity int
	table []Value
}

// NewFunction builds a table of the given arity, filling entry i with
// fill(i, params). A nil fill yields the constant-false function.
// Negative or oversized arity is a programmer error and panics.
func NewFunction(arity int, fill func(index int, params []bool) Value) *Function {
	if arity < 0 || arity > MaxArity {
		panic(fmt.Sprintf("boolean: arity %d out of range [0, %d]", arity, MaxArity))
	}
	f := &Function{arity: arity, table: make([]Value, 1<<arity)}
	if fill == nil {
		return f
	}
	for i := range f.table {
		f.table[i] = fill(i, IndexParams(arity, i))
	}
	return f
}

// Constant returns an arity-k function whose every entry is v.
func Constant(arity int, v Value) *Function {
	return NewFunction(arity, func(int, []bool) Value { return v })
}

// FromBools builds a deterministic function from outputs listed in index order.
func FromBools(arity int, outputs ...bool) *Function {
	if len(outputs) != 1<<arity {
		panic(fmt.Sprintf("boolean: arity %d needs %d outputs, got %d", arity, 1<<arity, len(outputs)))
	}
	return NewFunction(arity, func(i int, _ []bool) Value { return Deterministic(outputs[i]) })
}

// FromPredicate builds a deterministic function from a Go predicate.
func FromPredicate(arity int, pred func(params []bool) bool) *Function {
	return NewFunction(arity, func(_ int, params []bool) Value { return Deterministic(pred(params)) })
}

func (f *Function) Arity() int {
	return f.arity
}

// Len is the number of truth-table entries, 2^arity.
func (f *Function) Len() int {
	return len(f.table)
}

// ParamsIndex maps a parameter tuple to its table index.
func ParamsIndex(params []bool) int {
	idx := 0
	for _, p := range params {
		idx <<= 1
		if p {
			idx |= 1
		}
	}
	return idx
}

// IndexParams maps a table index back to its parameter tuple.
func IndexParams(arity, index int) []bool {
	params := make([]bool, arity)
	for j := 0; j < arity; j++ {
		params[j] = index&(1<<(arity-1-j)) != 0
	}
	return params
}

func (f *Function) checkIndex(i int) {
	if i < 0 || i >= len(f.table) {
		panic(fmt.Sprintf("boolean: truth table index %d out of range [0, %d)", i, len(f.table)))
	}
}

func (f *Function) checkParams(params []bool) {
	if len(params) != f.arity {
		panic(fmt.Sprintf("boolean: got %d parameters for arity %d", len(params), f.arity))
	}
}

// Get returns the value stored for params.
func (f *Function) Get(params []bool) Value {
	f.checkParams(params)
	return f.table[ParamsIndex(params)]
}

// At returns the parameter tuple and value stored at index i.
func (f *Function) At(i int) ([]bool, Value) {
	f.checkIndex(i)
	return IndexParams(f.arity, i), f.table[i]
}

// ValueAt returns the value stored at index i.
func (f *Function) ValueAt(i int) Value {
	f.checkIndex(i)
	return f.table[i]
}

// Set replaces the bias of the entry addressed by params.
func (f *Function) Set(params []bool, bias float64) {
	f.checkParams(params)
	f.table[ParamsIndex(params)] = Probabilistic(bias)
}

// SetAt replaces the bias of entry i.
func (f *Function) SetAt(i int, bias float64) {
	f.checkIndex(i)
	f.table[i] = Probabilistic(bias)
}

// SetValueAt stores v at entry i.
func (f *Function) SetValueAt(i int, v Value) {
	f.checkIndex(i)
	f.table[i] = v
}

// FlipAt replaces entry i's bias with 1-bias.
func (f *Function) FlipAt(i int) {
	f.checkIndex(i)
	f.table[i] = f.table[i].Flipped()
}

// Call evaluates the function on params without mutating the table.
func (f *Function) Call(r Rand, params []bool) bool {
	return f.Get(params).Sample(r)
}

// IsDeterministic reports whether every entry is deterministic.
func (f *Function) IsDeterministic() bool {
	for _, v := range f.table {
		if !v.IsDeterministic() {
			return false
		}
	}
	return true
}

// Equal compares two functions entrywise over all 2^k tuples.
func (f *Function) Equal(other *Function) bool {
	if f == nil || other == nil {
		return f == other
	}
	if f.arity != other.arity {
		return false
	}
	for i := range f.table {
		if !f.table[i].Equal(other.table[i]) {
			return false
		}
	}
	return true
}

func (f *Function) Clone() *Function {
	out := &Function{arity: f.arity, table: make([]Value, len(f.table))}
	copy(out.table, f.table)
	return out
}

// Permute returns an equivalent function whose parameters are reordered:
// parameter j of the result is parameter order[j] of f.
func (f *Function) Permute(order []int) *Function {
	if len(order) != f.arity {
		panic(fmt.Sprintf("boolean: permutation of length %d for arity %d", len(order), f.arity))
	}
	return NewFunction(f.arity, func(_ int, params []bool) Value {
		src := make([]bool, f.arity)
		for j, from := range order {
			src[from] = params[j]
		}
		return f.table[ParamsIndex(src)]
	})
}

func (f *Function) String() string {
	var b strings.Builder
	for i, v := range f.table {
		if i > 0 {
			b.WriteString(" ")
		}
		for _, p := range IndexParams(f.arity, i) {
			if p {
				b.WriteByte('1')
			} else {
				b.WriteByte('0')
			}
		}
		b.WriteString(":")
		b.WriteString(v.String())
	}
	return b.String()
}
