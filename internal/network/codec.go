package network

import (
	"encoding/json"
	"fmt"
	"strconv"

	"bnsearch/internal/boolean"
)

type truthRowJSON struct {
	Params []bool             `json:"params"`
	Hold   map[string]float64 `json:"hold"`
}

type functionJSON struct {
	Arity      int            `json:"arity"`
	TruthTable []truthRowJSON `json:"truth_table"`
}

type nodeJSON struct {
	ID     string       `json:"id"`
	Inputs []string     `json:"inputs"`
	BF     functionJSON `json:"bf"`
	IState bool         `json:"istate"`
	CState bool         `json:"cstate"`
}

type networkJSON struct {
	Nodes     []nodeJSON `json:"nodes"`
	Inputs    []string   `json:"inputs,omitempty"`
	Outputs   []string   `json:"outputs,omitempty"`
	SelfLoops bool       `json:"self_loops,omitempty"`
}

func encodeFunction(f *boolean.Function) functionJSON {
	out := functionJSON{Arity: f.Arity(), TruthTable: make([]truthRowJSON, f.Len())}
	for i := 0; i < f.Len(); i++ {
		params, v := f.At(i)
		bias := v.Bias()
		out.TruthTable[i] = truthRowJSON{
			Params: params,
			Hold:   map[string]float64{"0": 1 - bias, "1": bias},
		}
	}
	return out
}

func decodeFunction(in functionJSON) (*boolean.Function, error) {
	if in.Arity < 0 || in.Arity > boolean.MaxArity {
		return nil, fmt.Errorf("arity %d out of range", in.Arity)
	}
	size := 1 << in.Arity
	if len(in.TruthTable) != size {
		return nil, fmt.Errorf("truth table has %d rows, arity %d needs %d", len(in.TruthTable), in.Arity, size)
	}
	seen := make([]bool, size)
	f := boolean.NewFunction(in.Arity, nil)
	for _, row := range in.TruthTable {
		if len(row.Params) != in.Arity {
			return nil, fmt.Errorf("truth table row has %d params, want %d", len(row.Params), in.Arity)
		}
		idx := boolean.ParamsIndex(row.Params)
		if seen[idx] {
			return nil, fmt.Errorf("truth table row %v listed twice", row.Params)
		}
		seen[idx] = true
		bias, err := holdBias(row.Hold)
		if err != nil {
			return nil, fmt.Errorf("truth table row %v: %w", row.Params, err)
		}
		f.SetAt(idx, bias)
	}
	return f, nil
}

func holdBias(hold map[string]float64) (float64, error) {
	if p, ok := hold["1"]; ok {
		return p, nil
	}
	if p, ok := hold["0"]; ok {
		return 1 - p, nil
	}
	return 0, fmt.Errorf("hold needs a %q or %q entry", "0", "1")
}

func (n *Network) toJSON() networkJSON {
	out := networkJSON{Nodes: make([]nodeJSON, 0, len(n.order)), SelfLoops: n.allowSelfLoops}
	for _, label := range n.order {
		node := n.nodes[label]
		out.Nodes = append(out.Nodes, nodeJSON{
			ID:     node.label,
			Inputs: node.Predecessors(),
			BF:     encodeFunction(node.function),
			IState: node.initialState,
			CState: node.state,
		})
	}
	return out
}

func networkFromJSON(in networkJSON) (*Network, error) {
	nodes := make([]*Node, 0, len(in.Nodes))
	for i, raw := range in.Nodes {
		fn, err := decodeFunction(raw.BF)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", nodeName(raw.ID, i), err)
		}
		preds := raw.Inputs
		if preds == nil {
			preds = []string{}
		}
		node, err := NewNode(raw.ID, preds, fn, raw.IState)
		if err != nil {
			return nil, err
		}
		node.state = raw.CState
		nodes = append(nodes, node)
	}
	var opts []Option
	if in.SelfLoops {
		opts = append(opts, AllowSelfLoops())
	}
	return New(nodes, opts...)
}

func nodeName(id string, pos int) string {
	if id == "" {
		return "#" + strconv.Itoa(pos)
	}
	return id
}

// MarshalJSON encodes the node records; cstate carries the live state.
func (n *Network) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.toJSON())
}

// UnmarshalJSON replaces n with the decoded network. Current states are
// restored verbatim from cstate.
func (n *Network) UnmarshalJSON(data []byte) error {
	var raw networkJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded, err := networkFromJSON(raw)
	if err != nil {
		return err
	}
	rng := n.rng
	*n = *decoded
	n.rng = rng
	return nil
}

func (o *OpenNetwork) MarshalJSON() ([]byte, error) {
	raw := o.Network.toJSON()
	raw.Inputs = o.Inputs()
	raw.Outputs = o.Outputs()
	return json.Marshal(raw)
}

func (o *OpenNetwork) UnmarshalJSON(data []byte) error {
	var raw networkJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	net, err := networkFromJSON(raw)
	if err != nil {
		return err
	}
	decoded, err := NewOpen(net, raw.Inputs, raw.Outputs)
	if err != nil {
		return err
	}
	*o = *decoded
	return nil
}

// Decode parses a network document. Inputs and outputs, if present, are
// ignored; use DecodeOpen to keep them.
func Decode(data []byte) (*Network, error) {
	n := &Network{}
	if err := json.Unmarshal(data, n); err != nil {
		return nil, err
	}
	return n, nil
}

// DecodeOpen parses a network document with its input and output sets. A
// document without them yields an open network with empty sets.
func DecodeOpen(data []byte) (*OpenNetwork, error) {
	o := &OpenNetwork{}
	if err := json.Unmarshal(data, o); err != nil {
		return nil, err
	}
	return o, nil
}
