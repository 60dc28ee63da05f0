package attractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrOracleUnavailable  = errors.New("attractor oracle unavailable")
	ErrStateSpaceTooLarge = errors.New("state space too large for exhaustive analysis")
	ErrMalformedResult    = errors.New("malformed oracle result")
)

// Oracle computes the attractors of a network given in ebnf text, together
// with the attractor transition matrix. Implementations may be slow.
type Oracle interface {
	Analyze(ctx context.Context, ebnf string) (*Result, error)
}

// Attractor is a cycle of network states. Each state is a bit string with one
// character per node, in network label order.
type Attractor struct {
	States []string `json:"states"`
	// Basin is the fraction of the state space that settles here, when known.
	Basin float64 `json:"basin,omitempty"`
}

// Period is the cycle length; 1 for a fixed point.
func (a Attractor) Period() int {
	return len(a.States)
}

// Vectors decodes the bit strings.
func (a Attractor) Vectors() [][]bool {
	out := make([][]bool, len(a.States))
	for i, s := range a.States {
		v := make([]bool, len(s))
		for j := range s {
			v[j] = s[j] == '1'
		}
		out[i] = v
	}
	return out
}

// Result is the oracle output. ATM[i][j] is the probability that a random
// single-node perturbation of attractor i leads to attractor j.
type Result struct {
	Labels     []string    `json:"labels,omitempty"`
	Attractors []Attractor `json:"attractors"`
	ATM        [][]float64 `json:"atm"`
}

func (r *Result) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil result", ErrMalformedResult)
	}
	if len(r.ATM) != len(r.Attractors) {
		return fmt.Errorf("%w: atm has %d rows for %d attractors", ErrMalformedResult, len(r.ATM), len(r.Attractors))
	}
	for i, row := range r.ATM {
		if len(row) != len(r.Attractors) {
			return fmt.Errorf("%w: atm row %d has %d entries", ErrMalformedResult, i, len(row))
		}
		for _, p := range row {
			if p < 0 || p > 1 {
				return fmt.Errorf("%w: atm row %d has probability %v", ErrMalformedResult, i, p)
			}
		}
	}
	for i, a := range r.Attractors {
		if len(a.States) == 0 {
			return fmt.Errorf("%w: attractor %d has no states", ErrMalformedResult, i)
		}
		for _, s := range a.States {
			if strings.Trim(s, "01") != "" {
				return fmt.Errorf("%w: attractor %d state %q", ErrMalformedResult, i, s)
			}
			if len(r.Labels) > 0 && len(s) != len(r.Labels) {
				return fmt.Errorf("%w: attractor %d state %q for %d labels", ErrMalformedResult, i, s, len(r.Labels))
			}
		}
	}
	return nil
}

// decodeResult parses the JSON document external oracles print.
func decodeResult(data []byte) (*Result, error) {
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// toMap renders r with the plain JSON value types structpb accepts.
func (r *Result) toMap() (map[string]any, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func resultFromMap(m map[string]any) (*Result, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}
	return decodeResult(data)
}
