package network

import (
	"bufio"
	"fmt"
	"regexp"
	"strings"

	"bnsearch/internal/boolean"
)

const (
	ebnfHeader    = "targets, factors"
	ebnfVarPrefix = "n"
)

var ebnfLabelPattern = regexp.MustCompile(`^[A-Za-z0-9_.]+$`)

// EBNF renders the network in the attractor oracle's text grammar: a header
// line, then one "n<label>, <expr>" line per node in insertion order.
//
// The expression is the disjunction, over truth-table rows that evaluate to
// true, of the conjunction of the row's predecessor literals. Probabilistic
// entries count as true when their bias is above one half. A node without
// predecessors holds its own value ("nX, nX"); a function with no true rows is
// the constant "0".
func (n *Network) EBNF() (string, error) {
	var b strings.Builder
	b.WriteString(ebnfHeader)
	b.WriteByte('\n')
	for _, label := range n.order {
		if !ebnfLabelPattern.MatchString(label) {
			return "", fmt.Errorf("label %q cannot be encoded", label)
		}
		node := n.nodes[label]
		b.WriteString(ebnfVarPrefix + label)
		b.WriteString(", ")
		b.WriteString(nodeExpression(node))
		b.WriteByte('\n')
	}
	return b.String(), nil
}

func nodeExpression(node *Node) string {
	if len(node.predecessors) == 0 {
		return ebnfVarPrefix + node.label
	}
	var terms []string
	fn := node.function
	for i := 0; i < fn.Len(); i++ {
		params, v := fn.At(i)
		if !v.Truthy() {
			continue
		}
		literals := make([]string, len(params))
		for j, p := range params {
			lit := ebnfVarPrefix + node.predecessors[j]
			if !p {
				lit = "!" + lit
			}
			literals[j] = lit
		}
		terms = append(terms, "("+strings.Join(literals, " & ")+")")
	}
	if len(terms) == 0 {
		return "0"
	}
	return strings.Join(terms, " | ")
}

// ParseEBNF reads the grammar EBNF produces back into a deterministic network.
// Constant expressions become self-fed constant nodes, so the parsed network
// allows self-loops.
func ParseEBNF(text string) (*Network, error) {
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	sawHeader := false
	var nodes []*Node
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !sawHeader {
			if !strings.EqualFold(line, ebnfHeader) {
				return nil, fmt.Errorf("line %d: expected header %q", lineNo, ebnfHeader)
			}
			sawHeader = true
			continue
		}
		target, expr, ok := strings.Cut(line, ",")
		if !ok {
			return nil, fmt.Errorf("line %d: missing comma", lineNo)
		}
		label, err := varLabel(strings.TrimSpace(target))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		node, err := parseNode(label, strings.TrimSpace(expr))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		nodes = append(nodes, node)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !sawHeader {
		return nil, fmt.Errorf("empty ebnf document")
	}
	return New(nodes, AllowSelfLoops())
}

func varLabel(v string) (string, error) {
	if !strings.HasPrefix(v, ebnfVarPrefix) || len(v) == len(ebnfVarPrefix) {
		return "", fmt.Errorf("variable %q lacks the %q prefix", v, ebnfVarPrefix)
	}
	label := strings.TrimPrefix(v, ebnfVarPrefix)
	if !ebnfLabelPattern.MatchString(label) {
		return "", fmt.Errorf("invalid variable %q", v)
	}
	return label, nil
}

type literal struct {
	label   string
	negated bool
}

func parseNode(label, expr string) (*Node, error) {
	switch expr {
	case "0", "1":
		fn := boolean.Constant(1, boolean.Deterministic(expr == "1"))
		return NewNode(label, []string{label}, fn, false)
	case ebnfVarPrefix + label:
		return NewNode(label, []string{}, boolean.Constant(0, boolean.Deterministic(false)), false)
	}

	var terms [][]literal
	vars := map[string]struct{}{}
	for _, rawTerm := range strings.Split(expr, "|") {
		rawTerm = strings.TrimSpace(rawTerm)
		rawTerm = strings.TrimPrefix(rawTerm, "(")
		rawTerm = strings.TrimSuffix(rawTerm, ")")
		var term []literal
		for _, rawLit := range strings.Split(rawTerm, "&") {
			rawLit = strings.TrimSpace(rawLit)
			neg := strings.HasPrefix(rawLit, "!")
			name, err := varLabel(strings.TrimSpace(strings.TrimPrefix(rawLit, "!")))
			if err != nil {
				return nil, err
			}
			term = append(term, literal{label: name, negated: neg})
			vars[name] = struct{}{}
		}
		terms = append(terms, term)
	}

	preds := make([]string, 0, len(vars))
	for v := range vars {
		preds = append(preds, v)
	}
	node, err := NewNode(label, preds, boolean.NewFunction(len(preds), nil), false)
	if err != nil {
		return nil, err
	}
	position := make(map[string]int, len(node.predecessors))
	for i, p := range node.predecessors {
		position[p] = i
	}
	fn := node.function
	for i := 0; i < fn.Len(); i++ {
		params, _ := fn.At(i)
		fn.SetValueAt(i, boolean.Deterministic(evalDNF(terms, params, position)))
	}
	return node, nil
}

func evalDNF(terms [][]literal, params []bool, position map[string]int) bool {
	for _, term := range terms {
		sat := true
		for _, lit := range term {
			if params[position[lit.label]] == lit.negated {
				sat = false
				break
			}
		}
		if sat {
			return true
		}
	}
	return false
}
