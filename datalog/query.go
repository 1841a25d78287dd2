package datalog

import (
	"fmt"
	"strings"
)

// ConjunctiveQuery is a body pattern plus the answer variables whose
// bindings are reported. A query without answer variables is boolean.
type ConjunctiveQuery struct {
	Label  string
	Body   []Atom
	Answer []Term
}

// NewConjunctiveQuery validates that the body is well formed and that every
// answer term is a variable occurring in the body
func NewConjunctiveQuery(label string, body []Atom, answer []Term) (*ConjunctiveQuery, error) {
	if err := ValidatePattern(body); err != nil {
		return nil, err
	}
	bodyVars := make(map[Term]struct{})
	for _, v := range VariablesOf(body) {
		bodyVars[v] = struct{}{}
	}
	seen := make(map[Term]struct{})
	for _, t := range answer {
		if !t.IsVariable() {
			return nil, fmt.Errorf("%w: answer term %s is not a variable", ErrMalformedQuery, t)
		}
		if _, ok := bodyVars[t]; !ok {
			return nil, fmt.Errorf("%w: answer variable %s does not occur in the body", ErrMalformedQuery, t)
		}
		if _, ok := seen[t]; ok {
			return nil, fmt.Errorf("%w: answer variable %s listed twice", ErrMalformedQuery, t)
		}
		seen[t] = struct{}{}
	}
	return &ConjunctiveQuery{
		Label:  label,
		Body:   append([]Atom(nil), body...),
		Answer: append([]Term{}, answer...),
	}, nil
}

// IsBoolean reports whether the query only asks for existence
func (q *ConjunctiveQuery) IsBoolean() bool { return len(q.Answer) == 0 }

// String renders ?(X, Y) :- body.
func (q *ConjunctiveQuery) String() string {
	var b strings.Builder
	if q.Label != "" {
		fmt.Fprintf(&b, "[%s] ", q.Label)
	}
	b.WriteString("?(")
	for i, t := range q.Answer {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.String())
	}
	b.WriteString(") :- ")
	b.WriteString(FormatAtoms(q.Body))
	b.WriteByte('.')
	return b.String()
}

// ValidatePattern checks every atom and that each predicate has one arity
func ValidatePattern(atoms []Atom) error {
	if err := checkArities(make(map[string]int), atoms); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedQuery, err)
	}
	return nil
}
