package datalog

import (
	"fmt"
	"strings"
)

// Rule is an existential rule body -> head. Head variables that also occur
// in the body form the frontier; the remaining head variables are
// existential and receive a fresh variable on every application.
type Rule struct {
	Label string
	Body  []Atom
	Head  []Atom

	frontier     []Term
	existentials []Term
}

// NewRule validates the rule and computes its frontier and existential
// variables
func NewRule(label string, body, head []Atom) (*Rule, error) {
	if len(head) == 0 {
		return nil, malformedRule(label, "rule has an empty head")
	}
	arities := make(map[string]int)
	if err := checkArities(arities, body); err != nil {
		return nil, malformedRule(label, "%v", err)
	}
	if err := checkArities(arities, head); err != nil {
		return nil, malformedRule(label, "%v", err)
	}

	r := &Rule{
		Label: label,
		Body:  append([]Atom(nil), body...),
		Head:  append([]Atom(nil), head...),
	}

	bodyVars := make(map[Term]struct{})
	for _, v := range VariablesOf(body) {
		bodyVars[v] = struct{}{}
	}
	for _, v := range VariablesOf(head) {
		if _, ok := bodyVars[v]; ok {
			r.frontier = append(r.frontier, v)
		} else {
			r.existentials = append(r.existentials, v)
		}
	}
	return r, nil
}

// MustRule is NewRule that panics on error; intended for tests and examples
func MustRule(label string, body, head []Atom) *Rule {
	r, err := NewRule(label, body, head)
	if err != nil {
		panic(err)
	}
	return r
}

// Frontier returns the head variables that occur in the body
func (r *Rule) Frontier() []Term { return r.frontier }

// Existentials returns the head variables that do not occur in the body
func (r *Rule) Existentials() []Term { return r.existentials }

// Variables returns every variable of the rule, body first
func (r *Rule) Variables() []Term {
	all := make([]Atom, 0, len(r.Body)+len(r.Head))
	all = append(all, r.Body...)
	all = append(all, r.Head...)
	return VariablesOf(all)
}

// Name returns the label, or the rule text when unlabelled
func (r *Rule) Name() string {
	if r.Label != "" {
		return r.Label
	}
	return r.String()
}

// String renders the rule as head :- body
func (r *Rule) String() string {
	var b strings.Builder
	if r.Label != "" {
		fmt.Fprintf(&b, "[%s] ", r.Label)
	}
	b.WriteString(FormatAtoms(r.Head))
	b.WriteString(" :- ")
	b.WriteString(FormatAtoms(r.Body))
	b.WriteByte('.')
	return b.String()
}

// RuleSet is an ordered, finite collection of rules
type RuleSet []*Rule

// Validate checks that every predicate is used with a single arity across
// all rules
func (rs RuleSet) Validate() error {
	arities := make(map[string]int)
	for _, r := range rs {
		if err := checkArities(arities, r.Body); err != nil {
			return malformedRule(r.Label, "%v", err)
		}
		if err := checkArities(arities, r.Head); err != nil {
			return malformedRule(r.Label, "%v", err)
		}
	}
	return nil
}

// Terms returns every term used by the rules, in first-occurrence order
func (rs RuleSet) Terms() []Term {
	seen := make(map[Term]struct{})
	var out []Term
	add := func(atoms []Atom) {
		for _, a := range atoms {
			for _, t := range a.Terms {
				if _, ok := seen[t]; !ok {
					seen[t] = struct{}{}
					out = append(out, t)
				}
			}
		}
	}
	for _, r := range rs {
		add(r.Body)
		add(r.Head)
	}
	return out
}
