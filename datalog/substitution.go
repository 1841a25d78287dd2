package datalog

import (
	"slices"
	"strings"
)

// Substitution is an immutable mapping from variables to terms.
// Every operation that adds bindings returns a new value, so a substitution
// held by one caller never changes underneath it.
type Substitution struct {
	m map[Term]Term
}

// EmptySubstitution returns the substitution with no bindings
func EmptySubstitution() Substitution {
	return Substitution{}
}

// NewSubstitution builds a substitution from a map. The map is copied.
func NewSubstitution(bindings map[Term]Term) Substitution {
	if len(bindings) == 0 {
		return Substitution{}
	}
	m := make(map[Term]Term, len(bindings))
	for k, v := range bindings {
		m[k] = v
	}
	return Substitution{m: m}
}

// Len returns the number of bindings
func (s Substitution) Len() int { return len(s.m) }

// Lookup returns the image of v, or false if v is unbound
func (s Substitution) Lookup(v Term) (Term, bool) {
	t, ok := s.m[v]
	return t, ok
}

// Extend returns a copy of s with v bound to t
func (s Substitution) Extend(v, t Term) Substitution {
	m := make(map[Term]Term, len(s.m)+1)
	for k, x := range s.m {
		m[k] = x
	}
	m[v] = t
	return Substitution{m: m}
}

// ApplyTerm returns the image of t; terms that are not bound variables are
// returned unchanged
func (s Substitution) ApplyTerm(t Term) Term {
	if !t.IsVariable() {
		return t
	}
	if img, ok := s.m[t]; ok {
		return img
	}
	return t
}

// Apply replaces every bound variable of the atom by its image
func (s Substitution) Apply(a Atom) Atom {
	terms := make([]Term, len(a.Terms))
	for i, t := range a.Terms {
		terms[i] = s.ApplyTerm(t)
	}
	return Atom{Predicate: a.Predicate, Terms: terms}
}

// ApplyAll applies the substitution to every atom
func (s Substitution) ApplyAll(atoms []Atom) []Atom {
	out := make([]Atom, len(atoms))
	for i, a := range atoms {
		out[i] = s.Apply(a)
	}
	return out
}

// Restrict keeps only the bindings of the given variables
func (s Substitution) Restrict(vars []Term) Substitution {
	m := make(map[Term]Term, len(vars))
	for _, v := range vars {
		if t, ok := s.m[v]; ok {
			m[v] = t
		}
	}
	return Substitution{m: m}
}

// Compose returns the substitution x -> other(s(x)) over the union of both
// domains: bindings of s are rewritten by other, bindings of other for
// variables unbound in s are kept
func (s Substitution) Compose(other Substitution) Substitution {
	m := make(map[Term]Term, len(s.m)+len(other.m))
	for k, v := range s.m {
		m[k] = other.ApplyTerm(v)
	}
	for k, v := range other.m {
		if _, ok := m[k]; !ok {
			m[k] = v
		}
	}
	return Substitution{m: m}
}

// Domain returns the bound variables, sorted
func (s Substitution) Domain() []Term {
	vars := make([]Term, 0, len(s.m))
	for k := range s.m {
		vars = append(vars, k)
	}
	slices.SortFunc(vars, Term.Compare)
	return vars
}

// Equal reports whether both substitutions have exactly the same bindings
func (s Substitution) Equal(other Substitution) bool {
	if len(s.m) != len(other.m) {
		return false
	}
	for k, v := range s.m {
		if w, ok := other.m[k]; !ok || w != v {
			return false
		}
	}
	return true
}

// Key returns a canonical encoding, equal for equal substitutions
func (s Substitution) Key() string {
	var b []byte
	for _, v := range s.Domain() {
		b = AppendTerm(b, v)
		b = AppendTerm(b, s.m[v])
	}
	return string(b)
}

// Map returns a copy of the bindings
func (s Substitution) Map() map[Term]Term {
	m := make(map[Term]Term, len(s.m))
	for k, v := range s.m {
		m[k] = v
	}
	return m
}

// String renders {X -> a, Y -> b} with variables sorted
func (s Substitution) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, v := range s.Domain() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(v.String())
		b.WriteString(" -> ")
		b.WriteString(s.m[v].String())
	}
	b.WriteByte('}')
	return b.String()
}

// SubstitutionBuilder accumulates bindings privately and seals them into a
// Substitution. The builder must not be used after Build.
type SubstitutionBuilder struct {
	m map[Term]Term
}

// NewSubstitutionBuilder creates a builder with room for n bindings
func NewSubstitutionBuilder(n int) *SubstitutionBuilder {
	return &SubstitutionBuilder{m: make(map[Term]Term, n)}
}

// Put binds v to t
func (b *SubstitutionBuilder) Put(v, t Term) *SubstitutionBuilder {
	b.m[v] = t
	return b
}

// Build seals the bindings
func (b *SubstitutionBuilder) Build() Substitution {
	s := Substitution{m: b.m}
	b.m = nil
	return s
}

// SubstitutionIterator is a lazy, closable sequence of substitutions
type SubstitutionIterator interface {
	Next() bool
	Substitution() Substitution
	Err() error
	Close() error
}

// CollectSubstitutions drains and closes an iterator
func CollectSubstitutions(it SubstitutionIterator) ([]Substitution, error) {
	defer it.Close()
	var out []Substitution
	for it.Next() {
		out = append(out, it.Substitution())
	}
	return out, it.Err()
}
