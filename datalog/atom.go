package datalog

import (
	"fmt"
	"strings"
)

// Predicate identifies a relation by name and arity
type Predicate struct {
	Name  string
	Arity int
}

// String returns name/arity
func (p Predicate) String() string {
	return fmt.Sprintf("%s/%d", p.Name, p.Arity)
}

// Atom is a predicate applied to an ordered list of terms.
// Atoms are shared by reference across a chase run and must not be mutated
// after construction.
type Atom struct {
	Predicate Predicate
	Terms     []Term
}

// NewAtom creates an atom, deriving the arity from the number of terms
func NewAtom(predicate string, terms ...Term) Atom {
	ts := make([]Term, len(terms))
	copy(ts, terms)
	return Atom{
		Predicate: Predicate{Name: predicate, Arity: len(ts)},
		Terms:     ts,
	}
}

// Equal reports structural equality
func (a Atom) Equal(other Atom) bool {
	if a.Predicate != other.Predicate || len(a.Terms) != len(other.Terms) {
		return false
	}
	for i := range a.Terms {
		if a.Terms[i] != other.Terms[i] {
			return false
		}
	}
	return true
}

// Key returns a canonical string such that two atoms have the same key iff
// they are structurally equal
func (a Atom) Key() string {
	return string(EncodeAtom(a))
}

// IsGround reports whether the atom contains no variables
func (a Atom) IsGround() bool {
	for _, t := range a.Terms {
		if t.IsVariable() {
			return false
		}
	}
	return true
}

// Variables returns the distinct variables of the atom in first-occurrence order
func (a Atom) Variables() []Term {
	var vars []Term
	for _, t := range a.Terms {
		if !t.IsVariable() {
			continue
		}
		seen := false
		for _, v := range vars {
			if v == t {
				seen = true
				break
			}
		}
		if !seen {
			vars = append(vars, t)
		}
	}
	return vars
}

// Validate checks that the arity matches the terms and every term is valid
func (a Atom) Validate() error {
	if a.Predicate.Name == "" {
		return fmt.Errorf("atom %s has an empty predicate name", a)
	}
	if a.Predicate.Arity != len(a.Terms) {
		return fmt.Errorf("atom %s declares arity %d but has %d terms",
			a, a.Predicate.Arity, len(a.Terms))
	}
	for i, t := range a.Terms {
		if !t.IsValid() {
			return fmt.Errorf("atom %s has an invalid term at position %d", a, i)
		}
	}
	return nil
}

// String renders the atom as p(t1, ..., tn)
func (a Atom) String() string {
	var b strings.Builder
	b.WriteString(a.Predicate.Name)
	b.WriteByte('(')
	for i, t := range a.Terms {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.String())
	}
	b.WriteByte(')')
	return b.String()
}

// VariablesOf returns the distinct variables of a list of atoms in
// first-occurrence order
func VariablesOf(atoms []Atom) []Term {
	seen := make(map[Term]struct{})
	var vars []Term
	for _, a := range atoms {
		for _, t := range a.Terms {
			if !t.IsVariable() {
				continue
			}
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			vars = append(vars, t)
		}
	}
	return vars
}

// FormatAtoms joins atoms with ", "
func FormatAtoms(atoms []Atom) string {
	parts := make([]string, len(atoms))
	for i, a := range atoms {
		parts[i] = a.String()
	}
	return strings.Join(parts, ", ")
}

// checkArities verifies that every predicate name is used with a single arity
func checkArities(arities map[string]int, atoms []Atom) error {
	for _, a := range atoms {
		if err := a.Validate(); err != nil {
			return err
		}
		if n, ok := arities[a.Predicate.Name]; ok && n != a.Predicate.Arity {
			return fmt.Errorf("predicate %s used with arities %d and %d",
				a.Predicate.Name, n, a.Predicate.Arity)
		}
		arities[a.Predicate.Name] = a.Predicate.Arity
	}
	return nil
}
