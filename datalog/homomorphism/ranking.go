package homomorphism

import (
	"github.com/wbrown/janus-chase/datalog"
)

// RankedPattern is a pattern preprocessed for the backtracking search.
//
// Order fixes the binding order of the searchable variables. Buckets has
// len(Order)+1 entries: Buckets[0] holds the atoms without searchable
// variables, Buckets[k] the atoms whose last variable in Order is Order[k-1].
// Once Order[0..k-1] are bound every atom of Buckets[0..k] is ground with
// respect to the searchable variables.
type RankedPattern struct {
	Atoms   []datalog.Atom
	Order   []datalog.Term
	Buckets [][]datalog.Atom
	Frozen  []datalog.Term
}

// OrderVariables returns the distinct variables of atoms in first-occurrence
// order, leaving out frozen variables
func OrderVariables(atoms []datalog.Atom, frozen []datalog.Term) []datalog.Term {
	skip := make(map[datalog.Term]struct{}, len(frozen))
	for _, v := range frozen {
		skip[v] = struct{}{}
	}
	var order []datalog.Term
	for _, v := range datalog.VariablesOf(atoms) {
		if _, ok := skip[v]; !ok {
			order = append(order, v)
		}
	}
	return order
}

// RankAtoms partitions atoms into rank buckets for the given order
func RankAtoms(atoms []datalog.Atom, order []datalog.Term) [][]datalog.Atom {
	rank := make(map[datalog.Term]int, len(order))
	for i, v := range order {
		rank[v] = i + 1
	}
	buckets := make([][]datalog.Atom, len(order)+1)
	for _, a := range atoms {
		r := 0
		for _, t := range a.Terms {
			if k, ok := rank[t]; ok && k > r {
				r = k
			}
		}
		buckets[r] = append(buckets[r], a)
	}
	return buckets
}

// Compile orders the variables of atoms and ranks the atoms
func Compile(atoms []datalog.Atom, frozen []datalog.Term) *RankedPattern {
	order := OrderVariables(atoms, frozen)
	return &RankedPattern{
		Atoms:   atoms,
		Order:   order,
		Buckets: RankAtoms(atoms, order),
		Frozen:  frozen,
	}
}

// patternKey identifies a pattern and its frozen variables for caching
func patternKey(atoms []datalog.Atom, frozen []datalog.Term) string {
	var b []byte
	for _, a := range atoms {
		b = datalog.AppendAtom(b, a)
	}
	b = append(b, 0xff)
	for _, v := range frozen {
		b = datalog.AppendTerm(b, v)
	}
	return string(b)
}
