package datalog

import "context"

// FactCollection is the capability the solver and the chase engine need from
// a fact store. It has set semantics over atoms.
//
// Implementations must be safe for concurrent readers while a single writer
// inserts. AddAll must be atomic: readers observe either none or all of the
// batch.
type FactCollection interface {
	// Contains reports whether the atom is present
	Contains(a Atom) (bool, error)

	// Iterator returns a fresh iterator over all atoms. Each call starts from
	// the beginning.
	Iterator() (AtomIterator, error)

	// Terms returns the distinct terms occurring in the atoms, in an order
	// that is deterministic for a given insertion history
	Terms() ([]Term, error)

	// Add inserts an atom, reporting whether it was new
	Add(a Atom) (bool, error)

	// AddAll atomically inserts a batch, returning how many atoms were new
	AddAll(atoms []Atom) (int, error)

	// Size returns the number of atoms
	Size() (int, error)
}

// AtomIterator provides sequential access to atoms
type AtomIterator interface {
	Next() bool
	Atom() Atom
	Err() error
	Close() error
}

// PatternEvaluator is implemented by fact collections that can evaluate a
// conjunctive pattern natively (e.g. by translating it to SQL). answer nil
// means every variable of the pattern is reported.
type PatternEvaluator interface {
	Evaluate(ctx context.Context, atoms []Atom, answer []Term) (SubstitutionIterator, error)
}

// UnionEvaluator is implemented by fact collections that can evaluate a
// union of conjunctive patterns natively. answers[i] are the answer
// variables of patterns[i]; all lists have the same length and results are
// reported under answers[0].
type UnionEvaluator interface {
	EvaluateUnion(ctx context.Context, patterns [][]Atom, answers [][]Term) (SubstitutionIterator, error)
}

// CollectAtoms drains a fact collection into a slice
func CollectAtoms(facts FactCollection) ([]Atom, error) {
	it, err := facts.Iterator()
	if err != nil {
		return nil, NewStoreError("iterate", nil, err)
	}
	defer it.Close()
	var out []Atom
	for it.Next() {
		out = append(out, it.Atom())
	}
	if err := it.Err(); err != nil {
		return nil, NewStoreError("iterate", nil, err)
	}
	return out, nil
}

// SliceIterator iterates over an in-memory slice of atoms
type SliceIterator struct {
	atoms []Atom
	pos   int
}

// NewSliceIterator creates an iterator over atoms; the slice is not copied
func NewSliceIterator(atoms []Atom) *SliceIterator {
	return &SliceIterator{atoms: atoms, pos: -1}
}

func (it *SliceIterator) Next() bool {
	if it.pos+1 >= len(it.atoms) {
		it.pos = len(it.atoms)
		return false
	}
	it.pos++
	return true
}

func (it *SliceIterator) Atom() Atom {
	if it.pos < 0 || it.pos >= len(it.atoms) {
		return Atom{}
	}
	return it.atoms[it.pos]
}

func (it *SliceIterator) Err() error   { return nil }
func (it *SliceIterator) Close() error { return nil }

// SliceSubstitutions iterates over an in-memory slice of substitutions
type SliceSubstitutions struct {
	subs []Substitution
	pos  int
}

// NewSliceSubstitutions creates an iterator over subs
func NewSliceSubstitutions(subs []Substitution) *SliceSubstitutions {
	return &SliceSubstitutions{subs: subs, pos: -1}
}

func (it *SliceSubstitutions) Next() bool {
	if it.pos+1 >= len(it.subs) {
		it.pos = len(it.subs)
		return false
	}
	it.pos++
	return true
}

func (it *SliceSubstitutions) Substitution() Substitution {
	if it.pos < 0 || it.pos >= len(it.subs) {
		return Substitution{}
	}
	return it.subs[it.pos]
}

func (it *SliceSubstitutions) Err() error   { return nil }
func (it *SliceSubstitutions) Close() error { return nil }
