package storage

import (
	"slices"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/wbrown/janus-chase/datalog"
)

// MemoryStore keeps atoms in insertion order with a hash index for
// containment checks
type MemoryStore struct {
	mu sync.RWMutex

	atoms []datalog.Atom
	index map[uint64][]int // xxhash of the atom key -> positions in atoms

	terms   []datalog.Term
	termSet map[datalog.Term]struct{}
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		index:   make(map[uint64][]int),
		termSet: make(map[datalog.Term]struct{}),
	}
}

// NewMemoryStoreWith creates a store holding atoms
func NewMemoryStoreWith(atoms ...datalog.Atom) *MemoryStore {
	s := NewMemoryStore()
	for _, a := range atoms {
		s.add(a)
	}
	return s
}

func (s *MemoryStore) Contains(a datalog.Atom) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.contains(a, hashAtom(a)), nil
}

func (s *MemoryStore) contains(a datalog.Atom, h uint64) bool {
	for _, i := range s.index[h] {
		if s.atoms[i].Equal(a) {
			return true
		}
	}
	return false
}

// Iterator iterates over a snapshot of the atoms present at the call
func (s *MemoryStore) Iterator() (datalog.AtomIterator, error) {
	s.mu.RLock()
	snapshot := s.atoms[:len(s.atoms):len(s.atoms)]
	s.mu.RUnlock()
	return datalog.NewSliceIterator(snapshot), nil
}

// Terms returns the term domain in first-seen order
func (s *MemoryStore) Terms() ([]datalog.Term, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.terms), nil
}

func (s *MemoryStore) Add(a datalog.Atom) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(a), nil
}

// AddAll inserts the batch under a single lock
func (s *MemoryStore) AddAll(atoms []datalog.Atom) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range atoms {
		if s.add(a) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Size() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.atoms), nil
}

// Close is a no-op
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) add(a datalog.Atom) bool {
	h := hashAtom(a)
	if s.contains(a, h) {
		return false
	}
	s.index[h] = append(s.index[h], len(s.atoms))
	s.atoms = append(s.atoms, a)
	for _, t := range a.Terms {
		if _, ok := s.termSet[t]; !ok {
			s.termSet[t] = struct{}{}
			s.terms = append(s.terms, t)
		}
	}
	return true
}

func hashAtom(a datalog.Atom) uint64 {
	return xxhash.Sum64(datalog.EncodeAtom(a))
}
