package storage

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"

	"github.com/wbrown/janus-chase/datalog"
)

// TestDataConfig specifies what kind of test store to build.
//
// The generated facts describe a genealogy: NumPeople persons split into
// Generations, every person outside the first generation has one parent in
// the previous one, and each person knows KnowsPerPerson random others.
type TestDataConfig struct {
	Kind           Kind   // badger or sqlite; memory stores are not persisted
	OutputPath     string // Where to store the facts
	NumPeople      int
	Generations    int
	KnowsPerPerson int
	Seed           int64
	BatchSize      int // Atoms per AddAll
}

// DefaultGraphConfig returns a small genealogy for profiling
// Size: 1,000 people, ~3,000 atoms
func DefaultGraphConfig() TestDataConfig {
	return TestDataConfig{
		Kind:           KindBadger,
		OutputPath:     "testdata/genealogy.db",
		NumPeople:      1000,
		Generations:    5,
		KnowsPerPerson: 1,
		Seed:           1,
		BatchSize:      5000,
	}
}

// MediumGraphConfig returns a medium-sized genealogy
// Size: 20,000 people, ~100,000 atoms
func MediumGraphConfig() TestDataConfig {
	return TestDataConfig{
		Kind:           KindBadger,
		OutputPath:     "testdata/genealogy_medium.db",
		NumPeople:      20000,
		Generations:    8,
		KnowsPerPerson: 3,
		Seed:           1,
		BatchSize:      5000,
	}
}

// LargeGraphConfig returns a large genealogy for stress testing
func LargeGraphConfig() TestDataConfig {
	return TestDataConfig{
		Kind:           KindBadger,
		OutputPath:     "testdata/genealogy_large.db",
		NumPeople:      500000,
		Generations:    12,
		KnowsPerPerson: 5,
		Seed:           1,
		BatchSize:      20000,
	}
}

// GenerateGenealogy creates the atoms described by config. The output is
// deterministic for a given seed.
func GenerateGenealogy(config TestDataConfig) []datalog.Atom {
	if config.Generations < 1 {
		config.Generations = 1
	}
	rng := rand.New(rand.NewSource(config.Seed))
	people := make([]datalog.Term, config.NumPeople)
	for i := range people {
		people[i] = datalog.NewConstant(fmt.Sprintf("p%d", i))
	}

	perGen := (config.NumPeople + config.Generations - 1) / config.Generations
	atoms := make([]datalog.Atom, 0, config.NumPeople*(2+config.KnowsPerPerson))
	for i, p := range people {
		atoms = append(atoms, datalog.NewAtom("person", p))
		gen := i / perGen
		if gen > 0 {
			// a parent from the previous generation
			lo := (gen - 1) * perGen
			parent := people[lo+rng.Intn(perGen)]
			atoms = append(atoms, datalog.NewAtom("parent", parent, p))
		}
		for k := 0; k < config.KnowsPerPerson && config.NumPeople > 1; k++ {
			other := people[rng.Intn(config.NumPeople)]
			if other != p {
				atoms = append(atoms, datalog.NewAtom("knows", p, other))
			}
		}
	}
	return atoms
}

// BuildTestStore creates a pre-populated store for benchmarking
func BuildTestStore(config TestDataConfig) (Store, error) {
	if config.Kind == KindMemory {
		return nil, fmt.Errorf("test stores must be persistent, got %q", config.Kind)
	}
	if err := os.RemoveAll(config.OutputPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove existing store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(config.OutputPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	s, err := Open(config.Kind, config.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	atoms := GenerateGenealogy(config)
	batchSize := config.BatchSize
	if batchSize <= 0 {
		batchSize = 5000
	}
	fmt.Printf("Writing %d atoms to %s in batches of %d...\n", len(atoms), config.OutputPath, batchSize)

	added := 0
	for batchStart := 0; batchStart < len(atoms); batchStart += batchSize {
		batchEnd := batchStart + batchSize
		if batchEnd > len(atoms) {
			batchEnd = len(atoms)
		}
		n, err := Load(s, atoms[batchStart:batchEnd])
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to load batch %d-%d: %w", batchStart, batchEnd, err)
		}
		added += n
		fmt.Printf("  Written %d/%d atoms (%.1f%%)\n", batchEnd, len(atoms),
			float64(batchEnd)/float64(len(atoms))*100)
	}

	fmt.Printf("✅ Store created: %s\n", config.OutputPath)
	fmt.Printf("   Distinct atoms: %d\n", added)
	return s, nil
}

// OpenTestStore opens a pre-built test store
func OpenTestStore(kind Kind, path string) (Store, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("test store not found: %s (run BuildTestStore first)", path)
	}
	s, err := Open(kind, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open test store: %w", err)
	}
	return s, nil
}

// PredicateCounts counts atoms per predicate
func PredicateCounts(s datalog.FactCollection) (map[datalog.Predicate]int, error) {
	it, err := s.Iterator()
	if err != nil {
		return nil, err
	}
	defer it.Close()
	counts := make(map[datalog.Predicate]int)
	for it.Next() {
		counts[it.Atom().Predicate]++
	}
	return counts, it.Err()
}

// TestStoreStats prints statistics about a test store
func TestStoreStats(s Store) error {
	counts, err := PredicateCounts(s)
	if err != nil {
		return fmt.Errorf("failed to scan store: %w", err)
	}
	preds := make([]datalog.Predicate, 0, len(counts))
	for p := range counts {
		preds = append(preds, p)
	}
	sort.Slice(preds, func(i, j int) bool { return preds[i].String() < preds[j].String() })

	fmt.Printf("Store Statistics:\n")
	for _, p := range preds {
		fmt.Printf("  %-12s %d\n", p, counts[p])
	}
	return nil
}
