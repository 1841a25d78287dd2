// Package storage provides fact collections: an in-memory store, a BadgerDB
// store and a SQLite store that can also evaluate conjunctive patterns
// natively.
package storage

import (
	"fmt"
	"strings"

	"github.com/wbrown/janus-chase/datalog"
)

// Kind selects a store implementation
type Kind string

const (
	KindMemory Kind = "memory"
	KindBadger Kind = "badger"
	KindSQLite Kind = "sqlite"
)

// Store is a closable fact collection
type Store interface {
	datalog.FactCollection

	// Lifecycle
	Close() error
}

// Open opens a store of the given kind. path is ignored by the memory store;
// for the other stores an empty path opens an in-memory database.
func Open(kind Kind, path string) (Store, error) {
	switch Kind(strings.ToLower(string(kind))) {
	case KindMemory, "":
		return NewMemoryStore(), nil
	case KindBadger:
		return NewBadgerStore(path)
	case KindSQLite:
		return NewSQLStore(path)
	default:
		return nil, fmt.Errorf("unknown store kind %q", kind)
	}
}

// Load inserts atoms into the store in one batch
func Load(s datalog.FactCollection, atoms []datalog.Atom) (int, error) {
	for _, a := range atoms {
		if err := a.Validate(); err != nil {
			return 0, err
		}
	}
	n, err := s.AddAll(atoms)
	if err != nil {
		return n, datalog.NewStoreError("add", nil, err)
	}
	return n, nil
}

var (
	_ Store                    = (*MemoryStore)(nil)
	_ Store                    = (*BadgerStore)(nil)
	_ Store                    = (*SQLStore)(nil)
	_ datalog.PatternEvaluator = (*SQLStore)(nil)
)
