package storage

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/wbrown/janus-chase/datalog"
)

// Key prefixes. Atom and term keys carry their binary encoding and an empty
// value, so key order is the iteration order.
var (
	atomPrefix = []byte("a|")
	termPrefix = []byte("t|")
)

// BadgerStore implements Store using BadgerDB
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens a BadgerDB-backed store at path. An empty path opens
// an in-memory database.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil // Disable BadgerDB logs

	// Keys only: values are empty
	opts.MemTableSize = 64 << 20
	opts.BlockCacheSize = 128 << 20
	opts.IndexCacheSize = 64 << 20
	opts.DetectConflicts = false // single writer
	opts.NumCompactors = 4
	opts.ValueThreshold = 1 << 10

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func atomKey(a datalog.Atom) []byte {
	return datalog.AppendAtom(append([]byte(nil), atomPrefix...), a)
}

func termKey(t datalog.Term) []byte {
	return datalog.AppendTerm(append([]byte(nil), termPrefix...), t)
}

func (s *BadgerStore) Contains(a datalog.Atom) (bool, error) {
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(atomKey(a))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, datalog.NewStoreError("contains", &a, err)
	}
	return found, nil
}

// Iterator scans the atom keys in a read-only transaction; it sees the
// store as of the call
func (s *BadgerStore) Iterator() (datalog.AtomIterator, error) {
	return s.scan(atomPrefix), nil
}

// Terms returns the term domain in key order
func (s *BadgerStore) Terms() ([]datalog.Term, error) {
	it := s.scan(termPrefix)
	defer it.Close()

	var terms []datalog.Term
	for it.Next() {
		t, err := datalog.TermFromBytes(it.key()[len(termPrefix):])
		if err != nil {
			return nil, datalog.NewStoreError("terms", nil, err)
		}
		terms = append(terms, t)
	}
	return terms, nil
}

func (s *BadgerStore) Add(a datalog.Atom) (bool, error) {
	n, err := s.AddAll([]datalog.Atom{a})
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// AddAll writes the batch in a single transaction
func (s *BadgerStore) AddAll(atoms []datalog.Atom) (int, error) {
	inserted := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		inserted = 0
		for i := range atoms {
			ok, err := s.addAtom(txn, &atoms[i])
			if err != nil {
				return err
			}
			if ok {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, datalog.NewStoreError("add", nil, err)
	}
	return inserted, nil
}

// addAtom writes the atom key and the keys of its terms
func (s *BadgerStore) addAtom(txn *badger.Txn, a *datalog.Atom) (bool, error) {
	key := atomKey(*a)
	_, err := txn.Get(key)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return false, datalog.NewStoreError("contains", a, err)
	}
	if err := txn.Set(key, nil); err != nil {
		return false, datalog.NewStoreError("add", a, err)
	}
	for _, t := range a.Terms {
		if err := txn.Set(termKey(t), nil); err != nil {
			return false, datalog.NewStoreError("add", a, err)
		}
	}
	return true, nil
}

// Size counts atom keys without fetching values
func (s *BadgerStore) Size() (int, error) {
	txn := s.db.NewTransaction(false)
	defer txn.Discard()

	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = atomPrefix

	it := txn.NewIterator(opts)
	defer it.Close()

	count := 0
	for it.Rewind(); it.Valid(); it.Next() {
		count++
	}
	return count, nil
}

// Close closes the store
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) scan(prefix []byte) *BadgerIterator {
	txn := s.db.NewTransaction(false)

	opts := badger.DefaultIteratorOptions
	opts.PrefetchSize = 1000
	opts.PrefetchValues = false // keys carry everything
	opts.Prefix = prefix

	return &BadgerIterator{
		txn:    txn,
		it:     txn.NewIterator(opts),
		prefix: prefix,
	}
}

// BadgerIterator implements datalog.AtomIterator over a key prefix
type BadgerIterator struct {
	txn     *badger.Txn
	it      *badger.Iterator
	prefix  []byte
	valid   bool
	current datalog.Atom
	err     error
	closed  bool
}

// Next advances the iterator
func (i *BadgerIterator) Next() bool {
	if i.closed || i.err != nil {
		return false
	}
	if !i.valid {
		// First call - seek to start
		i.it.Seek(i.prefix)
		i.valid = true
	} else {
		i.it.Next()
	}

	if !i.it.ValidForPrefix(i.prefix) {
		return false
	}

	if bytes.Equal(i.prefix, atomPrefix) {
		a, err := datalog.DecodeAtom(i.key()[len(atomPrefix):])
		if err != nil {
			i.err = err
			return false
		}
		i.current = a
	}
	return true
}

func (i *BadgerIterator) key() []byte {
	return i.it.Item().Key()
}

// Atom returns the current atom
func (i *BadgerIterator) Atom() datalog.Atom { return i.current }

func (i *BadgerIterator) Err() error { return i.err }

// Close closes the iterator
func (i *BadgerIterator) Close() error {
	if i.closed {
		return nil
	}
	i.closed = true
	i.it.Close()
	i.txn.Discard()
	return nil
}
