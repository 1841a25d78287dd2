package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/huandu/go-sqlbuilder"
	"github.com/wbrown/janus-chase/datalog"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// SQLStore keeps facts in SQLite: one table per predicate with a BLOB column
// per position plus the encoded atom as primary key, a registry of
// predicates and a table of terms in first-seen order.
//
// The store runs on a single connection, so every read is drained before it
// returns.
type SQLStore struct {
	db *sql.DB

	mu     sync.RWMutex
	tables map[datalog.Predicate]string
	order  []datalog.Predicate // registration order
}

// NewSQLStore opens (or creates) a SQLite database at path; an empty path
// opens a private in-memory database
func NewSQLStore(path string) (*SQLStore, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// :memory: databases are per connection
	db.SetMaxOpenConns(1)

	s := &SQLStore{db: db, tables: make(map[datalog.Predicate]string)}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) init() error {
	predicates := sqlbuilder.SQLite.NewCreateTableBuilder().
		CreateTable("predicates").IfNotExists().
		Define("id", "INTEGER", "PRIMARY KEY").
		Define("name", "TEXT", "NOT NULL").
		Define("arity", "INTEGER", "NOT NULL").
		Define("UNIQUE(name, arity)")
	terms := sqlbuilder.SQLite.NewCreateTableBuilder().
		CreateTable("terms").IfNotExists().
		Define("seq", "INTEGER", "PRIMARY KEY", "AUTOINCREMENT").
		Define("term", "BLOB", "NOT NULL", "UNIQUE")

	for _, ctb := range []*sqlbuilder.CreateTableBuilder{predicates, terms} {
		q, args := ctb.Build()
		if _, err := s.db.Exec(q, args...); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("id", "name", "arity").From("predicates").OrderBy("id")
	q, args := sb.Build()
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return fmt.Errorf("failed to load predicates: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id   int64
			pred datalog.Predicate
		)
		if err := rows.Scan(&id, &pred.Name, &pred.Arity); err != nil {
			return fmt.Errorf("failed to load predicates: %w", err)
		}
		s.tables[pred] = tableName(id)
		s.order = append(s.order, pred)
	}
	return rows.Err()
}

func tableName(id int64) string { return "p" + strconv.FormatInt(id, 10) }

func column(i int) string { return "t" + strconv.Itoa(i) }

// table returns the table of a predicate, or "" if it was never stored
func (s *SQLStore) table(p datalog.Predicate) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tables[p]
}

func (s *SQLStore) Contains(a datalog.Atom) (bool, error) {
	table := s.table(a.Predicate)
	if table == "" {
		return false, nil
	}
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("1").From(table).Where(sb.Equal("k", datalog.EncodeAtom(a))).Limit(1)
	q, args := sb.Build()

	var one int
	err := s.db.QueryRow(q, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, datalog.NewStoreError("contains", &a, err)
	}
	return true, nil
}

// Iterator reads every atom, predicate by predicate in registration order
func (s *SQLStore) Iterator() (datalog.AtomIterator, error) {
	s.mu.RLock()
	preds := append([]datalog.Predicate(nil), s.order...)
	s.mu.RUnlock()

	var atoms []datalog.Atom
	for _, p := range preds {
		sb := sqlbuilder.SQLite.NewSelectBuilder()
		sb.Select("k").From(s.table(p)).OrderBy("rowid")
		q, args := sb.Build()
		err := s.queryBlobs(q, args, func(k []byte) error {
			a, err := datalog.DecodeAtom(k)
			if err != nil {
				return err
			}
			atoms = append(atoms, a)
			return nil
		})
		if err != nil {
			return nil, datalog.NewStoreError("iterate", nil, err)
		}
	}
	return datalog.NewSliceIterator(atoms), nil
}

// Terms returns the term domain in first-seen order
func (s *SQLStore) Terms() ([]datalog.Term, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("term").From("terms").OrderBy("seq")
	q, args := sb.Build()

	var terms []datalog.Term
	err := s.queryBlobs(q, args, func(b []byte) error {
		t, err := datalog.TermFromBytes(b)
		if err != nil {
			return err
		}
		terms = append(terms, t)
		return nil
	})
	if err != nil {
		return nil, datalog.NewStoreError("terms", nil, err)
	}
	return terms, nil
}

func (s *SQLStore) queryBlobs(q string, args []interface{}, fn func([]byte) error) error {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var b []byte
		if err := rows.Scan(&b); err != nil {
			return err
		}
		if err := fn(b); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *SQLStore) Add(a datalog.Atom) (bool, error) {
	n, err := s.AddAll([]datalog.Atom{a})
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// AddAll inserts the batch in one transaction
func (s *SQLStore) AddAll(atoms []datalog.Atom) (int, error) {
	if len(atoms) == 0 {
		return 0, nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return 0, datalog.NewStoreError("add", nil, err)
	}

	created := make(map[datalog.Predicate]string)
	var createdOrder []datalog.Predicate
	inserted := 0
	for i := range atoms {
		a := &atoms[i]
		table := s.table(a.Predicate)
		if table == "" {
			table = created[a.Predicate]
		}
		if table == "" {
			table, err = createPredicateTable(tx, a.Predicate)
			if err != nil {
				tx.Rollback()
				return 0, datalog.NewStoreError("add", a, err)
			}
			created[a.Predicate] = table
			createdOrder = append(createdOrder, a.Predicate)
		}

		ok, err := insertAtom(tx, table, a)
		if err != nil {
			tx.Rollback()
			return 0, datalog.NewStoreError("add", a, err)
		}
		if ok {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, datalog.NewStoreError("add", nil, err)
	}

	if len(created) > 0 {
		s.mu.Lock()
		for _, p := range createdOrder {
			s.tables[p] = created[p]
			s.order = append(s.order, p)
		}
		s.mu.Unlock()
	}
	return inserted, nil
}

func createPredicateTable(tx *sql.Tx, p datalog.Predicate) (string, error) {
	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.InsertInto("predicates").Cols("name", "arity").Values(p.Name, p.Arity)
	q, args := ib.Build()
	res, err := tx.Exec(q, args...)
	if err != nil {
		return "", fmt.Errorf("register predicate %s: %w", p, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", err
	}

	table := tableName(id)
	ctb := sqlbuilder.SQLite.NewCreateTableBuilder().
		CreateTable(table).IfNotExists().
		Define("k", "BLOB", "PRIMARY KEY")
	for i := 0; i < p.Arity; i++ {
		ctb.Define(column(i), "BLOB", "NOT NULL")
	}
	q, args = ctb.Build()
	if _, err := tx.Exec(q, args...); err != nil {
		return "", fmt.Errorf("create table for %s: %w", p, err)
	}
	return table, nil
}

// insertAtom inserts the atom and, when it is new, its terms
func insertAtom(tx *sql.Tx, table string, a *datalog.Atom) (bool, error) {
	cols := make([]string, 0, len(a.Terms)+1)
	vals := make([]interface{}, 0, len(a.Terms)+1)
	cols = append(cols, "k")
	vals = append(vals, datalog.EncodeAtom(*a))
	for i, t := range a.Terms {
		cols = append(cols, column(i))
		vals = append(vals, datalog.EncodeTerm(t))
	}

	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.InsertIgnoreInto(table).Cols(cols...).Values(vals...)
	q, args := ib.Build()
	res, err := tx.Exec(q, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	for _, t := range a.Terms {
		tb := sqlbuilder.SQLite.NewInsertBuilder()
		tb.InsertIgnoreInto("terms").Cols("term").Values(datalog.EncodeTerm(t))
		q, args := tb.Build()
		if _, err := tx.Exec(q, args...); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Size sums the row counts of the predicate tables
func (s *SQLStore) Size() (int, error) {
	s.mu.RLock()
	preds := append([]datalog.Predicate(nil), s.order...)
	s.mu.RUnlock()

	total := 0
	for _, p := range preds {
		sb := sqlbuilder.SQLite.NewSelectBuilder()
		sb.Select("COUNT(*)").From(s.table(p))
		q, args := sb.Build()
		var n int
		if err := s.db.QueryRow(q, args...).Scan(&n); err != nil {
			return 0, datalog.NewStoreError("size", nil, err)
		}
		total += n
	}
	return total, nil
}

// Close closes the database
func (s *SQLStore) Close() error {
	return s.db.Close()
}
