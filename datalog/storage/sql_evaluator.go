package storage

import (
	"context"
	"fmt"

	"github.com/huandu/go-sqlbuilder"
	"github.com/wbrown/janus-chase/datalog"
)

// sqlPattern is a conjunctive pattern translated to one SELECT
type sqlPattern struct {
	sb    *sqlbuilder.SelectBuilder
	vars  []datalog.Term // selected variables, in column order
	empty bool           // a predicate has no table: no results
}

// translatePattern builds
//
//	SELECT DISTINCT a0.t1, ... FROM p3 AS a0, p5 AS a1
//	WHERE a0.t0 = ? AND a1.t0 = a0.t1 ...
//
// Each variable is read from the column of its first occurrence; later
// occurrences are joined to it. answer nil selects every variable; an empty
// answer selects a constant. The caller adds LIMIT 1 for boolean patterns,
// so the SELECT can also be a member of a UNION.
func (s *SQLStore) translatePattern(atoms []datalog.Atom, answer []datalog.Term) sqlPattern {
	sb := sqlbuilder.SQLite.NewSelectBuilder()

	first := make(map[datalog.Term]string)
	var order []datalog.Term
	var tables []string
	var where []string

	for i, a := range atoms {
		table := s.table(a.Predicate)
		if table == "" {
			return sqlPattern{empty: true}
		}
		alias := fmt.Sprintf("a%d", i)
		tables = append(tables, sb.As(table, alias))

		for j, t := range a.Terms {
			col := alias + "." + column(j)
			if !t.IsVariable() {
				where = append(where, sb.Equal(col, datalog.EncodeTerm(t)))
				continue
			}
			if prev, ok := first[t]; ok {
				where = append(where, col+" = "+prev)
				continue
			}
			first[t] = col
			order = append(order, t)
		}
	}

	vars := order
	if answer != nil {
		vars = answer
	}
	if len(vars) == 0 {
		sb.Select("1")
	} else {
		cols := make([]string, len(vars))
		for i, v := range vars {
			col, ok := first[v]
			if !ok {
				// unreachable after validation: answer variables occur in the body
				return sqlPattern{empty: true}
			}
			cols[i] = col
		}
		sb.Select(cols...).Distinct()
	}
	sb.From(tables...)
	if len(where) > 0 {
		sb.Where(where...)
	}
	return sqlPattern{sb: sb, vars: vars}
}

// Evaluate answers a conjunctive pattern with a single SQL query. A
// predicate without facts yields no results; an empty pattern yields one
// empty substitution.
func (s *SQLStore) Evaluate(ctx context.Context, atoms []datalog.Atom, answer []datalog.Term) (datalog.SubstitutionIterator, error) {
	if len(atoms) == 0 {
		return datalog.NewSliceSubstitutions([]datalog.Substitution{datalog.EmptySubstitution()}), nil
	}
	if err := datalog.ValidatePattern(atoms); err != nil {
		return nil, err
	}

	p := s.translatePattern(atoms, answer)
	if p.empty {
		return datalog.NewSliceSubstitutions(nil), nil
	}
	if len(p.vars) == 0 {
		p.sb.Limit(1)
	}
	q, args := p.sb.Build()
	return s.scanSubstitutions(ctx, q, args, p.vars)
}

// EvaluateUnion answers a union of conjunctive patterns with one
// SELECT ... UNION SELECT ... query. answers[i] lists the answer variables
// of patterns[i]; every list has the same length and rows are reported
// under answers[0], position by position. A union of boolean patterns
// yields at most one empty substitution.
func (s *SQLStore) EvaluateUnion(ctx context.Context, patterns [][]datalog.Atom, answers [][]datalog.Term) (datalog.SubstitutionIterator, error) {
	if len(patterns) != len(answers) {
		return nil, fmt.Errorf("%w: %d patterns but %d answer lists", datalog.ErrMalformedQuery, len(patterns), len(answers))
	}
	if len(patterns) == 0 {
		return datalog.NewSliceSubstitutions(nil), nil
	}
	vars := answers[0]
	for i, atoms := range patterns {
		if len(answers[i]) != len(vars) {
			return nil, fmt.Errorf("%w: union members answer %d and %d variables",
				datalog.ErrMalformedQuery, len(vars), len(answers[i]))
		}
		if err := datalog.ValidatePattern(atoms); err != nil {
			return nil, err
		}
	}

	var members []sqlbuilder.Builder
	for i, atoms := range patterns {
		if len(atoms) == 0 {
			// an empty boolean pattern always holds
			return datalog.NewSliceSubstitutions([]datalog.Substitution{datalog.EmptySubstitution()}), nil
		}
		p := s.translatePattern(atoms, answers[i])
		if p.empty {
			continue
		}
		members = append(members, p.sb)
	}
	if len(members) == 0 {
		return datalog.NewSliceSubstitutions(nil), nil
	}

	ub := sqlbuilder.SQLite.NewUnionBuilder().Union(members...)
	if len(vars) == 0 {
		ub.Limit(1)
	}
	q, args := ub.Build()
	return s.scanSubstitutions(ctx, q, args, vars)
}

// scanSubstitutions runs q and reads one substitution of vars per row. A
// query without variables selects a constant and yields empty substitutions.
func (s *SQLStore) scanSubstitutions(ctx context.Context, q string, args []interface{}, vars []datalog.Term) (datalog.SubstitutionIterator, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("evaluate pattern: %w", err)
	}
	defer rows.Close()

	var subs []datalog.Substitution
	dest := make([]interface{}, len(vars))
	blobs := make([][]byte, len(vars))
	for i := range blobs {
		dest[i] = &blobs[i]
	}
	if len(vars) == 0 {
		var one int
		dest = []interface{}{&one}
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("evaluate pattern: %w", err)
		}
		b := datalog.NewSubstitutionBuilder(len(vars))
		for i, v := range vars {
			t, err := datalog.TermFromBytes(blobs[i])
			if err != nil {
				return nil, fmt.Errorf("evaluate pattern: %w", err)
			}
			b.Put(v, t)
		}
		subs = append(subs, b.Build())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("evaluate pattern: %w", err)
	}
	return datalog.NewSliceSubstitutions(subs), nil
}
