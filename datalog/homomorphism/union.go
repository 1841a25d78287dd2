package homomorphism

import (
	"context"
	"fmt"

	"github.com/wbrown/janus-chase/datalog"
)

// EvaluateUnion answers a union of conjunctive queries. The queries must
// have the same number of answer variables; answers are positional and
// reported under the variables of the first query. An answer found by more
// than one query is reported once. A union of boolean queries yields at most
// one empty substitution.
//
// The member searches run lazily, one after the other. With native
// evaluation enabled, a fact collection implementing
// datalog.UnionEvaluator answers the whole union at once.
func (s *Solver) EvaluateUnion(ctx context.Context, queries []*datalog.ConjunctiveQuery, facts datalog.FactCollection) (*Union, error) {
	if len(queries) == 0 {
		return nil, fmt.Errorf("%w: empty union", datalog.ErrMalformedQuery)
	}
	answer := queries[0].Answer
	for _, q := range queries {
		if len(q.Answer) != len(answer) {
			return nil, fmt.Errorf("%w: %s answers %d variables, %s answers %d",
				datalog.ErrMalformedQuery, queries[0].Label, len(answer), q.Label, len(q.Answer))
		}
		if err := validate(Pattern{Atoms: q.Body, Answer: q.Answer}); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	u := &Union{
		ctx:     ctx,
		solver:  s,
		queries: queries,
		facts:   facts,
		answer:  answer,
		seen:    make(map[string]struct{}),
	}
	if s.native {
		if ev, ok := facts.(datalog.UnionEvaluator); ok {
			patterns := make([][]datalog.Atom, len(queries))
			answers := make([][]datalog.Term, len(queries))
			for i, q := range queries {
				patterns[i] = q.Body
				answers[i] = q.Answer
			}
			it, err := ev.EvaluateUnion(ctx, patterns, answers)
			if err != nil {
				return nil, datalog.NewStoreError("evaluate", nil, err)
			}
			u.native = it
		}
	}
	return u, nil
}

// Union is the lazy sequence of answers of a union of conjunctive queries
type Union struct {
	ctx     context.Context
	solver  *Solver
	queries []*datalog.ConjunctiveQuery
	facts   datalog.FactCollection
	answer  []datalog.Term

	member int
	cur    *Results
	native datalog.SubstitutionIterator

	seen    map[string]struct{}
	current datalog.Substitution
	err     error
	done    bool
}

// Next advances to the next answer
func (u *Union) Next() bool {
	for !u.done {
		if err := u.ctx.Err(); err != nil {
			return u.fail(err)
		}
		sub, ok := u.advance()
		if !ok {
			continue
		}
		key := sub.Key()
		if _, dup := u.seen[key]; dup {
			continue
		}
		u.seen[key] = struct{}{}
		u.current = sub
		if len(u.answer) == 0 {
			u.stop()
		}
		return true
	}
	return false
}

// advance produces the next candidate answer. It returns false when no
// candidate was produced, either because a member was exhausted or because
// the union ended.
func (u *Union) advance() (datalog.Substitution, bool) {
	if u.native != nil {
		if u.native.Next() {
			return u.native.Substitution(), true
		}
		if err := u.native.Err(); err != nil {
			u.fail(datalog.NewStoreError("evaluate", nil, err))
			return datalog.Substitution{}, false
		}
		u.stop()
		return datalog.Substitution{}, false
	}

	if u.cur == nil {
		if u.member == len(u.queries) {
			u.stop()
			return datalog.Substitution{}, false
		}
		res, err := u.solver.Evaluate(u.ctx, u.queries[u.member], u.facts)
		if err != nil {
			u.fail(err)
			return datalog.Substitution{}, false
		}
		u.cur = res
	}
	if u.cur.Next() {
		return u.rename(u.queries[u.member], u.cur.Substitution()), true
	}
	err := u.cur.Err()
	u.cur.Close()
	u.cur = nil
	u.member++
	if err != nil {
		u.fail(err)
	}
	return datalog.Substitution{}, false
}

// rename reports an answer of q under the union's answer variables
func (u *Union) rename(q *datalog.ConjunctiveQuery, sub datalog.Substitution) datalog.Substitution {
	b := datalog.NewSubstitutionBuilder(len(u.answer))
	for i, v := range q.Answer {
		if t, ok := sub.Lookup(v); ok {
			b.Put(u.answer[i], t)
		}
	}
	return b.Build()
}

// Substitution returns the current answer
func (u *Union) Substitution() datalog.Substitution { return u.current }

// Err returns the error that stopped the union, if any
func (u *Union) Err() error { return u.err }

// Close abandons the union
func (u *Union) Close() error {
	if u.done {
		return nil
	}
	err := u.closeMember()
	u.done = true
	return err
}

// All drains and closes the sequence
func (u *Union) All() ([]datalog.Substitution, error) {
	return datalog.CollectSubstitutions(u)
}

func (u *Union) closeMember() error {
	var err error
	if u.cur != nil {
		err = u.cur.Close()
		u.cur = nil
	}
	if u.native != nil {
		if cerr := u.native.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// stop ends the union without an error; the current answer stays readable
func (u *Union) stop() {
	u.closeMember()
	u.done = true
}

func (u *Union) fail(err error) bool {
	u.err = err
	u.stop()
	u.current = datalog.Substitution{}
	return false
}
