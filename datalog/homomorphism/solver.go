// Package homomorphism finds the substitutions under which every atom of a
// pattern is contained in a fact collection.
//
// The search binds variables in first-occurrence order, trying every term of
// the fact collection's term domain for each of them. Atoms are checked as
// soon as they become ground: an atom whose last variable is the k-th one is
// checked right after that variable is bound.
package homomorphism

import (
	"context"
	"fmt"
	"time"

	"github.com/wbrown/janus-chase/datalog"
	"github.com/wbrown/janus-chase/datalog/annotations"
)

// Pattern is the input of a search.
//
// Answer selects the variables reported in each substitution: nil reports
// every searched variable, an empty non-nil slice makes the search boolean
// (at most one empty substitution). Frozen variables are not searched; they
// only match themselves, like constants.
type Pattern struct {
	Atoms  []datalog.Atom
	Answer []datalog.Term
	Frozen []datalog.Term
}

// IsBoolean reports whether the pattern only asks for existence
func (p Pattern) IsBoolean() bool { return p.Answer != nil && len(p.Answer) == 0 }

// Option configures a Solver
type Option func(*Solver)

// WithCache reuses compiled patterns across searches
func WithCache(c *PatternCache) Option {
	return func(s *Solver) { s.cache = c }
}

// WithHandler reports one homomorphism/search event per finished search
func WithHandler(h annotations.Handler) Option {
	return func(s *Solver) { s.handler = h }
}

// WithNativeEvaluation lets fact collections implementing
// datalog.PatternEvaluator answer patterns themselves
func WithNativeEvaluation(enabled bool) Option {
	return func(s *Solver) { s.native = enabled }
}

// Solver runs homomorphism searches. It keeps no per-search state and is
// safe for concurrent use; the zero value is ready to use.
type Solver struct {
	cache   *PatternCache
	handler annotations.Handler
	native  bool
}

// New creates a solver
func New(opts ...Option) *Solver {
	s := &Solver{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Cache returns the pattern cache, or nil
func (s *Solver) Cache() *PatternCache { return s.cache }

// Search starts a lazy search of p against facts. Malformed patterns are
// rejected before the search begins. The returned Results must be closed.
func (s *Solver) Search(ctx context.Context, p Pattern, facts datalog.FactCollection) (*Results, error) {
	if err := validate(p); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if s.native && len(p.Frozen) == 0 {
		if ev, ok := facts.(datalog.PatternEvaluator); ok {
			it, err := ev.Evaluate(ctx, p.Atoms, p.Answer)
			if err != nil {
				return nil, datalog.NewStoreError("evaluate", nil, err)
			}
			return &Results{
				ctx:     ctx,
				native:  it,
				handler: s.handler,
				start:   time.Now(),
				pattern: p,
			}, nil
		}
	}

	domain, err := facts.Terms()
	if err != nil {
		return nil, datalog.NewStoreError("terms", nil, err)
	}

	ranked := s.cache.Compile(p.Atoms, p.Frozen)
	r := &Results{
		ctx:     ctx,
		facts:   facts,
		ranked:  ranked,
		domain:  domain,
		pattern: p,
		binding: make(map[datalog.Term]datalog.Term, len(ranked.Order)),
		cursors: make([]int, len(ranked.Order)),
		handler: s.handler,
		start:   time.Now(),
	}
	if len(p.Answer) > 0 {
		r.seen = make(map[string]struct{})
	}
	return r, nil
}

// Exists reports whether at least one homomorphism exists, stopping at the
// first one
func (s *Solver) Exists(ctx context.Context, p Pattern, facts datalog.FactCollection) (bool, error) {
	p.Answer = []datalog.Term{}
	r, err := s.Search(ctx, p, facts)
	if err != nil {
		return false, err
	}
	defer r.Close()
	found := r.Next()
	if err := r.Err(); err != nil {
		return false, err
	}
	return found, nil
}

// All runs a search to completion
func (s *Solver) All(ctx context.Context, p Pattern, facts datalog.FactCollection) ([]datalog.Substitution, error) {
	r, err := s.Search(ctx, p, facts)
	if err != nil {
		return nil, err
	}
	return r.All()
}

// Evaluate answers a conjunctive query
func (s *Solver) Evaluate(ctx context.Context, q *datalog.ConjunctiveQuery, facts datalog.FactCollection) (*Results, error) {
	answer := q.Answer
	if answer == nil {
		answer = []datalog.Term{}
	}
	return s.Search(ctx, Pattern{Atoms: q.Body, Answer: answer}, facts)
}

func validate(p Pattern) error {
	if err := datalog.ValidatePattern(p.Atoms); err != nil {
		return err
	}
	for _, t := range p.Answer {
		if !t.IsVariable() {
			return fmt.Errorf("%w: answer term %s is not a variable", datalog.ErrMalformedQuery, t)
		}
	}
	for _, t := range p.Frozen {
		if !t.IsVariable() {
			return fmt.Errorf("%w: frozen term %s is not a variable", datalog.ErrMalformedQuery, t)
		}
	}
	return nil
}

// Results is the lazy sequence of substitutions produced by a search.
//
// The search runs on an explicit stack: cursors[k] is the position in the
// term domain of the next candidate for Order[k]. A single binding map is
// shared by all depths; a variable's binding is removed when its depth is
// exhausted, so no branch observes bindings of a sibling branch.
type Results struct {
	ctx     context.Context
	facts   datalog.FactCollection
	ranked  *RankedPattern
	domain  []datalog.Term
	pattern Pattern

	binding map[datalog.Term]datalog.Term
	cursors []int
	depth   int
	started bool
	done    bool

	seen    map[string]struct{}
	current datalog.Substitution
	err     error

	native datalog.SubstitutionIterator

	handler  annotations.Handler
	start    time.Time
	emitted  int
	attempts int
	reported bool
}

// Next advances to the next substitution
func (r *Results) Next() bool {
	if r.done {
		return false
	}
	if r.native != nil {
		return r.nextNative()
	}
	if !r.started {
		r.started = true
		ok, err := r.check(r.ranked.Buckets[0])
		if err != nil {
			return r.fail(err)
		}
		if !ok {
			return r.finish()
		}
		r.depth = 0
	}

	n := len(r.ranked.Order)
	for r.depth >= 0 {
		if r.depth == n {
			sub, fresh := r.emit()
			r.depth--
			if r.pattern.IsBoolean() {
				r.depth = -1
			}
			if fresh {
				r.current = sub
				r.emitted++
				return true
			}
			continue
		}

		v := r.ranked.Order[r.depth]
		if r.cursors[r.depth] >= len(r.domain) {
			delete(r.binding, v)
			r.cursors[r.depth] = 0
			r.depth--
			continue
		}
		if err := r.ctx.Err(); err != nil {
			return r.fail(err)
		}

		r.binding[v] = r.domain[r.cursors[r.depth]]
		r.cursors[r.depth]++
		r.attempts++

		ok, err := r.check(r.ranked.Buckets[r.depth+1])
		if err != nil {
			return r.fail(err)
		}
		if ok {
			r.depth++
			if r.depth < n {
				r.cursors[r.depth] = 0
			}
		}
	}
	return r.finish()
}

// Substitution returns the current substitution
func (r *Results) Substitution() datalog.Substitution { return r.current }

// Err returns the error that stopped the search, if any
func (r *Results) Err() error { return r.err }

// Close abandons the search. A closed search cannot be resumed.
func (r *Results) Close() error {
	var err error
	if r.native != nil {
		err = r.native.Close()
	}
	r.done = true
	r.binding = nil
	r.report()
	return err
}

// All drains and closes the sequence
func (r *Results) All() ([]datalog.Substitution, error) {
	return datalog.CollectSubstitutions(r)
}

// check reports whether every atom, under the current binding, is a fact
func (r *Results) check(atoms []datalog.Atom) (bool, error) {
	for _, a := range atoms {
		img := r.apply(a)
		ok, err := r.facts.Contains(img)
		if err != nil {
			return false, datalog.NewStoreError("contains", &img, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (r *Results) apply(a datalog.Atom) datalog.Atom {
	terms := make([]datalog.Term, len(a.Terms))
	for i, t := range a.Terms {
		if img, ok := r.binding[t]; ok {
			terms[i] = img
		} else {
			terms[i] = t
		}
	}
	return datalog.Atom{Predicate: a.Predicate, Terms: terms}
}

// emit builds the substitution for a full binding; fresh is false when an
// answer-restricted substitution was already produced
func (r *Results) emit() (datalog.Substitution, bool) {
	vars := r.ranked.Order
	if r.pattern.Answer != nil {
		vars = r.pattern.Answer
	}
	b := datalog.NewSubstitutionBuilder(len(vars))
	for _, v := range vars {
		if t, ok := r.binding[v]; ok {
			b.Put(v, t)
		}
	}
	sub := b.Build()
	if r.seen != nil {
		key := sub.Key()
		if _, dup := r.seen[key]; dup {
			return sub, false
		}
		r.seen[key] = struct{}{}
	}
	return sub, true
}

func (r *Results) nextNative() bool {
	if err := r.ctx.Err(); err != nil {
		return r.fail(err)
	}
	if r.native.Next() {
		r.current = r.native.Substitution()
		r.emitted++
		if r.pattern.IsBoolean() {
			r.done = true
			r.report()
		}
		return true
	}
	if err := r.native.Err(); err != nil {
		return r.fail(datalog.NewStoreError("evaluate", nil, err))
	}
	return r.finish()
}

func (r *Results) fail(err error) bool {
	r.err = err
	return r.finish()
}

func (r *Results) finish() bool {
	r.done = true
	r.current = datalog.Substitution{}
	r.report()
	return false
}

func (r *Results) report() {
	if r.reported || r.handler == nil {
		return
	}
	r.reported = true
	end := time.Now()
	data := map[string]interface{}{
		"atoms":    len(r.pattern.Atoms),
		"results":  r.emitted,
		"attempts": r.attempts,
		"native":   r.native != nil,
	}
	if r.ranked != nil {
		vars := make([]string, len(r.ranked.Order))
		for i, v := range r.ranked.Order {
			vars[i] = v.Identifier()
		}
		data["vars"] = vars
		data["candidates"] = len(r.domain)
	}
	if r.err != nil {
		data["error"] = r.err.Error()
	}
	r.handler(annotations.Event{
		Name:    annotations.HomomorphismSearch,
		Start:   r.start,
		End:     end,
		Latency: end.Sub(r.start),
		Data:    data,
	})
}
