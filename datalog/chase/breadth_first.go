package chase

import (
	"context"
	"errors"
	"time"

	"github.com/wbrown/janus-chase/datalog"
	"github.com/wbrown/janus-chase/datalog/annotations"
	"github.com/wbrown/janus-chase/datalog/homomorphism"
	"github.com/wbrown/janus-chase/datalog/logging"
	"github.com/wbrown/janus-chase/datalog/metrics"
)

// BreadthFirst applies rules round by round. In each round the triggers of
// every rule are computed against the facts as they were at the start of
// the round; the resulting atoms are committed with one AddAll. A round that
// inserts nothing ends the run at Fixpoint.
type BreadthFirst struct {
	*engine
	pool *WorkerPool
}

// NewBreadthFirst creates an Idle breadth-first chase
func NewBreadthFirst(rules datalog.RuleSet, facts datalog.FactCollection, opts Options) (*BreadthFirst, error) {
	opts.Strategy = BreadthFirstStrategy
	e, err := newEngine(rules, facts, opts)
	if err != nil {
		return nil, err
	}
	c := &BreadthFirst{engine: e}
	if e.opts.Workers > 1 {
		c.pool = NewWorkerPool(e.opts.Workers)
	}
	return c, nil
}

// ruleTriggers are the applicable body homomorphisms of one rule
type ruleTriggers struct {
	rule     int
	triggers []datalog.Substitution
	keys     []string
}

// Execute runs rounds until Fixpoint, cancellation or failure. Atoms of
// completed rounds stay in the fact collection whatever the outcome.
func (c *BreadthFirst) Execute(ctx context.Context) (Result, error) {
	if err := c.begin(); err != nil {
		if errors.Is(err, ErrAlreadyExecuted) {
			return Result{}, err
		}
		return c.fail(nil, 0, err)
	}

	for round := 1; ; round++ {
		if err := c.cancelled(ctx, round-1); err != nil {
			return c.finish(Cancelled, err)
		}

		added, err := c.round(ctx, round)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return c.finish(Cancelled, ctxErr)
			}
			var ce *ChaseError
			if errors.As(err, &ce) {
				return c.fail(ce.Rule, round, err)
			}
			return c.fail(nil, round, err)
		}
		if added == 0 {
			return c.finish(Fixpoint, nil)
		}
	}
}

// round computes and commits one round, returning the number of atoms added
func (c *BreadthFirst) round(ctx context.Context, round int) (int, error) {
	start := time.Now()
	timer := c.m.Timer(metrics.ChaseRound)
	timer.Start()
	defer timer.Stop()

	size, err := c.facts.Size()
	if err != nil {
		return 0, datalog.NewStoreError("size", nil, err)
	}
	c.emit(annotations.RoundBegin, start, map[string]interface{}{
		"round": round,
		"facts": size,
	})

	found, err := c.collect(ctx, round)
	if err != nil {
		return 0, err
	}

	// Sequentially in rule order: fresh variables and candidate atoms
	var batch []datalog.Atom
	inBatch := make(map[string]struct{})
	applied := 0
	for _, rt := range found {
		r := c.rules[rt.rule]
		ruleStart := time.Now()
		ruleApplied := 0
		for i, h := range rt.triggers {
			if _, done := c.used[rt.keys[i]]; done {
				continue
			}
			c.used[rt.keys[i]] = struct{}{}

			fresh, err := FreshSubstitution(r, h, c.gen)
			if err != nil {
				return 0, &ChaseError{Rule: r, Round: round, Err: err}
			}
			ruleApplied++
			for _, a := range fresh.ApplyAll(r.Head) {
				key := a.Key()
				if _, dup := inBatch[key]; dup {
					continue
				}
				ok, err := c.facts.Contains(a)
				if err != nil {
					return 0, &ChaseError{Rule: r, Round: round, Err: datalog.NewStoreError("contains", &a, err)}
				}
				if ok {
					continue
				}
				inBatch[key] = struct{}{}
				batch = append(batch, a)
			}
		}
		applied += ruleApplied
		if ruleApplied > 0 {
			c.emit(annotations.RuleApplied, ruleStart, map[string]interface{}{
				"rule":     r.Name(),
				"round":    round,
				"triggers": ruleApplied,
			})
		}
	}

	added := 0
	if len(batch) > 0 {
		added, err = c.facts.AddAll(batch)
		if err != nil {
			return 0, datalog.NewStoreError("add", nil, err)
		}
	}

	c.record(func(r *Result) {
		r.Rounds = round
		r.Applications += applied
		r.Added += added
	})
	c.m.Counter(metrics.ChaseTriggers).Add(uint64(applied))
	c.m.Counter(metrics.ChaseAtomsAdded).Add(uint64(added))
	c.m.Histogram(metrics.ChaseRoundAtoms).Update(int64(added))

	c.emit(annotations.RoundComplete, start, map[string]interface{}{
		"round":    round,
		"triggers": applied,
		"added":    added,
		"facts":    size + added,
	})
	c.log.WithFields(logging.Fields{"round": round}).
		Debugf("round complete: %d triggers, %d atoms added", applied, added)
	return added, nil
}

// collect computes the applicable triggers of every rule, in rule order
func (c *BreadthFirst) collect(ctx context.Context, round int) ([]ruleTriggers, error) {
	indexes := make([]int, len(c.rules))
	for i := range indexes {
		indexes[i] = i
	}
	search := func(ctx context.Context, ri int) (ruleTriggers, error) {
		rt, err := c.triggers(ctx, ri)
		if err != nil {
			return rt, &ChaseError{Rule: c.rules[ri], Round: round, Err: err}
		}
		return rt, nil
	}

	if c.pool == nil {
		out := make([]ruleTriggers, 0, len(indexes))
		for _, ri := range indexes {
			rt, err := search(ctx, ri)
			if err != nil {
				return nil, err
			}
			out = append(out, rt)
		}
		return out, nil
	}
	return ExecuteParallel(ctx, c.pool, indexes, search)
}

// triggers searches the body of rule ri and keeps the applicable
// homomorphisms
func (c *BreadthFirst) triggers(ctx context.Context, ri int) (ruleTriggers, error) {
	rt := ruleTriggers{rule: ri}
	r := c.rules[ri]

	c.m.Counter(metrics.SearchCount).Incr()
	res, err := c.solver.Search(ctx, homomorphism.Pattern{Atoms: r.Body}, c.facts)
	if err != nil {
		return rt, err
	}
	defer res.Close()

	seen := make(map[string]struct{})
	for res.Next() {
		h := res.Substitution()
		ok, key, err := c.applicable(ctx, ri, h)
		if err != nil {
			return rt, err
		}
		if !ok {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		rt.triggers = append(rt.triggers, h)
		rt.keys = append(rt.keys, key)
	}
	return rt, res.Err()
}
