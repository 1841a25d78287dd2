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

// Stepwise applies one trigger at a time and commits its atoms immediately.
// Rules are visited round-robin from a cursor, so every rule gets a turn
// before any rule is retried.
type Stepwise struct {
	*engine
	cursor int
	steps  int
}

// NewStepwise creates an Idle stepwise chase
func NewStepwise(rules datalog.RuleSet, facts datalog.FactCollection, opts Options) (*Stepwise, error) {
	opts.Strategy = StepwiseStrategy
	e, err := newEngine(rules, facts, opts)
	if err != nil {
		return nil, err
	}
	return &Stepwise{engine: e}, nil
}

// Execute calls Next until no trigger is applicable
func (c *Stepwise) Execute(ctx context.Context) (Result, error) {
	if err := c.begin(); err != nil {
		if errors.Is(err, ErrAlreadyExecuted) {
			return Result{}, err
		}
		return c.fail(nil, 0, err)
	}
	for {
		if err := c.cancelled(ctx, c.steps); err != nil {
			return c.finish(Cancelled, err)
		}
		applied, err := c.step(ctx)
		if err != nil {
			return c.stepFailed(ctx, err)
		}
		if !applied {
			return c.finish(Fixpoint, nil)
		}
	}
}

// Next performs one rule application and reports whether one happened.
// The first call starts the run; once no trigger is applicable the run is
// at Fixpoint and Next keeps returning false with a nil error.
//
// A cancelled run returns false with the cause: the context error or
// ErrBudgetExhausted. The run is then Cancelled and later calls return the
// same cause, as do calls after a failure.
func (c *Stepwise) Next(ctx context.Context) (bool, error) {
	switch c.Status() {
	case Idle:
		if err := c.begin(); err != nil {
			if errors.Is(err, ErrAlreadyExecuted) {
				return false, err
			}
			_, err = c.fail(nil, 0, err)
			return false, err
		}
	case Iterating:
	case Fixpoint:
		return false, nil
	default:
		return false, c.cause()
	}

	if err := c.cancelled(ctx, c.steps); err != nil {
		c.finish(Cancelled, err)
		return false, err
	}
	applied, err := c.step(ctx)
	if err != nil {
		if _, err := c.stepFailed(ctx, err); err != nil {
			return false, err
		}
		return false, c.cause()
	}
	if !applied {
		c.finish(Fixpoint, nil)
	}
	return applied, nil
}

func (c *Stepwise) stepFailed(ctx context.Context, err error) (Result, error) {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return c.finish(Cancelled, ctxErr)
	}
	var ce *ChaseError
	if errors.As(err, &ce) {
		return c.fail(ce.Rule, c.steps, err)
	}
	return c.fail(nil, c.steps, err)
}

// step tries the rules from the cursor and applies the first applicable
// trigger found
func (c *Stepwise) step(ctx context.Context) (bool, error) {
	c.steps++
	c.record(func(r *Result) { r.Rounds = c.steps })

	n := len(c.rules)
	for i := 0; i < n; i++ {
		ri := (c.cursor + i) % n
		if err := ctx.Err(); err != nil {
			return false, err
		}
		applied, err := c.tryRule(ctx, ri)
		if err != nil {
			return false, &ChaseError{Rule: c.rules[ri], Round: c.steps, Err: err}
		}
		if applied {
			c.cursor = (ri + 1) % n
			return true, nil
		}
	}
	return false, nil
}

// tryRule applies the first applicable body homomorphism of rule ri
func (c *Stepwise) tryRule(ctx context.Context, ri int) (bool, error) {
	start := time.Now()
	r := c.rules[ri]

	c.m.Counter(metrics.SearchCount).Incr()
	res, err := c.solver.Search(ctx, homomorphism.Pattern{Atoms: r.Body}, c.facts)
	if err != nil {
		return false, err
	}

	var (
		trigger datalog.Substitution
		key     string
		found   bool
	)
	for res.Next() {
		h := res.Substitution()
		ok, k, err := c.applicable(ctx, ri, h)
		if err != nil {
			res.Close()
			return false, err
		}
		if ok {
			trigger, key, found = h, k, true
			break
		}
	}
	// the search must be closed before the facts change
	res.Close()
	if err := res.Err(); err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	fresh, err := FreshSubstitution(r, trigger, c.gen)
	if err != nil {
		return false, err
	}
	added, err := c.facts.AddAll(fresh.ApplyAll(r.Head))
	if err != nil {
		return false, datalog.NewStoreError("add", nil, err)
	}
	c.used[key] = struct{}{}

	c.record(func(res *Result) {
		res.Applications++
		res.Added += added
	})
	c.m.Counter(metrics.ChaseTriggers).Incr()
	c.m.Counter(metrics.ChaseAtomsAdded).Add(uint64(added))

	c.emit(annotations.RuleApplied, start, map[string]interface{}{
		"rule":     r.Name(),
		"round":    c.steps,
		"triggers": 1,
		"added":    added,
	})
	c.log.WithFields(logging.Fields{"rule": r.Name(), "step": c.steps}).
		Debugf("applied %s, %d atoms added", trigger, added)
	return true, nil
}
