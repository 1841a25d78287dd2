// Package chase materialises the consequences of existential rules over a
// fact collection until no rule application adds an atom.
package chase

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wbrown/janus-chase/datalog"
	"github.com/wbrown/janus-chase/datalog/annotations"
	"github.com/wbrown/janus-chase/datalog/homomorphism"
	"github.com/wbrown/janus-chase/datalog/logging"
	"github.com/wbrown/janus-chase/datalog/metrics"
)

// Status is the state of a chase run
type Status int

const (
	Idle Status = iota
	Iterating
	Fixpoint
	Cancelled
	Failed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Iterating:
		return "iterating"
	case Fixpoint:
		return "fixpoint"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Terminal reports whether no further work will happen
func (s Status) Terminal() bool {
	return s == Fixpoint || s == Cancelled || s == Failed
}

var (
	// ErrAlreadyExecuted is returned by Execute unless the engine is Idle
	ErrAlreadyExecuted = errors.New("chase: already executed")

	// ErrBudgetExhausted is the cause of a run cancelled by MaxRounds
	ErrBudgetExhausted = errors.New("chase: round budget exhausted")
)

// ChaseError is the cause of a Failed run
type ChaseError struct {
	Rule  *datalog.Rule // nil when the failure is not tied to one rule
	Round int
	Err   error
}

func (e *ChaseError) Error() string {
	if e.Rule != nil {
		return fmt.Sprintf("chase round %d, rule %s: %v", e.Round, e.Rule.Name(), e.Err)
	}
	return fmt.Sprintf("chase round %d: %v", e.Round, e.Err)
}

func (e *ChaseError) Unwrap() error { return e.Err }

// Result summarises a run
type Result struct {
	RunID        string
	Status       Status
	Rounds       int // breadth-first rounds or stepwise attempts
	Applications int // triggers applied
	Added        int // atoms inserted
	Duration     time.Duration

	// Cause of Cancelled (context error or ErrBudgetExhausted) or Failed
	// (*ChaseError)
	Err error
}

// Chase is a chase run over a rule set and a fact collection
type Chase interface {
	// Execute runs to a terminal status. It is only valid from Idle.
	// The returned error is non-nil for Failed runs and ErrAlreadyExecuted;
	// a Cancelled run reports its cause in Result.Err.
	Execute(ctx context.Context) (Result, error)

	// Status may be polled from other goroutines
	Status() Status
}

// New creates a chase with the strategy selected in opts
func New(rules datalog.RuleSet, facts datalog.FactCollection, opts Options) (Chase, error) {
	switch opts.Strategy {
	case BreadthFirstStrategy:
		return NewBreadthFirst(rules, facts, opts)
	case StepwiseStrategy:
		return NewStepwise(rules, facts, opts)
	default:
		return nil, fmt.Errorf("unknown chase strategy %v", opts.Strategy)
	}
}

// engine holds the state shared by both strategies
type engine struct {
	rules datalog.RuleSet
	facts datalog.FactCollection
	opts  Options

	solver *homomorphism.Solver
	gen    *VariableGenerator
	log    logging.Logger
	m      metrics.Metrics

	// (rule, frontier image) of every applied trigger
	used map[string]struct{}

	mu     sync.Mutex
	status Status
	result Result
	start  time.Time
}

func newEngine(rules datalog.RuleSet, facts datalog.FactCollection, opts Options) (*engine, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	runID := uuid.NewString()
	return &engine{
		rules:  rules,
		facts:  facts,
		opts:   opts,
		solver: opts.Solver,
		gen:    NewVariableGenerator(opts.VariablePrefix),
		log:    opts.Logger.WithFields(logging.Fields{"run": runID, "strategy": opts.Strategy.String()}),
		m:      opts.Metrics,
		used:   make(map[string]struct{}),
		result: Result{RunID: runID},
	}, nil
}

// Status returns the current status
func (e *engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// begin moves Idle to Iterating and reserves the identifiers already in use
func (e *engine) begin() error {
	e.mu.Lock()
	if e.status != Idle {
		e.mu.Unlock()
		return ErrAlreadyExecuted
	}
	e.status = Iterating
	e.start = time.Now()
	e.mu.Unlock()

	e.gen.Reserve(e.rules.Terms()...)
	terms, err := e.facts.Terms()
	if err != nil {
		return datalog.NewStoreError("terms", nil, err)
	}
	e.gen.Reserve(terms...)

	size, err := e.facts.Size()
	if err != nil {
		return datalog.NewStoreError("size", nil, err)
	}
	e.emit(annotations.ChaseBegin, e.start, map[string]interface{}{
		"run":      e.result.RunID,
		"strategy": e.opts.Strategy.String(),
		"rules":    len(e.rules),
		"facts":    size,
	})
	e.log.Debugf("chase started with %d rules over %d atoms", len(e.rules), size)
	return nil
}

// cause returns the error that ended a Cancelled or Failed run
func (e *engine) cause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result.Err
}

// finish records the terminal status and returns the result
func (e *engine) finish(status Status, cause error) (Result, error) {
	e.mu.Lock()
	e.status = status
	e.result.Status = status
	e.result.Err = cause
	e.result.Duration = time.Since(e.start)
	res := e.result
	e.mu.Unlock()

	data := map[string]interface{}{
		"status": status.String(),
		"rounds": res.Rounds,
		"added":  res.Added,
	}
	if cause != nil {
		data["error"] = cause.Error()
	}
	e.emit(annotations.ChaseComplete, e.start, data)

	log := e.log.WithFields(logging.Fields{"rounds": res.Rounds, "added": res.Added})
	switch status {
	case Failed:
		log.Errorf("chase failed: %v", cause)
		return res, cause
	case Cancelled:
		log.Warnf("chase cancelled: %v", cause)
	default:
		log.Infof("chase reached %s", status)
	}
	return res, nil
}

// fail wraps err with the rule and round unless it already is a ChaseError
func (e *engine) fail(rule *datalog.Rule, round int, err error) (Result, error) {
	var ce *ChaseError
	if !errors.As(err, &ce) {
		ce = &ChaseError{Rule: rule, Round: round, Err: err}
	}
	name := ""
	if ce.Rule != nil {
		name = ce.Rule.Name()
	}
	event := annotations.ErrorRule
	if datalog.IsStoreError(err) {
		event = annotations.ErrorStore
	}
	e.emit(event, time.Now(), map[string]interface{}{
		"rule":  name,
		"round": round,
		"error": err.Error(),
	})
	return e.finish(Failed, ce)
}

// cancelled reports whether the run must stop before the next unit of work
func (e *engine) cancelled(ctx context.Context, units int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.opts.MaxRounds > 0 && units >= e.opts.MaxRounds {
		return ErrBudgetExhausted
	}
	return nil
}

func (e *engine) emit(name string, start time.Time, data map[string]interface{}) {
	if e.opts.Handler == nil {
		return
	}
	end := time.Now()
	e.opts.Handler(annotations.Event{
		Name:    name,
		Start:   start,
		End:     end,
		Latency: end.Sub(start),
		Data:    data,
	})
}

func (e *engine) record(f func(r *Result)) {
	e.mu.Lock()
	f(&e.result)
	e.mu.Unlock()
}

// triggerKey identifies a trigger by rule and frontier image
func triggerKey(ruleIdx int, r *datalog.Rule, h datalog.Substitution) string {
	b := binary.AppendUvarint(nil, uint64(ruleIdx))
	for _, v := range r.Frontier() {
		b = datalog.AppendTerm(b, h.ApplyTerm(v))
	}
	return string(b)
}

// applicable decides whether the body homomorphism h of rule ri is applied.
// It only reads the facts and the used set.
func (e *engine) applicable(ctx context.Context, ri int, h datalog.Substitution) (bool, string, error) {
	r := e.rules[ri]
	key := triggerKey(ri, r, h)
	if _, done := e.used[key]; done {
		return false, key, nil
	}
	if e.opts.Applicability == Oblivious {
		return true, key, nil
	}

	satisfied, err := e.headSatisfied(ctx, r, h)
	if err != nil {
		return false, key, err
	}
	return !satisfied, key, nil
}

// headSatisfied checks whether the head, with the frontier mapped by h,
// already maps into the facts. Existential variables are searched; every
// other variable of the mapped head is frozen.
func (e *engine) headSatisfied(ctx context.Context, r *datalog.Rule, h datalog.Substitution) (bool, error) {
	frontier := h.Restrict(r.Frontier())

	ex := r.Existentials()
	images := make(map[datalog.Term]struct{}, frontier.Len())
	for _, v := range r.Frontier() {
		images[frontier.ApplyTerm(v)] = struct{}{}
	}
	clash := false
	for _, v := range ex {
		if _, ok := images[v]; ok {
			clash = true
			break
		}
	}
	if clash {
		// an image is named like an existential: rename the existentials
		b := datalog.NewSubstitutionBuilder(frontier.Len() + len(ex))
		for _, v := range r.Frontier() {
			b.Put(v, frontier.ApplyTerm(v))
		}
		renamed := make([]datalog.Term, len(ex))
		for i, v := range ex {
			renamed[i] = e.gen.Next()
			b.Put(v, renamed[i])
		}
		frontier = b.Build()
		ex = renamed
	}

	head := frontier.ApplyAll(r.Head)
	search := make(map[datalog.Term]struct{}, len(ex))
	for _, v := range ex {
		search[v] = struct{}{}
	}
	var frozen []datalog.Term
	for _, v := range datalog.VariablesOf(head) {
		if _, ok := search[v]; !ok {
			frozen = append(frozen, v)
		}
	}

	e.m.Counter(metrics.SearchCount).Incr()
	return e.solver.Exists(ctx, homomorphism.Pattern{Atoms: head, Frozen: frozen}, e.facts)
}

func malformedApplication(r *datalog.Rule, format string, args ...interface{}) error {
	return fmt.Errorf("%w [%s]: %s", datalog.ErrMalformedRule, r.Name(), fmt.Sprintf(format, args...))
}
