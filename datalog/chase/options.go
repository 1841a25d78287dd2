package chase

import (
	"fmt"
	"strings"

	"github.com/wbrown/janus-chase/datalog/annotations"
	"github.com/wbrown/janus-chase/datalog/homomorphism"
	"github.com/wbrown/janus-chase/datalog/logging"
	"github.com/wbrown/janus-chase/datalog/metrics"
)

// Strategy selects how rules are applied
type Strategy int

const (
	// BreadthFirstStrategy applies every applicable trigger of a round
	// against the facts at the start of the round, then commits the batch
	BreadthFirstStrategy Strategy = iota
	// StepwiseStrategy applies one trigger at a time
	StepwiseStrategy
)

func (s Strategy) String() string {
	switch s {
	case BreadthFirstStrategy:
		return "breadth-first"
	case StepwiseStrategy:
		return "step"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy parses "breadth-first" or "step"
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(s) {
	case "", "breadth-first", "breadthfirst", "bfs":
		return BreadthFirstStrategy, nil
	case "step", "stepwise", "immediate":
		return StepwiseStrategy, nil
	}
	return 0, fmt.Errorf("unknown chase strategy %q", s)
}

// Applicability decides whether a body homomorphism triggers an application
type Applicability int

const (
	// Restricted skips a trigger whose head is already satisfied: the head,
	// with the frontier mapped, maps into the facts for some choice of the
	// existential variables
	Restricted Applicability = iota
	// Oblivious applies every trigger whose frontier image was not applied
	// before in the run
	Oblivious
)

func (a Applicability) String() string {
	switch a {
	case Restricted:
		return "restricted"
	case Oblivious:
		return "oblivious"
	default:
		return fmt.Sprintf("Applicability(%d)", int(a))
	}
}

// ParseApplicability parses "restricted" or "oblivious"
func ParseApplicability(s string) (Applicability, error) {
	switch strings.ToLower(s) {
	case "", "restricted":
		return Restricted, nil
	case "oblivious", "frontier":
		return Oblivious, nil
	}
	return 0, fmt.Errorf("unknown applicability %q", s)
}

// Options configures a chase run.
//
// The engine has no iteration cap of its own: chase termination is
// undecidable for existential rules, so callers that cannot rule out an
// infinite chase must cancel the context or set MaxRounds.
type Options struct {
	Strategy      Strategy
	Applicability Applicability

	// Parallel trigger search in breadth-first rounds (<= 1 = sequential)
	Workers int

	// Breadth-first: rounds; stepwise: applications. 0 = unlimited.
	// Exhausting the budget ends the run as Cancelled.
	MaxRounds int

	// Prefix of generated variables (default "EE")
	VariablePrefix string

	Solver  *homomorphism.Solver
	Handler annotations.Handler
	Logger  logging.Logger
	Metrics metrics.Metrics
}

// DefaultOptions returns options for a sequential restricted breadth-first
// chase
func DefaultOptions() Options {
	return Options{
		Strategy:       BreadthFirstStrategy,
		Applicability:  Restricted,
		VariablePrefix: DefaultVariablePrefix,
	}
}

func (o Options) withDefaults() Options {
	if o.VariablePrefix == "" {
		o.VariablePrefix = DefaultVariablePrefix
	}
	if o.Solver == nil {
		o.Solver = homomorphism.New(homomorphism.WithCache(homomorphism.NewPatternCache(0)))
	}
	if o.Logger == nil {
		o.Logger = logging.NoOp()
	}
	if o.Metrics == nil {
		o.Metrics = metrics.NoOp()
	}
	return o
}
