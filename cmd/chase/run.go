package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/wbrown/janus-chase/datalog"
	"github.com/wbrown/janus-chase/datalog/chase"
	"github.com/wbrown/janus-chase/datalog/config"
	"github.com/wbrown/janus-chase/datalog/dlgp"
	"github.com/wbrown/janus-chase/datalog/homomorphism"
	"github.com/wbrown/janus-chase/datalog/writer"
)

type runParams struct {
	strategy      string
	applicability string
	workers       int
	maxRounds     int
	timeout       time.Duration
	print         bool
	format        string
	metrics       bool
}

func newRunCommand(root *rootParams) *cobra.Command {
	params := &runParams{}
	cmd := &cobra.Command{
		Use:   "run FILE...",
		Short: "Chase the knowledge base and answer its queries",
		Long: `Parse the DLGP files, load their facts into the store, saturate them
with the rules and answer the queries against the result.

Interrupting the run cancels the chase; atoms committed so far stay in
the store.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load(cmd)
			if err != nil {
				return err
			}
			params.apply(cmd, &cfg)
			s, err := root.open(cmd, cfg)
			if err != nil {
				return err
			}
			defer s.Close()
			return runChase(cmd.Context(), s, params, args)
		},
	}
	addChaseFlags(cmd, params)
	cmd.Flags().BoolVar(&params.print, "print", false, "print the saturated facts")
	cmd.Flags().StringVar(&params.format, "format", "dlgp", "format of --print: dlgp, ruleml or table")
	return cmd
}

func addChaseFlags(cmd *cobra.Command, params *runParams) {
	flags := cmd.Flags()
	flags.StringVar(&params.strategy, "strategy", "", "chase strategy: breadth-first or step")
	flags.StringVar(&params.applicability, "applicability", "", "trigger applicability: restricted or oblivious")
	flags.IntVarP(&params.workers, "workers", "w", 0, "parallel trigger searches per round")
	flags.IntVar(&params.maxRounds, "max-rounds", 0, "stop after this many rounds (applications for step); 0 is unlimited")
	flags.DurationVar(&params.timeout, "timeout", 0, "cancel the chase after this long")
	flags.BoolVar(&params.metrics, "metrics", false, "print metrics as JSON to stderr")
}

func (p *runParams) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("strategy") {
		cfg.Strategy = p.strategy
	}
	if flags.Changed("applicability") {
		cfg.Applicability = p.applicability
	}
	if flags.Changed("workers") {
		cfg.Workers = p.workers
	}
	if flags.Changed("max-rounds") {
		cfg.MaxRounds = p.maxRounds
	}
	if flags.Changed("timeout") {
		cfg.Timeout = p.timeout
	}
}

// chaseContext cancels on SIGINT and after the configured timeout
func chaseContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	if timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func (s *session) chaseOptions(solver *homomorphism.Solver) (chase.Options, error) {
	opts, err := s.cfg.ChaseOptions()
	if err != nil {
		return chase.Options{}, err
	}
	opts.Solver = solver
	opts.Handler = s.handler
	opts.Logger = s.log
	opts.Metrics = s.metrics
	return opts, nil
}

func runChase(parent context.Context, s *session, params *runParams, paths []string) error {
	doc, err := s.parse(paths)
	if err != nil {
		return err
	}
	solver := s.solver()
	opts, err := s.chaseOptions(solver)
	if err != nil {
		return err
	}
	c, err := chase.New(doc.Rules, s.store, opts)
	if err != nil {
		return err
	}

	ctx, cancel := chaseContext(parent, s.cfg.Timeout)
	defer cancel()

	res, err := c.Execute(ctx)
	if err != nil {
		return err
	}
	printResult(s, res)

	// queries are answered even after a cancelled run, over what was committed
	qctx := parent
	if qctx == nil {
		qctx = context.Background()
	}
	if params.print {
		if err := printFacts(s, params.format); err != nil {
			return err
		}
	}
	if err := answerQueries(qctx, s, solver, doc.Queries); err != nil {
		return err
	}
	if params.metrics {
		return s.printMetrics()
	}
	return nil
}

func printResult(s *session, res chase.Result) {
	fmt.Fprintf(s.stdout, "%s after %d round(s): %d application(s), %d atom(s) added in %s\n",
		res.Status, res.Rounds, res.Applications, res.Added, formatDuration(res.Duration))
	if res.Status == chase.Cancelled {
		switch {
		case errors.Is(res.Err, chase.ErrBudgetExhausted):
			fmt.Fprintln(s.stderr, "warning: round budget exhausted before the fixpoint")
		case res.Err != nil:
			fmt.Fprintf(s.stderr, "warning: chase cancelled: %v\n", res.Err)
		}
	}
}

func printFacts(s *session, format string) error {
	switch format {
	case "dlgp":
		it, err := s.store.Iterator()
		if err != nil {
			return err
		}
		w := dlgp.NewWriter(s.stdout)
		if err := w.WriteFactsFrom(it); err != nil {
			return err
		}
		return w.Flush()
	case "ruleml":
		it, err := s.store.Iterator()
		if err != nil {
			return err
		}
		w, err := writer.NewRuleMLWriter(s.stdout)
		if err != nil {
			it.Close()
			return err
		}
		if err := w.WriteFactsFrom(it); err != nil {
			return err
		}
		if err := w.Close(); err != nil {
			return err
		}
		_, err = fmt.Fprintln(s.stdout)
		return err
	case "table":
		atoms, err := datalog.CollectAtoms(s.store)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(s.stdout, writer.NewTableFormatter().FormatAtoms(atoms))
		return err
	default:
		return fmt.Errorf("unknown format %q (use dlgp, ruleml or table)", format)
	}
}

func answerQueries(ctx context.Context, s *session, solver *homomorphism.Solver, queries []*datalog.ConjunctiveQuery) error {
	tf := writer.NewTableFormatter()
	for _, q := range queries {
		res, err := solver.Evaluate(ctx, q, s.store)
		if err != nil {
			return fmt.Errorf("query %s: %w", q.Label, err)
		}
		subs, err := res.All()
		if err != nil {
			return fmt.Errorf("query %s: %w", q.Label, err)
		}
		fmt.Fprintf(s.stdout, "\n%s\n\n", answerSummary(q, len(subs)))
		if q.IsBoolean() {
			continue
		}
		fmt.Fprintln(s.stdout, tf.FormatSubstitutions(q.Answer, subs))
	}
	return nil
}

// answerUnion answers the queries as a single union, reported under the
// answer variables of the first query
func answerUnion(ctx context.Context, s *session, solver *homomorphism.Solver, queries []*datalog.ConjunctiveQuery) error {
	if len(queries) == 0 {
		return nil
	}
	res, err := solver.EvaluateUnion(ctx, queries, s.store)
	if err != nil {
		return fmt.Errorf("union: %w", err)
	}
	subs, err := res.All()
	if err != nil {
		return fmt.Errorf("union: %w", err)
	}
	head := queries[0]
	if head.IsBoolean() {
		fmt.Fprintf(s.stdout, "\nunion of %d queries %t\n", len(queries), len(subs) > 0)
		return nil
	}
	fmt.Fprintf(s.stdout, "\nunion of %d queries %d answer(s)\n\n", len(queries), len(subs))
	fmt.Fprintln(s.stdout, writer.NewTableFormatter().FormatSubstitutions(head.Answer, subs))
	return nil
}
