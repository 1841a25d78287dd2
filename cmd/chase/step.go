package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/wbrown/janus-chase/datalog/annotations"
	"github.com/wbrown/janus-chase/datalog/chase"
)

func newStepCommand(root *rootParams) *cobra.Command {
	params := &runParams{}
	cmd := &cobra.Command{
		Use:   "step FILE...",
		Short: "Chase one rule application at a time",
		Long: `Run the stepwise chase and print every rule application as it is
committed. --max-rounds bounds the number of applications.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load(cmd)
			if err != nil {
				return err
			}
			params.apply(cmd, &cfg)
			cfg.Strategy = chase.StepwiseStrategy.String()
			s, err := root.open(cmd, cfg)
			if err != nil {
				return err
			}
			defer s.Close()
			return stepChase(cmd, s, params, args)
		},
	}
	addChaseFlags(cmd, params)
	return cmd
}

func stepChase(cmd *cobra.Command, s *session, params *runParams, paths []string) error {
	doc, err := s.parse(paths)
	if err != nil {
		return err
	}
	solver := s.solver()
	opts, err := s.chaseOptions(solver)
	if err != nil {
		return err
	}

	steps, added := 0, 0
	opts.Handler = annotations.Tee(opts.Handler, func(e annotations.Event) {
		if e.Name != annotations.RuleApplied {
			return
		}
		steps++
		n, _ := e.Data["added"].(int)
		added += n
		fmt.Fprintf(s.stdout, "%4d  %-24s +%d\n", steps, e.Data["rule"], n)
	})
	sw, err := chase.NewStepwise(doc.Rules, s.store, opts)
	if err != nil {
		return err
	}

	ctx, cancel := chaseContext(cmd.Context(), s.cfg.Timeout)
	defer cancel()
	for {
		applied, err := sw.Next(ctx)
		if err != nil {
			if sw.Status() != chase.Cancelled {
				return err
			}
			if errors.Is(err, chase.ErrBudgetExhausted) {
				fmt.Fprintln(s.stderr, "warning: application budget exhausted before the fixpoint")
			} else {
				fmt.Fprintf(s.stderr, "warning: chase cancelled: %v\n", err)
			}
			break
		}
		if !applied {
			break
		}
	}
	fmt.Fprintf(s.stdout, "%s after %d application(s), %d atom(s) added\n", sw.Status(), steps, added)

	if err := answerQueries(cmd.Context(), s, solver, doc.Queries); err != nil {
		return err
	}
	if params.metrics {
		return s.printMetrics()
	}
	return nil
}
