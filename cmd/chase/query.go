package main

import (
	"github.com/spf13/cobra"
)

type queryParams struct {
	native  bool
	union   bool
	metrics bool
}

func newQueryCommand(root *rootParams) *cobra.Command {
	params := &queryParams{}
	cmd := &cobra.Command{
		Use:   "query FILE...",
		Short: "Answer the queries of DLGP files without chasing",
		Long: `Load the facts of the DLGP files into the store and answer their queries
against the stored facts. Rules are ignored; run the chase first to query a
saturated store.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("native") {
				cfg.Native = params.native
			}
			s, err := root.open(cmd, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			doc, err := s.parse(args)
			if err != nil {
				return err
			}
			if len(doc.Rules) > 0 {
				s.log.Infof("ignoring %d rule(s); use run to chase them", len(doc.Rules))
			}
			answer := answerQueries
			if params.union {
				answer = answerUnion
			}
			if err := answer(cmd.Context(), s, s.solver(), doc.Queries); err != nil {
				return err
			}
			if params.metrics {
				return s.printMetrics()
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&params.native, "native", false, "evaluate queries in the store when it supports it (sqlite)")
	cmd.Flags().BoolVar(&params.union, "union", false, "answer the queries as one union; they must have the same number of answer variables")
	cmd.Flags().BoolVar(&params.metrics, "metrics", false, "print metrics as JSON to stderr")
	return cmd
}
