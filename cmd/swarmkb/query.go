package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/swarmkb/internal/domain/criteria"
	swarmkb "github.com/kailas-cloud/swarmkb/pkg/sdk"
)

// Clauses use the field:value[:operator] form, e.g.
//
//	swarmkb query dsswres kb_datastore:ADT replicas:2:gt --strategy QUORUM
func newQueryCmd() *cobra.Command {
	nf := &nodeFlags{}
	var opts swarmkb.QueryOptions
	var strategy, consistency string
	cmd := &cobra.Command{
		Use:   "query <store> [field:value[:operator] ...]",
		Short: "Run a distributed query through a node",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pred, err := criteria.CompileStrings(args[1:])
			if err != nil {
				return err
			}
			c, err := nf.client()
			if err != nil {
				return err
			}
			opts.Strategy = swarmkb.Strategy(strategy)
			opts.Consistency = swarmkb.Consistency(consistency)
			res, err := c.Query(cmd.Context(), args[0], pred, opts)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	nf.bind(cmd)
	cmd.Flags().StringVar(&strategy, "strategy", "", "query strategy, node default when empty")
	cmd.Flags().StringVar(&consistency, "consistency", "", "BEST_EFFORT, EVENTUAL or STRONG")
	cmd.Flags().IntVar(&opts.TimeBudgetMS, "budget-ms", 0, "peer fan-out budget in milliseconds")
	cmd.Flags().IntVar(&opts.QuorumN, "quorum", 0, "answers required under QUORUM")
	cmd.Flags().BoolVar(&opts.AnnotateSource, "annotate", false, "tag documents with their source node")
	return cmd
}

func newGetCmd() *cobra.Command {
	nf := &nodeFlags{}
	cmd := &cobra.Command{
		Use:   "get <store> [field:value[:operator] ...]",
		Short: "Read matching documents from one node's own store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pred, err := criteria.CompileStrings(args[1:])
			if err != nil {
				return err
			}
			c, err := nf.client()
			if err != nil {
				return err
			}
			docs, err := c.Get(cmd.Context(), args[0], pred)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d documents\n", len(docs))
			return printJSON(cmd.OutOrStdout(), docs)
		},
	}
	nf.bind(cmd)
	return cmd
}
