package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/warp/commission-engine/commission"
)

func newRecalcCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "recalc [deal-id...]",
		Short: "Recalculate commissions for deals",
		Args: func(cmd *cobra.Command, args []string) error {
			if all && len(args) > 0 {
				return errors.New("pass deal ids or --all, not both")
			}
			if !all && len(args) == 0 {
				return errors.New("at least one deal id is required unless --all is set")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ids := make([]commission.DealID, 0, len(args))
			for _, id := range args {
				ids = append(ids, commission.DealID(id))
			}
			if all {
				if ids, err = a.store.ListDealIDs(ctx); err != nil {
					return err
				}
			}

			results, err := a.batch.RecalculateMany(ctx, ids)
			if err != nil {
				return err
			}
			return printResults(cmd, results)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "recalculate every deal")
	return cmd
}

// printResults writes one line per deal and fails if any deal failed.
func printResults(cmd *cobra.Command, results []commission.BatchResult) error {
	out := cmd.OutOrStdout()
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(out, "%s\tFAILED\t%v\n", r.DealID, r.Err)
			continue
		}
		fmt.Fprintf(out, "%s\t%d\n", r.DealID, r.Count)
	}
	if n := commission.Failed(results); n > 0 {
		return fmt.Errorf("%d of %d deals failed", n, len(results))
	}
	return nil
}
