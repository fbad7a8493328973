package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/warp/commission-engine/api"
)

func newSeedCommand() *cobra.Command {
	var ids []string
	for _, s := range api.Scenarios() {
		ids = append(ids, s.ID)
	}

	return &cobra.Command{
		Use:       "seed <scenario>",
		Short:     "Reset the database and load a demo scenario",
		Long:      "Available scenarios: " + strings.Join(ids, ", "),
		Args:      cobra.ExactArgs(1),
		ValidArgs: ids,
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

			results, err := a.handler.Seed(ctx, args[0])
			if err != nil {
				return fmt.Errorf("seed %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "loaded scenario %s\n", args[0])
			return printResults(cmd, results)
		},
	}
}
