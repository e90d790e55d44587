package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rebalanceCmd = &cobra.Command{
	Use:   "rebalance",
	Short: "Drive one bounded batch of reindex work against the front of the legacy queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		col, cleanup, err := openColumn()
		if err != nil {
			return err
		}
		defer cleanup()
		defer col.Close()

		dropID, plan, err := col.Rebalance()
		if err != nil {
			return err
		}

		for _, entry := range plan {
			_, err = col.WriteIndexPlan(entry.Key, entry.Address)
			if err != nil {
				return err
			}
		}

		if dropID != nil {
			err = col.DropIndex(*dropID)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "drained %d entries, dropped %s\n", len(plan), *dropID)

			return nil
		}

		fmt.Fprintf(cmd.OutOrStdout(), "drained %d entries\n", len(plan))

		return nil
	},
}
