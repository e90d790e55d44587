package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/colbase/column-engine/pkg/column/coltypes"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <hex-key>",
	Short: "Remove a key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := decodeKey(args[0])
		if err != nil {
			return err
		}

		col, cleanup, err := openColumn()
		if err != nil {
			return err
		}
		defer cleanup()
		defer col.Close()

		outcome, err := col.WritePlan(key, nil)
		if err != nil {
			return err
		}

		if outcome == coltypes.Skipped {
			fmt.Fprintln(cmd.OutOrStdout(), "no matching key")

			return nil
		}

		fmt.Fprintln(cmd.OutOrStdout(), "deleted")

		return nil
	},
}
