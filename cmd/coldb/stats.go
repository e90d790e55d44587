package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print occupancy of the index and each value table tier",
	RunE: func(cmd *cobra.Command, args []string) error {
		col, cleanup, err := openColumn()
		if err != nil {
			return err
		}
		defer cleanup()
		defer col.Close()

		stats, err := col.Stats()
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(out))

		return nil
	},
}
