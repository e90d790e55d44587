// Command coldb is an operator CLI for the column engine: open a column,
// get/put/delete a key, drive rebalance batches, inspect occupancy, and
// watch a column directory for externally added tables.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagDir     string
	flagColumn  uint8
	flagConfig  string
	flagMetrics bool
)

var rootCmd = &cobra.Command{
	Use:   "coldb",
	Short: "Operate a column-engine column",
	Long: `coldb drives one column of the column engine: a hash index over
fixed-width keys backed by a bank of size-tiered value tables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDir, "dir", "", "column data directory (overrides config)")
	rootCmd.PersistentFlags().Uint8Var(&flagColumn, "column", 0, "column id")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to .coldb.json")
	rootCmd.PersistentFlags().BoolVar(&flagMetrics, "metrics", false, "print get/write/rebalance metrics to stdout on exit")

	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(rebalanceCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "coldb: "+err.Error())
		os.Exit(1)
	}
}
