package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/colbase/column-engine/cmd/coldb/config"
)

var openCmd = &cobra.Command{
	Use:   "open",
	Short: "Open (creating if needed) the column and print its table layout",
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

		fmt.Fprintf(cmd.OutOrStdout(), "column %d at %s: index_bits=%d queue_depth=%d live=%d\n",
			col.ID(), col.Path(), stats.PrimaryIndexBits, stats.QueueDepth, stats.PrimaryLiveCount)

		return nil
	},
}

// ensureLayout writes the column's physical layout file the first time a
// column directory is opened, so a later open can confirm the tier
// capacities and chunk fan-out it was created with never changed.
func ensureLayout(dir string) error {
	err := os.MkdirAll(dir, 0o750)
	if err != nil {
		return fmt.Errorf("open: mkdir %s: %w", dir, err)
	}

	path := filepath.Join(dir, config.LayoutFileName)

	_, err = os.Stat(path)
	if err == nil {
		return nil
	}

	if !os.IsNotExist(err) {
		return fmt.Errorf("open: stat %s: %w", path, err)
	}

	return config.WriteLayout(path, config.DefaultLayout())
}
