package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch a column's directory for table files appearing or disappearing",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := resolveDir()
		if err != nil {
			return err
		}

		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("watch: create watcher: %w", err)
		}
		defer watcher.Close()

		err = watcher.Add(dir)
		if err != nil {
			return fmt.Errorf("watch: add %s: %w", dir, err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		fmt.Fprintf(cmd.OutOrStdout(), "watching %s (ctrl-c to stop)\n", dir)

		for {
			select {
			case <-ctx.Done():
				return nil
			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", event.Op, event.Name)
			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}

				logger.Warn("watch error", "err", err)
			}
		}
	},
}
