package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"

	"github.com/colbase/column-engine/pkg/column"
)

var getCmd = &cobra.Command{
	Use:   "get <hex-key>",
	Short: "Resolve a key to its value",
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

		var (
			val   []byte
			found bool
		)

		policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)

		operation := func() error {
			val, found, err = col.Get(key)
			if err != nil && !errors.Is(err, column.ErrClosed) {
				logger.Warn("get contended, retrying", "err", err)

				return err
			}

			return nil
		}

		err = backoff.Retry(operation, backoff.WithContext(policy, context.Background()))
		if err != nil {
			return err
		}

		if !found {
			return fmt.Errorf("key not found")
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", val)

		return nil
	},
}
