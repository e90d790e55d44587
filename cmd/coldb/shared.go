package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/colbase/column-engine/cmd/coldb/config"
	"github.com/colbase/column-engine/pkg/column"
	"github.com/colbase/column-engine/pkg/column/coltypes"
	"github.com/colbase/column-engine/pkg/column/telemetry"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, nil))

func resolveDir() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getwd: %w", err)
	}

	cfg, _, err := config.Load(wd, flagConfig, flagDir, os.Environ())
	if err != nil {
		return "", err
	}

	return cfg.Dir, nil
}

// openColumn opens the configured column and returns it alongside a
// cleanup func the caller must defer; cleanup flushes and stops the
// metrics provider when --metrics is set.
func openColumn() (*column.Column, func(), error) {
	dir, err := resolveDir()
	if err != nil {
		return nil, nil, err
	}

	err = ensureLayout(dir)
	if err != nil {
		return nil, nil, err
	}

	logger.Debug("opening column", "dir", dir, "column", flagColumn)

	hooks := telemetry.Noop

	cleanup := func() {}

	if flagMetrics {
		provider, err := telemetry.NewStdoutProvider(5 * time.Second)
		if err != nil {
			return nil, nil, err
		}

		meter, err := telemetry.NewMeter(provider.Meter("coldb"))
		if err != nil {
			return nil, nil, err
		}

		hooks = meter.Hooks()
		cleanup = func() {
			err := telemetry.Shutdown(context.Background(), provider)
			if err != nil {
				logger.Warn("metrics shutdown failed", "err", err)
			}
		}
	}

	col, err := column.Open(flagColumn, dir, column.WithHooks(hooks))
	if err != nil {
		cleanup()

		return nil, nil, err
	}

	return col, cleanup, nil
}

func decodeKey(hexKey string) (coltypes.Key, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("key must be hex-encoded: %w", err)
	}

	return coltypes.Key(raw), nil
}
