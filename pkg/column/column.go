// Package column implements the column engine: a hash index over
// fixed-width keys, a bank of 16 size-tiered value tables, and an online
// reindex queue, glued together through a write-ahead log.
package column

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/colbase/column-engine/pkg/column/coltypes"
	"github.com/colbase/column-engine/pkg/column/indextable"
	"github.com/colbase/column-engine/pkg/column/valuetable"
	"github.com/colbase/column-engine/pkg/wal"
)

// Open opens or creates the column identified by id under dir, replaying
// every transaction committed to the column's log. The log does not
// record on disk which transactions were already enacted, so replay
// re-applies them all and relies on EnactPlan being idempotent.
func Open(id uint8, dir string, opts ...OpenOption) (*Column, error) {
	err := os.MkdirAll(dir, 0o750)
	if err != nil {
		return nil, fmt.Errorf("column: mkdir %s: %w", dir, err)
	}

	log, err := wal.OpenFileLog(filepath.Join(dir, fmt.Sprintf("col%d.wal", id)))
	if err != nil {
		return nil, fmt.Errorf("column: open log: %w", err)
	}

	t, err := openOrCreateTables(dir, id)
	if err != nil {
		_ = log.Close()

		return nil, err
	}

	c := &Column{
		id:        id,
		dir:       dir,
		t:         t.tables,
		logWriter: log,
		overlays:  log,
		log:       log,
	}
	c.rebal.queue = t.queue

	for _, opt := range opts {
		opt(c)
	}

	err = c.replayLog()
	if err != nil {
		_ = c.Close()

		return nil, err
	}

	err = writeManifest(dir, manifestFor(t.allIndexBits))
	if err != nil {
		_ = c.Close()

		return nil, err
	}

	return c, nil
}

type openedTables struct {
	tables       tables
	queue        []*indextable.Table
	allIndexBits []uint8
}

func openOrCreateTables(dir string, columnID uint8) (openedTables, error) {
	var result openedTables

	for tier := uint8(0); tier < coltypes.NumTiers; tier++ {
		vt, err := valuetable.Open(dir, coltypes.ValueTableID{Column: columnID, Tier: tier})
		if err != nil {
			return result, fmt.Errorf("column: open value tier %d: %w", tier, err)
		}

		result.tables.values[tier] = vt
	}

	found := discoverIndexBits(dir, columnID)
	if len(found) == 0 {
		primary, err := indextable.Create(dir, coltypes.IndexTableID{Column: columnID, IndexBits: startBits})
		if err != nil {
			return result, fmt.Errorf("column: create primary index: %w", err)
		}

		result.tables.primary = primary
		result.allIndexBits = []uint8{startBits}

		return result, nil
	}

	result.allIndexBits = found

	for _, bits := range found {
		idx, err := indextable.Open(dir, coltypes.IndexTableID{Column: columnID, IndexBits: bits})
		if err != nil {
			return result, fmt.Errorf("column: open index bits=%d: %w", bits, err)
		}

		if bits == found[len(found)-1] {
			result.tables.primary = idx

			continue
		}

		result.queue = append(result.queue, idx)
	}

	return result, nil
}

// replayLog enacts every committed transaction in the log, in commit
// order, including ones a prior process already enacted.
func (c *Column) replayLog() error {
	for {
		id, actions, ok, err := c.log.Next()
		if err != nil {
			return fmt.Errorf("column: replay log: %w", err)
		}

		if !ok {
			return nil
		}

		for _, action := range actions {
			err = c.EnactPlan(action)
			if err != nil {
				return fmt.Errorf("column: replay enact: %w", err)
			}
		}

		c.log.MarkEnacted(id)
	}
}

// Close releases every table and the log. Calls after the first are
// no-ops.
func (c *Column) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	var firstErr error

	recordErr := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	recordErr(c.t.primary.Close())

	for _, vt := range c.t.values {
		if vt != nil {
			recordErr(vt.Close())
		}
	}

	for _, legacy := range c.rebal.queue {
		recordErr(legacy.Close())
	}

	recordErr(c.log.Close())

	return firstErr
}

// Get resolves key to its current payload, probing the primary index
// first and, on a miss, every queued legacy index.
func (c *Column) Get(key coltypes.Key) ([]byte, bool, error) {
	if c.closed.Load() {
		return nil, false, ErrClosed
	}

	start := time.Now()

	val, found, err := c.get(key)

	if c.hooks.RecordGet != nil {
		c.hooks.RecordGet(context.Background(), c.id, found, time.Since(start))
	}

	return val, found, err
}

func (c *Column) get(key coltypes.Key) ([]byte, bool, error) {
	c.tablesLock.rLock()
	defer c.tablesLock.rUnlock()

	val, found, err := c.getFromIndex(c.t.primary, key)
	if err != nil || found {
		return val, found, err
	}

	c.rebalanceMu.RLock()
	defer c.rebalanceMu.RUnlock()

	for _, legacy := range c.rebal.queue {
		val, found, err = c.getFromIndex(legacy, key)
		if err != nil || found {
			return val, found, err
		}
	}

	return nil, false, nil
}

func (c *Column) getFromIndex(idx *indextable.Table, key coltypes.Key) ([]byte, bool, error) {
	var subIndex uint8

	for {
		entry, next, found, err := idx.Get(key, subIndex, c.overlays)
		if err != nil {
			return nil, false, err
		}

		if !found {
			return nil, false, nil
		}

		val, ok, err := c.t.values[entry.Tier].Get(key, entry.Offset, c.overlays)
		if err != nil {
			return nil, false, err
		}

		if ok {
			return val, true, nil
		}

		if next >= indextable.EntriesPerChunk {
			return nil, false, nil
		}

		subIndex = next + 1
	}
}
