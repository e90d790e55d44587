package column

import (
	"context"
	"fmt"
	"time"

	"github.com/colbase/column-engine/pkg/column/coltypes"
	"github.com/colbase/column-engine/pkg/column/indextable"
	"github.com/colbase/column-engine/pkg/wal"
)

// WritePlan stages and applies an insert, replace, or delete of key.
// value == nil means delete. The call takes an upgradable-read guard on
// tables so a chunk-full primary can be promoted in place without first
// releasing the snapshot used to probe it.
func (c *Column) WritePlan(key coltypes.Key, value []byte) (coltypes.PlanOutcome, error) {
	if c.closed.Load() {
		return coltypes.Skipped, ErrClosed
	}

	start := time.Now()

	outcome, err := c.writePlan(key, value)

	if c.hooks.RecordWrite != nil {
		c.hooks.RecordWrite(context.Background(), c.id, outcome.String(), time.Since(start))
	}

	return outcome, err
}

func (c *Column) writePlan(key coltypes.Key, value []byte) (coltypes.PlanOutcome, error) {
	guard := c.tablesLock.upgradableRead()
	defer guard.release()

	if value == nil {
		return c.writeDeleteLocked(key)
	}

	return c.writeUpsertLocked(key, value, guard)
}

func (c *Column) writeUpsertLocked(key coltypes.Key, value []byte, guard *upgradableGuard) (coltypes.PlanOutcome, error) {
	targetTier := coltypes.TierFor(len(value))

	existingTier, offset, subIndex, found, err := c.probePrimaryLocked(key)
	if err != nil {
		return coltypes.Skipped, err
	}

	txn, err := c.logWriter.Begin()
	if err != nil {
		return coltypes.Skipped, fmt.Errorf("column: begin txn: %w", err)
	}

	if found {
		if existingTier == targetTier {
			err = c.t.values[targetTier].WriteReplacePlan(offset, key, value, txn)
			if err != nil {
				txn.Discard()

				return coltypes.Skipped, err
			}

			return c.commitAndEnact(txn)
		}

		err = c.t.values[existingTier].WriteRemovePlan(offset, txn)
		if err != nil {
			txn.Discard()

			return coltypes.Skipped, err
		}

		newOffset, err := c.t.values[targetTier].WriteInsertPlan(key, value, txn)
		if err != nil {
			txn.Discard()

			return coltypes.Skipped, err
		}

		outcome, err := c.t.primary.WriteInsertPlan(key, coltypes.Address{Tier: targetTier, Offset: newOffset}, &subIndex, txn, c.overlays)
		if err != nil {
			txn.Discard()

			return coltypes.Skipped, err
		}

		_, err = c.commitAndEnact(txn)
		if err != nil {
			return coltypes.Skipped, err
		}

		return outcome, nil
	}

	offset, err = c.t.values[targetTier].WriteInsertPlan(key, value, txn)
	if err != nil {
		txn.Discard()

		return coltypes.Skipped, err
	}

	outcome, err := c.t.primary.WriteInsertPlan(key, coltypes.Address{Tier: targetTier, Offset: offset}, nil, txn, c.overlays)
	if err != nil {
		txn.Discard()

		return coltypes.Skipped, err
	}

	_, err = c.commitAndEnact(txn)
	if err != nil {
		return coltypes.Skipped, err
	}

	if outcome != coltypes.NeedRebalance {
		return outcome, nil
	}

	err = c.promoteLocked(guard)
	if err != nil {
		return coltypes.Skipped, err
	}

	// The index doubled; retry the same insert against the fresh,
	// presumably non-full primary. Each promotion strictly increases
	// index_bits, so this loop terminates.
	for {
		txn, err = c.logWriter.Begin()
		if err != nil {
			return coltypes.Skipped, fmt.Errorf("column: begin txn: %w", err)
		}

		retryOutcome, err := c.t.primary.WriteInsertPlan(key, coltypes.Address{Tier: targetTier, Offset: offset}, nil, txn, c.overlays)
		if err != nil {
			txn.Discard()

			return coltypes.Skipped, err
		}

		_, err = c.commitAndEnact(txn)
		if err != nil {
			return coltypes.Skipped, err
		}

		if retryOutcome != coltypes.NeedRebalance {
			break
		}

		err = c.promoteLocked(guard)
		if err != nil {
			return coltypes.Skipped, err
		}
	}

	return coltypes.NeedRebalance, nil
}

func (c *Column) writeDeleteLocked(key coltypes.Key) (coltypes.PlanOutcome, error) {
	tier, offset, subIndex, found, idx, err := c.probeAllLocked(key)
	if err != nil {
		return coltypes.Skipped, err
	}

	if !found {
		return coltypes.Skipped, nil
	}

	txn, err := c.logWriter.Begin()
	if err != nil {
		return coltypes.Skipped, fmt.Errorf("column: begin txn: %w", err)
	}

	err = c.t.values[tier].WriteRemovePlan(offset, txn)
	if err != nil {
		txn.Discard()

		return coltypes.Skipped, err
	}

	err = idx.WriteRemovePlan(key, subIndex, txn)
	if err != nil {
		txn.Discard()

		return coltypes.Skipped, err
	}

	return c.commitAndEnact(txn)
}

// probePrimaryLocked walks the primary index only, matching the insert
// and replace paths which only ever migrate entries already indexed by
// the primary.
func (c *Column) probePrimaryLocked(key coltypes.Key) (tier uint8, offset uint64, subIndex uint8, found bool, err error) {
	return c.probeIndexLocked(c.t.primary, key)
}

// probeAllLocked walks the primary index and, on a miss, every queued
// legacy index, symmetric with Get. Delete must see a key that has not
// yet been drained out of a legacy index into the primary.
func (c *Column) probeAllLocked(key coltypes.Key) (tier uint8, offset uint64, subIndex uint8, found bool, idx *indextable.Table, err error) {
	tier, offset, subIndex, found, err = c.probeIndexLocked(c.t.primary, key)
	if err != nil || found {
		return tier, offset, subIndex, found, c.t.primary, err
	}

	c.rebalanceMu.RLock()
	defer c.rebalanceMu.RUnlock()

	for _, legacy := range c.rebal.queue {
		tier, offset, subIndex, found, err = c.probeIndexLocked(legacy, key)
		if err != nil || found {
			return tier, offset, subIndex, found, legacy, err
		}
	}

	return 0, 0, 0, false, nil, nil
}

func (c *Column) probeIndexLocked(idx *indextable.Table, key coltypes.Key) (tier uint8, offset uint64, subIndex uint8, found bool, err error) {
	var pos uint8

	for {
		entry, next, ok, err := idx.Get(key, pos, c.overlays)
		if err != nil {
			return 0, 0, 0, false, err
		}

		if !ok {
			return 0, 0, 0, false, nil
		}

		match, err := c.t.values[entry.Tier].HasKeyAt(key, entry.Offset, c.overlays)
		if err != nil {
			return 0, 0, 0, false, err
		}

		if match {
			return entry.Tier, entry.Offset, next, true, nil
		}

		if next >= indextable.EntriesPerChunk {
			return 0, 0, 0, false, nil
		}

		pos = next + 1
	}
}

// commitAndEnact durably appends txn, applies every staged action to its
// table immediately, and clears the transaction from the log overlay.
// The column owns the log end-to-end so it can behave as if writes are
// synchronously applied; a crash between Commit and here is recovered by
// replaying the log on the next Open.
func (c *Column) commitAndEnact(txn wal.Txn) (coltypes.PlanOutcome, error) {
	id, err := txn.Commit()
	if err != nil {
		return coltypes.Skipped, fmt.Errorf("column: commit txn: %w", err)
	}

	for _, action := range c.log.PendingActions(id) {
		err = c.EnactPlan(action)
		if err != nil {
			return coltypes.Skipped, fmt.Errorf("column: enact: %w", err)
		}
	}

	c.logWriter.MarkEnacted(id)

	return coltypes.Written, nil
}

// WriteIndexPlan unconditionally inserts (key, address) into the primary
// index, promoting and retrying on NeedRebalance. Used by the reindex
// loop to re-home entries drained from a legacy index.
func (c *Column) WriteIndexPlan(key coltypes.Key, address coltypes.Address) (coltypes.PlanOutcome, error) {
	if c.closed.Load() {
		return coltypes.Skipped, ErrClosed
	}

	guard := c.tablesLock.upgradableRead()
	defer guard.release()

	for {
		txn, err := c.logWriter.Begin()
		if err != nil {
			return coltypes.Skipped, fmt.Errorf("column: begin txn: %w", err)
		}

		outcome, err := c.t.primary.WriteInsertPlan(key, address, nil, txn, c.overlays)
		if err != nil {
			txn.Discard()

			return coltypes.Skipped, err
		}

		_, err = c.commitAndEnact(txn)
		if err != nil {
			return coltypes.Skipped, err
		}

		if outcome != coltypes.NeedRebalance {
			return outcome, nil
		}

		err = c.promoteLocked(guard)
		if err != nil {
			return coltypes.Skipped, err
		}
	}
}
