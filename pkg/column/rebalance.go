package column

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/colbase/column-engine/pkg/column/coltypes"
	"github.com/colbase/column-engine/pkg/column/indextable"
)

// ReindexEntry is one (key, address) pair drained from a legacy index,
// ready to be re-inserted into the primary via WriteIndexPlan.
type ReindexEntry struct {
	Key     coltypes.Key
	Address coltypes.Address
}

// promoteLocked doubles the primary's index_bits, swaps the new index
// into place, and pushes the old primary onto the back of the rebalance
// queue. The caller must already hold an upgradable guard on tables;
// promoteLocked upgrades it to exclusive exactly once per call chain —
// calling it again on an already-promoted guard is a cheap no-op on the
// locking side.
func (c *Column) promoteLocked(guard *upgradableGuard) error {
	if !guard.promoted {
		guard.promote()
	}

	c.rebalanceMu.Lock()
	defer c.rebalanceMu.Unlock()

	old := c.t.primary
	newBits := old.ID().IndexBits + 1

	fresh, err := indextable.Create(c.dir, coltypes.IndexTableID{Column: c.id, IndexBits: newBits})
	if err != nil {
		return fmt.Errorf("column: create index bits=%d: %w", newBits, err)
	}

	c.t.primary = fresh
	c.rebal.queue = append(c.rebal.queue, old)

	return nil
}

// Rebalance performs one bounded batch of reindex work against the
// front of the legacy queue, returning the (key, address) pairs the
// caller should stage via WriteIndexPlan and, once the front table is
// fully drained, its id so the caller can schedule DropIndex.
func (c *Column) Rebalance() (dropID *coltypes.IndexTableID, plan []ReindexEntry, err error) {
	if c.closed.Load() {
		return nil, nil, ErrClosed
	}

	start := time.Now()
	progressBefore := c.rebal.progress.Load()

	dropID, plan, err = c.rebalance()

	if c.hooks.RecordRebalance != nil {
		chunksDrained := int(c.rebal.progress.Load() - progressBefore)
		c.hooks.RecordRebalance(context.Background(), c.id, chunksDrained, time.Since(start))
	}

	return dropID, plan, err
}

func (c *Column) rebalance() (dropID *coltypes.IndexTableID, plan []ReindexEntry, err error) {
	c.tablesLock.rLock()
	defer c.tablesLock.rUnlock()

	c.rebalanceMu.RLock()
	defer c.rebalanceMu.RUnlock()

	if len(c.rebal.queue) == 0 {
		return nil, nil, nil
	}

	source := c.rebal.queue[0]

	total := source.TotalChunks()

	progress := c.rebal.progress.Load()
	if progress >= total {
		id := source.ID()

		return &id, nil, nil
	}

	shift := source.ID().IndexBits - startBits

	i := progress

	for batch := 0; batch < maxRebalanceBatch && i < total; batch++ {
		entries, err := source.RawEntries(i)
		if err != nil {
			return nil, nil, err
		}

		for _, entry := range entries {
			if entry.IsEmpty() {
				continue
			}

			suffix, ok, err := c.t.values[entry.Tier].RawPartialKeyAt(entry.Offset)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: reconstruct key at tier=%d offset=%d: %w", ErrCorruption, entry.Tier, entry.Offset, err)
			}

			if !ok {
				continue
			}

			prefix := uint16(i >> shift)
			key := coltypes.WithPrefix(suffix, prefix)

			plan = append(plan, ReindexEntry{
				Key:     key,
				Address: coltypes.Address{Tier: entry.Tier, Offset: entry.Offset},
			})
		}

		i++
	}

	c.rebal.progress.Store(i)

	if i >= total {
		id := source.ID()

		return &id, plan, nil
	}

	return nil, plan, nil
}

// DropIndex removes the front of the rebalance queue if its identity
// matches id. A stale id (no longer at the front) is a silent no-op; the
// caller may be a scheduler racing an already-completed drain.
func (c *Column) DropIndex(id coltypes.IndexTableID) error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.rebalanceMu.Lock()
	defer c.rebalanceMu.Unlock()

	if len(c.rebal.queue) == 0 || c.rebal.queue[0].ID() != id {
		return nil
	}

	front := c.rebal.queue[0]
	path := front.Path()

	err := front.Close()
	if err != nil {
		return fmt.Errorf("column: close drained index: %w", err)
	}

	c.rebal.queue = c.rebal.queue[1:]
	c.rebal.progress.Store(0)

	err = os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("column: remove drained index file: %w", err)
	}

	return nil
}
