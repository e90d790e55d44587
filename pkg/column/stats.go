package column

import "github.com/colbase/column-engine/pkg/column/coltypes"

// TierStats reports occupancy of one value table tier.
type TierStats struct {
	Tier      uint8
	LiveCount uint64
}

// Stats is a read-only snapshot of a column's occupancy, used by
// cmd/coldb's stats verb and by the reindex worker to decide whether to
// keep calling Rebalance.
type Stats struct {
	PrimaryIndexBits  uint8
	PrimaryLiveCount  uint64
	PrimaryTotalSlots uint64
	QueueDepth        int
	RebalanceProgress uint64
	Tiers             [coltypes.NumTiers]TierStats
}

// Stats takes the same lock order as a read so it reflects a consistent
// snapshot across the index and the rebalance queue.
func (c *Column) Stats() (Stats, error) {
	if c.closed.Load() {
		return Stats{}, ErrClosed
	}

	c.tablesLock.rLock()
	defer c.tablesLock.rUnlock()

	c.rebalanceMu.RLock()
	defer c.rebalanceMu.RUnlock()

	s := Stats{
		PrimaryIndexBits:  c.t.primary.ID().IndexBits,
		PrimaryLiveCount:  c.t.primary.NumEntries(),
		PrimaryTotalSlots: c.t.primary.TotalEntries(),
		QueueDepth:        len(c.rebal.queue),
		RebalanceProgress: c.rebal.progress.Load(),
	}

	for tier, vt := range c.t.values {
		s.Tiers[tier] = TierStats{Tier: uint8(tier), LiveCount: vt.LiveCount()}
	}

	return s, nil
}
