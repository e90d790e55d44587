package column

import (
	"sync"
	"sync/atomic"

	"github.com/colbase/column-engine/pkg/column/coltypes"
	"github.com/colbase/column-engine/pkg/column/indextable"
	"github.com/colbase/column-engine/pkg/column/telemetry"
	"github.com/colbase/column-engine/pkg/column/valuetable"
	"github.com/colbase/column-engine/pkg/wal"
)

// startBits is the index_bits a fresh primary starts at.
const startBits = 16

// maxRebalanceBatch bounds how many chunks one Rebalance call drains.
const maxRebalanceBatch = 1024

// tables holds the primary index and the column-wide, never-swapped bank
// of 16 value tables.
type tables struct {
	primary *indextable.Table
	values  [coltypes.NumTiers]*valuetable.Table
}

// rebalanceState is the FIFO of legacy index tables still consulted by
// reads, plus the draining progress of the front table.
type rebalanceState struct {
	queue    []*indextable.Table
	progress atomic.Uint64
}

// Column is the coordinator gluing the index, the value table bank, and
// the rebalance queue together through a write-ahead log.
type Column struct {
	id  uint8
	dir string

	tablesLock upgradeLock
	t          tables

	rebalanceMu sync.RWMutex
	rebal       rebalanceState

	logWriter wal.LogWriter
	overlays  wal.LogOverlays
	log       *wal.FileLog // concrete handle, owned for Close/Next during recovery

	hooks telemetry.Hooks

	closed atomic.Bool
}

// OpenOption customizes Open.
type OpenOption func(*Column)

// WithHooks wires telemetry callbacks into the column. Without it the
// column records nothing.
func WithHooks(hooks telemetry.Hooks) OpenOption {
	return func(c *Column) {
		c.hooks = hooks
	}
}

// ID returns the column's identifier.
func (c *Column) ID() uint8 {
	return c.id
}

// Path returns the directory the column's tables live under.
func (c *Column) Path() string {
	return c.dir
}
