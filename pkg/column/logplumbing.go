package column

import (
	"fmt"

	"github.com/colbase/column-engine/pkg/column/coltypes"
	"github.com/colbase/column-engine/pkg/column/indextable"
	"github.com/colbase/column-engine/pkg/wal"
)

// EnactPlan applies one durably committed log action to the table it
// addresses. Index records route to the primary or a queued legacy
// table by matching table id; value records route to the tier they
// name. Any other action kind is a programming error.
func (c *Column) EnactPlan(action wal.LogAction) error {
	switch action.Kind {
	case wal.ActionInsertIndex:
		idx, err := c.indexTableFor(action.Index.Table)
		if err != nil {
			return err
		}

		return idx.EnactPlan(action.Index)
	case wal.ActionInsertValue:
		return c.t.values[action.Value.Table.Tier].EnactPlan(action.Value)
	default:
		return fmt.Errorf("%w: enact_plan: unknown action kind %v", ErrInvariantViolation, action.Kind)
	}
}

// ValidatePlan performs the same routing as EnactPlan without mutating
// any table.
func (c *Column) ValidatePlan(action wal.LogAction) error {
	switch action.Kind {
	case wal.ActionInsertIndex:
		idx, err := c.indexTableFor(action.Index.Table)
		if err != nil {
			return err
		}

		return idx.ValidatePlan(action.Index)
	case wal.ActionInsertValue:
		return c.t.values[action.Value.Table.Tier].ValidatePlan(action.Value)
	default:
		return fmt.Errorf("%w: validate_plan: unknown action kind %v", ErrInvariantViolation, action.Kind)
	}
}

func (c *Column) indexTableFor(id coltypes.IndexTableID) (*indextable.Table, error) {
	if c.t.primary.ID() == id {
		return c.t.primary, nil
	}

	for _, legacy := range c.rebal.queue {
		if legacy.ID() == id {
			return legacy, nil
		}
	}

	return nil, fmt.Errorf("%w: missing table %s", ErrCorruption, id)
}

// CompletePlan flushes every value table to disk, in tier order.
func (c *Column) CompletePlan() error {
	for _, vt := range c.t.values {
		err := vt.CompletePlan()
		if err != nil {
			return fmt.Errorf("column: complete_plan tier %d: %w", vt.ID().Tier, err)
		}
	}

	return nil
}

// RefreshMetadata reloads every value table's header from disk, in tier
// order.
func (c *Column) RefreshMetadata() error {
	for _, vt := range c.t.values {
		err := vt.RefreshMetadata()
		if err != nil {
			return fmt.Errorf("column: refresh_metadata tier %d: %w", vt.ID().Tier, err)
		}
	}

	return nil
}
