package wal

import (
	"github.com/colbase/column-engine/pkg/column/coltypes"
)

// ActionKind tags the closed set of mutations the column's log carries.
// Any other kind reaching EnactPlan/ValidatePlan is a programming error.
type ActionKind uint8

const (
	// ActionInsertIndex routes to the primary or a queued index table.
	ActionInsertIndex ActionKind = iota + 1
	// ActionInsertValue routes to Value[table.Tier].
	ActionInsertValue
)

func (k ActionKind) String() string {
	switch k {
	case ActionInsertIndex:
		return "insert_index"
	case ActionInsertValue:
		return "insert_value"
	default:
		return "unknown"
	}
}

// IndexOp distinguishes the index-table mutation a staged IndexRecord
// represents.
type IndexOp uint8

const (
	IndexInsert IndexOp = iota + 1
	IndexRemove
)

// IndexRecord is a staged mutation of one index table chunk/sub-slot.
type IndexRecord struct {
	Table    coltypes.IndexTableID
	Op       IndexOp
	Key      coltypes.Key
	Address  coltypes.Address // ignored for IndexRemove
	SubIndex uint64
	// HasSubIndex distinguishes "insert into first empty sub-slot"
	// (false) from "overwrite this exact sub-slot" (true), mirroring
	// write_insert_plan's optional sub_index parameter.
	HasSubIndex bool
}

// ValueOp distinguishes the value-table mutation a staged ValueRecord
// represents.
type ValueOp uint8

const (
	ValueInsert ValueOp = iota + 1
	ValueReplace
	ValueRemove
)

// ValueRecord is a staged mutation of one value table record.
type ValueRecord struct {
	Table   coltypes.ValueTableID
	Op      ValueOp
	Offset  uint64 // ignored for ValueInsert until the plan producer assigns one
	Key     coltypes.Key
	Payload []byte // nil for ValueRemove
}

// LogAction is one entry of a committed transaction. Exactly one of
// Index/Value is meaningful, selected by Kind.
type LogAction struct {
	Kind  ActionKind
	Index IndexRecord
	Value ValueRecord
}
