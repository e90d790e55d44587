// Package wal implements the write-ahead log the column coordinator
// consumes through the LogWriter/LogReader/LogOverlays interfaces.
//
// The log's on-disk format is intentionally a replaceable implementation
// detail: the column package never looks past these three interfaces.
// [FileLog] is the concrete, file-backed implementation used by
// cmd/coldb and the table packages' tests.
package wal

import (
	"github.com/google/uuid"

	"github.com/colbase/column-engine/pkg/column/coltypes"
)

// Txn accumulates the staged actions of a single logical write (e.g. one
// write_plan call's value-remove + value-insert + index-insert trio) so
// they are committed to the log as one atomic record.
type Txn interface {
	// Stage appends an action to the in-progress transaction. It does
	// not touch disk; actions become visible to LogOverlays only after
	// Commit.
	Stage(action LogAction)

	// Commit durably appends the transaction as a single record and
	// makes its actions visible via LogOverlays until MarkEnacted is
	// called for the returned id.
	Commit() (id uuid.UUID, err error)

	// Discard abandons the transaction; nothing it staged is recorded.
	Discard()
}

// LogWriter is the append side of the log.
type LogWriter interface {
	// Begin starts a new transaction.
	Begin() (Txn, error)

	// MarkEnacted tells the log that every action of transaction id has
	// been applied to its table (via EnactPlan) and the log overlay no
	// longer needs to shadow them for readers.
	MarkEnacted(id uuid.UUID)
}

// LogReader replays durable transactions, e.g. on column Open after an
// unclean shutdown.
type LogReader interface {
	// Next returns the next committed transaction in commit order, or
	// ok=false once all transactions have been returned.
	Next() (id uuid.UUID, actions []LogAction, ok bool, err error)
}

// LogOverlays exposes staged-but-not-yet-enacted log records so read
// paths can see writes that are durable but whose EnactPlan has not run
// yet.
type LogOverlays interface {
	// IndexOverlay returns pending records for the given index table,
	// oldest first.
	IndexOverlay(table coltypes.IndexTableID) []IndexRecord

	// ValueOverlay returns pending records for the given value table,
	// oldest first.
	ValueOverlay(table coltypes.ValueTableID) []ValueRecord
}
