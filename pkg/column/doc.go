// Package column implements a column: a hash index table mapping
// fixed-width keys to (size_tier, offset) addresses, a fixed bank of 16
// size-tiered value tables, and a queue of legacy indices being drained
// into a new, larger primary while reads and writes continue. A
// write-ahead log in pkg/wal carries atomicity and durability; this
// package only stages and applies plans against it.
package column
