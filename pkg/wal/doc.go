// Package wal provides the durable write-ahead log the column coordinator
// stages every index and value mutation through before applying it to a
// table. See FileLog for the on-disk format.
package wal
