// Package indextable implements one open-addressed hash index table: the
// primary or one member of a column's rebalance queue. See table.go for
// the chunked probing layout.
package indextable
