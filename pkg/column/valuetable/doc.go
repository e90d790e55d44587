// Package valuetable implements a column's size-tiered value storage: 15
// fixed-record slab tiers plus one bump-allocated blob tier, each mapped
// as a single memory-mapped file per (column, tier) pair.
package valuetable
