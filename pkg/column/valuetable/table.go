// Package valuetable implements one of a column's sixteen size-tiered
// value tables: tiers 0..14 are fixed-record slab files with an intrusive
// free list, tier 15 is a bump-offset blob file whose bytes are never
// reclaimed within a process lifetime.
package valuetable

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/colbase/column-engine/pkg/column/coltypes"
	"github.com/colbase/column-engine/pkg/column/mmapfile"
)

const (
	initialSlabSlots = 256
	initialBlobBytes = 1 << 20
)

// Table is one (column, tier) value table.
type Table struct {
	mu sync.Mutex

	id   coltypes.ValueTableID
	file *mmapfile.File
	hdr  header
}

// FileName returns the on-disk identifier for a column's tier table,
// following the "(column_id, kind, tier_or_bits)" naming scheme shared
// with the index table files.
func FileName(id coltypes.ValueTableID) string {
	return fmt.Sprintf("col%d.value.%02d", id.Column, id.Tier)
}

// Open opens or creates the value table for id under dir.
func Open(dir string, id coltypes.ValueTableID) (*Table, error) {
	path := filepath.Join(dir, FileName(id))

	initialSize := int64(headerSize) + initialSlabSlots*slotSize(id.Tier)
	if id.Tier == coltypes.BlobTier {
		initialSize = int64(headerSize) + initialBlobBytes
	}

	f, created, err := mmapfile.OpenOrCreate(path, initialSize, 0o644)
	if err != nil {
		return nil, fmt.Errorf("valuetable: open %s: %w", path, err)
	}

	t := &Table{id: id, file: f}

	if created {
		t.hdr = newHeader(id.Tier)
		if id.Tier != coltypes.BlobTier {
			t.hdr.capacity = initialSlabSlots
		} else {
			t.hdr.capacity = uint64(initialBlobBytes)
		}

		encodeHeader(f.Data[:headerSize], t.hdr)

		err = f.Sync(0, headerSize)
		if err != nil {
			_ = f.Close()

			return nil, err
		}

		return t, nil
	}

	t.hdr, err = decodeHeader(f.Data[:headerSize])
	if err != nil {
		_ = f.Close()

		return nil, fmt.Errorf("valuetable: %s: %w", path, err)
	}

	return t, nil
}

// Close unmaps the table's file.
func (t *Table) Close() error {
	return t.file.Close()
}

// ID returns the table's identity.
func (t *Table) ID() coltypes.ValueTableID {
	return t.id
}

// ValueSize returns the payload capacity of this tier. Undefined (zero)
// for the blob tier, which is unbounded.
func (t *Table) ValueSize() uint16 {
	if t.id.Tier == coltypes.BlobTier {
		return 0
	}

	return uint16(coltypes.TierCapacities[t.id.Tier])
}

// LiveCount returns the number of live records currently stored.
func (t *Table) LiveCount() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.hdr.liveCount
}

// RefreshMetadata re-reads the mutable header fields, in case a log
// replay mutated the underlying file out from under this handle.
func (t *Table) RefreshMetadata() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	hdr, err := decodeHeader(t.file.Data[:headerSize])
	if err != nil {
		return fmt.Errorf("valuetable: refresh_metadata: %w", err)
	}

	t.hdr = hdr

	return nil
}

// persistHeaderLocked writes the cached header back to the mapping and
// flushes it. Callers must hold t.mu.
func (t *Table) persistHeaderLocked() error {
	encodeHeader(t.file.Data[:headerSize], t.hdr)

	return t.file.Sync(0, headerSize)
}

// ensureSlabCapacityLocked grows the file if the next allocation would
// exceed the current slab slot capacity. Callers must hold t.mu.
func (t *Table) ensureSlabCapacityLocked() error {
	if t.hdr.highWater < t.hdr.capacity {
		return nil
	}

	newCapacity := t.hdr.capacity * 2
	if newCapacity == 0 {
		newCapacity = initialSlabSlots
	}

	newSize := int64(headerSize) + int64(newCapacity)*slotSize(t.id.Tier)

	err := t.file.Grow(newSize)
	if err != nil {
		return fmt.Errorf("valuetable: grow slab: %w", err)
	}

	t.hdr.capacity = newCapacity

	return nil
}

// ensureBlobCapacityLocked grows the file if the next write of length n
// starting at the current bump offset would not fit. Callers must hold
// t.mu.
func (t *Table) ensureBlobCapacityLocked(n int64) error {
	needed := int64(headerSize) + int64(t.hdr.highWater) + n
	if needed <= int64(headerSize)+int64(t.hdr.capacity) {
		return nil
	}

	newCapacity := t.hdr.capacity * 2
	if newCapacity == 0 {
		newCapacity = initialBlobBytes
	}

	for int64(headerSize)+int64(newCapacity) < needed {
		newCapacity *= 2
	}

	err := t.file.Grow(int64(headerSize) + int64(newCapacity))
	if err != nil {
		return fmt.Errorf("valuetable: grow blob: %w", err)
	}

	t.hdr.capacity = newCapacity

	return nil
}

func slotOffset(slot uint64, tier uint8) int64 {
	return int64(headerSize) + int64(slot)*slotSize(tier)
}
