// Package indextable implements the open-addressed hash index from key to
// (size_tier, offset): a fixed fan-out of entries is probed linearly
// within a chunk, and the column coordinator doubles index_bits by
// creating a fresh table and enqueuing this one rather than this package
// growing itself in place.
package indextable

import (
	"fmt"
	"hash/fnv"
	"path/filepath"
	"sync"

	"github.com/colbase/column-engine/pkg/column/coltypes"
	"github.com/colbase/column-engine/pkg/column/mmapfile"
)

// Entry is a decoded index slot: either empty (IsEmpty true) or a
// (partial key hash, address) pair.
type Entry struct {
	Hash   uint64
	Tier   uint8
	Offset uint64
}

// IsEmpty reports the all-zero sentinel.
func (e Entry) IsEmpty() bool {
	return e.Hash == 0 && e.Tier == 0 && e.Offset == 0
}

// Table is one index table: the primary, or one member of a column's
// rebalance queue.
type Table struct {
	mu sync.RWMutex

	id   coltypes.IndexTableID
	file *mmapfile.File
	hdr  header
}

// FileName returns the on-disk identifier for a column's index table,
// following the "(column_id, kind, tier_or_bits)" naming scheme shared
// with the value table files.
func FileName(id coltypes.IndexTableID) string {
	return fmt.Sprintf("col%d.index.%d", id.Column, id.IndexBits)
}

// Create materializes a fresh, empty index table with the given
// index_bits.
func Create(dir string, id coltypes.IndexTableID) (*Table, error) {
	path := filepath.Join(dir, FileName(id))

	hdr := newHeader(id.IndexBits)
	size := int64(headerSize) + int64(hdr.chunkCount)*entriesPerChunk*entrySize

	f, created, err := mmapfile.OpenOrCreate(path, size, 0o644)
	if err != nil {
		return nil, fmt.Errorf("indextable: create %s: %w", path, err)
	}

	if !created {
		_ = f.Close()

		return nil, fmt.Errorf("indextable: %s already exists", path)
	}

	encodeHeader(f.Data[:headerSize], hdr)

	err = f.Sync(0, headerSize)
	if err != nil {
		_ = f.Close()

		return nil, err
	}

	return &Table{id: id, file: f, hdr: hdr}, nil
}

// Open opens an existing index table.
func Open(dir string, id coltypes.IndexTableID) (*Table, error) {
	path := filepath.Join(dir, FileName(id))

	f, created, err := mmapfile.OpenOrCreate(path, int64(headerSize), 0o644)
	if err != nil {
		return nil, fmt.Errorf("indextable: open %s: %w", path, err)
	}

	if created {
		_ = f.Close()

		return nil, fmt.Errorf("indextable: %s does not exist", path)
	}

	hdr, err := decodeHeader(f.Data[:headerSize])
	if err != nil {
		_ = f.Close()

		return nil, fmt.Errorf("indextable: %s: %w", path, err)
	}

	return &Table{id: id, file: f, hdr: hdr}, nil
}

// Close unmaps the table's file.
func (t *Table) Close() error {
	return t.file.Close()
}

// ID returns the table's identity.
func (t *Table) ID() coltypes.IndexTableID {
	return t.id
}

// Path returns the table's backing file path, used by DropIndex to
// remove a fully-drained legacy table.
func (t *Table) Path() string {
	return t.file.Path()
}

// NumEntries returns the number of live entries.
func (t *Table) NumEntries() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.hdr.liveCount
}

// TotalEntries returns the table's fixed capacity in entries.
func (t *Table) TotalEntries() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.hdr.chunkCount * entriesPerChunk
}

// TotalChunks returns the table's fixed capacity in chunks.
func (t *Table) TotalChunks() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.hdr.chunkCount
}

// hashKey computes the 64-bit address used to pick key's home chunk and
// to disambiguate collisions once there. The top 16 bits are the key's
// index prefix verbatim rather than a hash of it, so that draining a
// legacy table during reindex can recover the original prefix straight
// from the chunk index (column.Rebalance shifts it back out); the low
// 48 bits are FNV-1a64 (same hash pkg/slotcache uses for its own bucket
// lookup, lookupKey in cache.go) over the key's suffix, giving chunks
// beyond the first 2^16 something to split on as indexBits grows.
// Address 0 is reserved for the empty sentinel and remapped.
func hashKey(key coltypes.Key) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(key.Suffix())

	suffixHash := h.Sum64()

	addr := uint64(key.IndexPrefix())<<48 | suffixHash>>16
	if addr == 0 {
		return 1
	}

	return addr
}

// chunkIndexLocked takes the top indexBits bits of hash: at indexBits
// 16 that's exactly the key's prefix, so every key sharing a prefix
// collides into one chunk until growth starts drawing on the suffix
// bits below it.
func (t *Table) chunkIndexLocked(hash uint64) uint64 {
	return hash >> (64 - uint64(t.hdr.indexBits))
}

func (t *Table) entryBytesLocked(chunkIndex uint64, subIndex uint8) []byte {
	pos := chunkIndex*entriesPerChunk + uint64(subIndex)
	off := entryOffset(pos)

	return t.file.Data[off : off+entrySize]
}
