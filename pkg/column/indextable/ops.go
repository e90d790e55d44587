package indextable

import (
	"fmt"

	"github.com/colbase/column-engine/pkg/column/coltypes"
	"github.com/colbase/column-engine/pkg/wal"
)

// Get probes the key's home chunk starting at subIndex, returning the
// first non-empty entry whose hash matches key's hash at or after that
// position, and the sub_index it was found at. found is false once the
// chunk is exhausted; the returned sub_index is then entriesPerChunk, a
// value callers should treat as "stop probing" rather than resume at.
func (t *Table) Get(key coltypes.Key, subIndex uint8, overlays wal.LogOverlays) (Entry, uint8, bool, error) {
	if subIndex > entriesPerChunk {
		return Entry{}, entriesPerChunk, false, fmt.Errorf("%w: %d", ErrSubIndexOutOfRange, subIndex)
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	hash := hashKey(key)
	chunkIndex := t.chunkIndexLocked(hash)

	overlay := indexOverlayForChunk(overlays, t.id, chunkIndex)

	for pos := subIndex; pos < entriesPerChunk; pos++ {
		entry, empty := t.effectiveEntryLocked(chunkIndex, pos, overlay)
		if !empty && entry.Hash == hash {
			return entry, pos, true, nil
		}
	}

	return Entry{}, entriesPerChunk, false, nil
}

// effectiveEntryLocked returns the entry at (chunkIndex, pos) after
// applying any overlay record staged for that exact slot, newest last in
// overlay winning. Callers must hold t.mu (read lock suffices).
func (t *Table) effectiveEntryLocked(chunkIndex uint64, pos uint8, overlay []wal.IndexRecord) (Entry, bool) {
	entry := decodeEntry(t.entryBytesLocked(chunkIndex, pos))

	for _, rec := range overlay {
		if uint8(rec.SubIndex%entriesPerChunk) != pos {
			continue
		}

		switch rec.Op {
		case wal.IndexInsert:
			entry = Entry{Hash: hashKey(rec.Key), Tier: rec.Address.Tier, Offset: rec.Address.Offset}
		case wal.IndexRemove:
			entry = Entry{}
		}
	}

	return entry, entry.IsEmpty()
}

func indexOverlayForChunk(overlays wal.LogOverlays, id coltypes.IndexTableID, chunkIndex uint64) []wal.IndexRecord {
	if overlays == nil {
		return nil
	}

	var out []wal.IndexRecord

	for _, rec := range overlays.IndexOverlay(id) {
		if rec.SubIndex/entriesPerChunk == chunkIndex {
			out = append(out, rec)
		}
	}

	return out
}

// WriteInsertPlan stages an insert of (key, address) into txn. Without
// an explicit subIndex it finds the first sub-slot in the key's home
// chunk that is empty once pending overlay records are accounted for;
// with one, it overwrites that exact slot (used for tier migration).
// Returns NeedRebalance when no empty slot exists in the chunk.
func (t *Table) WriteInsertPlan(key coltypes.Key, address coltypes.Address, subIndex *uint8, txn wal.Txn, overlays wal.LogOverlays) (coltypes.PlanOutcome, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	hash := hashKey(key)
	chunkIndex := t.chunkIndexLocked(hash)

	var (
		pos   uint8
		found bool
	)

	if subIndex != nil {
		pos = *subIndex
		found = true
	} else {
		overlay := indexOverlayForChunk(overlays, t.id, chunkIndex)

		for candidate := uint8(0); candidate < entriesPerChunk; candidate++ {
			_, empty := t.effectiveEntryLocked(chunkIndex, candidate, overlay)
			if empty {
				pos = candidate
				found = true

				break
			}
		}
	}

	if !found {
		return coltypes.NeedRebalance, nil
	}

	globalSubIndex := chunkIndex*entriesPerChunk + uint64(pos)

	txn.Stage(wal.LogAction{
		Kind: wal.ActionInsertIndex,
		Index: wal.IndexRecord{
			Table:       t.id,
			Op:          wal.IndexInsert,
			Key:         append(coltypes.Key(nil), key...),
			Address:     address,
			SubIndex:    globalSubIndex,
			HasSubIndex: subIndex != nil,
		},
	})

	return coltypes.Written, nil
}

// WriteRemovePlan stages freeing the named sub-slot in key's home chunk.
func (t *Table) WriteRemovePlan(key coltypes.Key, subIndex uint8, txn wal.Txn) error {
	t.mu.RLock()
	chunkIndex := t.chunkIndexLocked(hashKey(key))
	t.mu.RUnlock()

	txn.Stage(wal.LogAction{
		Kind: wal.ActionInsertIndex,
		Index: wal.IndexRecord{
			Table:    t.id,
			Op:       wal.IndexRemove,
			Key:      append(coltypes.Key(nil), key...),
			SubIndex: chunkIndex*entriesPerChunk + uint64(subIndex),
		},
	})

	return nil
}

// EnactPlan applies a durably committed index record. Idempotent: an
// insert re-applied with identical content, or a remove re-applied to an
// already-empty slot, is a no-op.
func (t *Table) EnactPlan(rec wal.IndexRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if rec.SubIndex/entriesPerChunk >= t.hdr.chunkCount {
		return fmt.Errorf("%w: sub_index %d", ErrChunkOutOfRange, rec.SubIndex)
	}

	chunkIndex := rec.SubIndex / entriesPerChunk
	pos := uint8(rec.SubIndex % entriesPerChunk)
	buf := t.entryBytesLocked(chunkIndex, pos)
	current := decodeEntry(buf)

	switch rec.Op {
	case wal.IndexInsert:
		next := Entry{Hash: hashKey(rec.Key), Tier: rec.Address.Tier, Offset: rec.Address.Offset}
		if current == next {
			return nil
		}

		wasEmpty := current.IsEmpty()
		encodeEntry(buf, next)

		if wasEmpty {
			t.hdr.liveCount++
		}
	case wal.IndexRemove:
		if current.IsEmpty() {
			return nil
		}

		clearEntry(buf)
		t.hdr.liveCount--
	default:
		return fmt.Errorf("indextable: enact_plan: unknown op %d", rec.Op)
	}

	encodeHeader(t.file.Data[:headerSize], t.hdr)

	return t.file.Sync(0, headerSize)
}

// ValidatePlan checks a staged record against current state without
// mutating it.
func (t *Table) ValidatePlan(rec wal.IndexRecord) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if rec.SubIndex/entriesPerChunk >= t.hdr.chunkCount {
		return fmt.Errorf("%w: sub_index %d", ErrChunkOutOfRange, rec.SubIndex)
	}

	return nil
}

// RawEntries reads a whole chunk with no log overlay, used only by
// reindex of frozen legacy tables.
func (t *Table) RawEntries(chunkIndex uint64) ([]Entry, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if chunkIndex >= t.hdr.chunkCount {
		return nil, fmt.Errorf("%w: %d", ErrChunkOutOfRange, chunkIndex)
	}

	out := make([]Entry, entriesPerChunk)
	for pos := uint8(0); pos < entriesPerChunk; pos++ {
		out[pos] = decodeEntry(t.entryBytesLocked(chunkIndex, pos))
	}

	return out, nil
}
