package valuetable

import (
	"fmt"

	"github.com/colbase/column-engine/pkg/column/coltypes"
	"github.com/colbase/column-engine/pkg/wal"
)

// Get returns the payload at offset iff its stored key suffix matches
// key's suffix and the record is not shadowed by a pending remove in
// overlays.
func (t *Table) Get(key coltypes.Key, offset uint64, overlays wal.LogOverlays) ([]byte, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.overlayRemovesLocked(offset, overlays) {
		return nil, false, nil
	}

	live, storedKey, payload, err := t.readLiveLocked(offset)
	if err != nil {
		return nil, false, err
	}

	if !live || !keyEquals(storedKey, key.Suffix()) {
		return nil, false, nil
	}

	out := make([]byte, len(payload))
	copy(out, payload)

	return out, true, nil
}

// HasKeyAt reports whether the record at offset currently stores key,
// without returning its payload.
func (t *Table) HasKeyAt(key coltypes.Key, offset uint64, overlays wal.LogOverlays) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.overlayRemovesLocked(offset, overlays) {
		return false, nil
	}

	live, storedKey, _, err := t.readLiveLocked(offset)
	if err != nil {
		return false, err
	}

	return live && keyEquals(storedKey, key.Suffix()), nil
}

// PartialKeyAt returns the key suffix stored at offset, honoring
// overlays the way Get does.
func (t *Table) PartialKeyAt(offset uint64, overlays wal.LogOverlays) (coltypes.Key, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.overlayRemovesLocked(offset, overlays) {
		return nil, false, nil
	}

	live, storedKey, _, err := t.readLiveLocked(offset)
	if err != nil {
		return nil, false, err
	}

	if !live {
		return nil, false, nil
	}

	out := make(coltypes.Key, len(storedKey))
	copy(out, storedKey)

	return out, true, nil
}

// RawPartialKeyAt reads the key suffix at offset with no overlay
// consideration, used only by reindex of frozen legacy tables.
func (t *Table) RawPartialKeyAt(offset uint64) (coltypes.Key, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	live, storedKey, _, err := t.readLiveLocked(offset)
	if err != nil {
		return nil, false, err
	}

	if !live {
		return nil, false, nil
	}

	out := make(coltypes.Key, len(storedKey))
	copy(out, storedKey)

	return out, true, nil
}

func (t *Table) readLiveLocked(offset uint64) (live bool, key []byte, payload []byte, err error) {
	if t.id.Tier == coltypes.BlobTier {
		if offset+4 > uint64(t.hdr.highWater) {
			return false, nil, nil, fmt.Errorf("%w: offset %d", ErrOffsetOutOfRange, offset)
		}

		rec := t.blobRecordLocked(offset, int64(t.hdr.highWater)-int64(offset))
		if !blobIsLive(rec) {
			return false, nil, nil, nil
		}

		return true, blobKey(rec), blobPayload(rec), nil
	}

	slot := offset
	if slot >= t.hdr.highWater {
		return false, nil, nil, fmt.Errorf("%w: slot %d", ErrOffsetOutOfRange, slot)
	}

	rec := t.slabRecordLocked(slot)
	if !slabIsLive(rec) {
		return false, nil, nil, nil
	}

	return true, slabKey(rec), slabPayload(rec), nil
}

func (t *Table) overlayRemovesLocked(offset uint64, overlays wal.LogOverlays) bool {
	if overlays == nil {
		return false
	}

	for _, rec := range overlays.ValueOverlay(t.id) {
		if rec.Offset == offset && rec.Op == wal.ValueRemove {
			return true
		}
	}

	return false
}

func keyEquals(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}

// WriteInsertPlan reserves a fresh slot for (key, val), stages the
// insert into txn, and returns the offset the value will occupy once
// enacted. The reservation is made immediately (in memory only) so
// concurrent plan production never hands out the same slot twice.
func (t *Table) WriteInsertPlan(key coltypes.Key, val []byte, txn wal.Txn) (uint64, error) {
	suffix := key.Suffix()
	if len(suffix) > maxKeySuffixLen {
		return 0, fmt.Errorf("%w: %d bytes", ErrKeyTooLong, len(suffix))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var offset uint64

	var err error

	if t.id.Tier == coltypes.BlobTier {
		offset, err = t.reserveBlobLocked(blobRecordSize(len(suffix), len(val)))
	} else {
		offset, err = t.reserveSlotLocked()
	}

	if err != nil {
		return 0, err
	}

	txn.Stage(wal.LogAction{
		Kind: wal.ActionInsertValue,
		Value: wal.ValueRecord{
			Table:   t.id,
			Op:      wal.ValueInsert,
			Offset:  offset,
			Key:     append(coltypes.Key(nil), suffix...),
			Payload: append([]byte(nil), val...),
		},
	})

	return offset, nil
}

// WriteReplacePlan stages an in-place content overwrite at offset (same
// tier, same slot).
func (t *Table) WriteReplacePlan(offset uint64, key coltypes.Key, val []byte, txn wal.Txn) error {
	suffix := key.Suffix()
	if len(suffix) > maxKeySuffixLen {
		return fmt.Errorf("%w: %d bytes", ErrKeyTooLong, len(suffix))
	}

	txn.Stage(wal.LogAction{
		Kind: wal.ActionInsertValue,
		Value: wal.ValueRecord{
			Table:   t.id,
			Op:      wal.ValueReplace,
			Offset:  offset,
			Key:     append(coltypes.Key(nil), suffix...),
			Payload: append([]byte(nil), val...),
		},
	})

	return nil
}

// WriteRemovePlan stages freeing the record at offset. The slot is pushed
// onto the free list when the remove is enacted (tiers 0..14 only).
func (t *Table) WriteRemovePlan(offset uint64, txn wal.Txn) error {
	txn.Stage(wal.LogAction{
		Kind: wal.ActionInsertValue,
		Value: wal.ValueRecord{
			Table:  t.id,
			Op:     wal.ValueRemove,
			Offset: offset,
		},
	})

	return nil
}

// EnactPlan applies a durably committed value record to the mapped
// file. It is idempotent: re-applying an already-enacted record is a
// no-op.
func (t *Table) EnactPlan(rec wal.ValueRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch rec.Op {
	case wal.ValueInsert:
		return t.enactInsertLocked(rec)
	case wal.ValueReplace:
		return t.enactReplaceLocked(rec)
	case wal.ValueRemove:
		return t.enactRemoveLocked(rec)
	default:
		return fmt.Errorf("valuetable: enact_plan: unknown op %d", rec.Op)
	}
}

func (t *Table) enactInsertLocked(rec wal.ValueRecord) error {
	if t.id.Tier == coltypes.BlobTier {
		size := blobRecordSize(len(rec.Key), len(rec.Payload))

		err := t.ensureBlobCapacityLocked(size)
		if err != nil {
			return err
		}

		if rec.Offset >= t.hdr.highWater {
			t.hdr.highWater = rec.Offset + uint64(size)
		}

		blobRec := t.blobRecordLocked(rec.Offset, size)
		if blobIsLive(blobRec) {
			return nil // already enacted
		}

		blobWriteLive(blobRec, rec.Key, rec.Payload)
		t.hdr.liveCount++

		return t.persistHeaderLocked()
	}

	err := t.ensureSlabCapacityLocked()
	if err != nil {
		return err
	}

	slabRec := t.slabRecordLocked(rec.Offset)
	if slabIsLive(slabRec) {
		return nil // already enacted
	}

	t.accountForOffsetLocked(rec.Offset)
	slabWriteLive(slabRec, rec.Key, rec.Payload)
	t.hdr.liveCount++

	return t.persistHeaderLocked()
}

func (t *Table) enactReplaceLocked(rec wal.ValueRecord) error {
	if t.id.Tier == coltypes.BlobTier {
		return fmt.Errorf("valuetable: replace not supported on blob tier")
	}

	slabRec := t.slabRecordLocked(rec.Offset)
	slabWriteLive(slabRec, rec.Key, rec.Payload)

	return nil
}

func (t *Table) enactRemoveLocked(rec wal.ValueRecord) error {
	if t.id.Tier == coltypes.BlobTier {
		blobRec := t.blobRecordLocked(rec.Offset, int64(t.hdr.highWater)-int64(rec.Offset))
		if !blobIsLive(blobRec) {
			return nil // already enacted
		}

		blobMarkFree(blobRec)
		t.hdr.liveCount--

		return t.persistHeaderLocked()
	}

	slabRec := t.slabRecordLocked(rec.Offset)
	if !slabIsLive(slabRec) {
		return nil // already enacted
	}

	slabMarkFree(slabRec, t.hdr.freeListHead)
	t.hdr.freeListHead = rec.Offset
	t.hdr.liveCount--

	return t.persistHeaderLocked()
}

// ValidatePlan checks that a staged record is consistent with the
// table's current state, without mutating anything.
func (t *Table) ValidatePlan(rec wal.ValueRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch rec.Op {
	case wal.ValueInsert:
		if t.id.Tier != coltypes.BlobTier && rec.Offset > t.hdr.highWater {
			return fmt.Errorf("%w: insert offset %d beyond high water %d", ErrOffsetOutOfRange, rec.Offset, t.hdr.highWater)
		}

		return nil
	case wal.ValueReplace, wal.ValueRemove:
		if t.id.Tier != coltypes.BlobTier && rec.Offset >= t.hdr.highWater {
			return fmt.Errorf("%w: offset %d", ErrOffsetOutOfRange, rec.Offset)
		}

		return nil
	default:
		return fmt.Errorf("valuetable: validate_plan: unknown op %d", rec.Op)
	}
}

// CompletePlan flushes the table to disk at the end of a batch.
func (t *Table) CompletePlan() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.file.Sync(0, len(t.file.Data))
}
