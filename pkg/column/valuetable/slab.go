package valuetable

import "encoding/binary"

// slab record layout: a fixed-size record for tiers 0..14.
//
//	[0]            live flag (0 = free, 1 = live)
//	[1:9]          free-list next pointer, meaningful only while free
//	[9:11]         key suffix length
//	[11:15]        payload length
//	[15:15+30]     key suffix bytes (maxKeySuffixLen)
//	[15+30:...]    payload bytes, up to the tier's capacity
const (
	slabOffLive       = 0
	slabOffFreeNext   = 1
	slabOffKeyLen     = 9
	slabOffPayloadLen = 11
	slabOffKey        = 15
)

func slabPayloadOffset() int {
	return slabOffKey + maxKeySuffixLen
}

func (t *Table) slabRecordLocked(slot uint64) []byte {
	off := slotOffset(slot, t.id.Tier)
	size := slotSize(t.id.Tier)

	return t.file.Data[off : off+size]
}

func slabIsLive(rec []byte) bool {
	return rec[slabOffLive] == 1
}

func slabFreeNext(rec []byte) uint64 {
	return binary.LittleEndian.Uint64(rec[slabOffFreeNext:])
}

func slabSetFreeNext(rec []byte, next uint64) {
	binary.LittleEndian.PutUint64(rec[slabOffFreeNext:], next)
}

func slabKey(rec []byte) []byte {
	keyLen := binary.LittleEndian.Uint16(rec[slabOffKeyLen:])

	return rec[slabOffKey : slabOffKey+int(keyLen)]
}

func slabPayload(rec []byte) []byte {
	payloadLen := binary.LittleEndian.Uint32(rec[slabOffPayloadLen:])
	start := slabPayloadOffset()

	return rec[start : start+int(payloadLen)]
}

func slabWriteLive(rec []byte, key, payload []byte) {
	rec[slabOffLive] = 1
	binary.LittleEndian.PutUint16(rec[slabOffKeyLen:], uint16(len(key)))
	binary.LittleEndian.PutUint32(rec[slabOffPayloadLen:], uint32(len(payload)))
	copy(rec[slabOffKey:slabOffKey+maxKeySuffixLen], key)
	copy(rec[slabPayloadOffset():], payload)
}

func slabMarkFree(rec []byte, next uint64) {
	rec[slabOffLive] = 0
	slabSetFreeNext(rec, next)
}

// reserveSlotLocked pops the free list or extends the high-water mark,
// mutating the in-memory header only; no bytes are written until the
// reservation is enacted. Callers must hold t.mu.
func (t *Table) reserveSlotLocked() (uint64, error) {
	if t.hdr.freeListHead != noFree {
		slot := t.hdr.freeListHead
		t.hdr.freeListHead = slabFreeNext(t.slabRecordLocked(slot))

		return slot, nil
	}

	err := t.ensureSlabCapacityLocked()
	if err != nil {
		return 0, err
	}

	slot := t.hdr.highWater
	t.hdr.highWater++

	return slot, nil
}

// accountForOffsetLocked fast-forwards highWater/freeListHead so offset
// is considered allocated, without touching the record's live flag. In
// the normal synchronous write path this is a no-op because
// reserveSlotLocked already advanced the header during plan production;
// it exists so enacting a replayed, not-yet-applied committed
// transaction after a restart (fresh header loaded from disk) still
// produces consistent bookkeeping for the common append/head-of-freelist
// cases. A non-head free-list slot recovered this way is not relinked.
func (t *Table) accountForOffsetLocked(slot uint64) {
	if t.hdr.freeListHead == slot {
		t.hdr.freeListHead = slabFreeNext(t.slabRecordLocked(slot))
	}

	if slot >= t.hdr.highWater {
		t.hdr.highWater = slot + 1
	}
}

// freeSlotLocked mutates the in-memory free list only, mirroring
// reserveSlotLocked's split between bookkeeping and physical write.
func (t *Table) freeSlotLocked(slot uint64) {
	t.hdr.freeListHead = slot
}
