package valuetable

import "encoding/binary"

// blob record layout: a variable-length record for tier 15, appended at
// the bump offset and never reclaimed.
//
//	[0]          live flag
//	[1:3]        key suffix length
//	[3:3+n]      key suffix bytes
//	[3+n:3+n+4]  payload length
//	[...]        payload bytes
const (
	blobOffLive   = 0
	blobOffKeyLen = 1
	blobOffKey    = 3
)

func blobRecordSize(keyLen, payloadLen int) int64 {
	return int64(blobOffKey+keyLen+4) + int64(payloadLen)
}

func (t *Table) blobRecordLocked(offset uint64, size int64) []byte {
	start := int64(headerSize) + int64(offset)

	return t.file.Data[start : start+size]
}

func blobIsLive(rec []byte) bool {
	return rec[blobOffLive] == 1
}

func blobKeyLen(rec []byte) int {
	return int(binary.LittleEndian.Uint16(rec[blobOffKeyLen:]))
}

func blobKey(rec []byte) []byte {
	n := blobKeyLen(rec)

	return rec[blobOffKey : blobOffKey+n]
}

func blobPayload(rec []byte) []byte {
	n := blobKeyLen(rec)
	lenOff := blobOffKey + n
	payloadLen := binary.LittleEndian.Uint32(rec[lenOff:])
	start := lenOff + 4

	return rec[start : start+int(payloadLen)]
}

func blobWriteLive(rec []byte, key, payload []byte) {
	rec[blobOffLive] = 1
	binary.LittleEndian.PutUint16(rec[blobOffKeyLen:], uint16(len(key)))
	copy(rec[blobOffKey:], key)

	lenOff := blobOffKey + len(key)
	binary.LittleEndian.PutUint32(rec[lenOff:], uint32(len(payload)))
	copy(rec[lenOff+4:], payload)
}

func blobMarkFree(rec []byte) {
	rec[blobOffLive] = 0
}

// reserveBlobLocked bumps the blob allocator for a record of the given
// size and returns the offset the record will occupy. Callers must hold
// t.mu.
func (t *Table) reserveBlobLocked(size int64) (uint64, error) {
	err := t.ensureBlobCapacityLocked(size)
	if err != nil {
		return 0, err
	}

	offset := t.hdr.highWater
	t.hdr.highWater += uint64(size)

	return offset, nil
}
