package valuetable

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/colbase/column-engine/pkg/column/coltypes"
)

// Header layout, little-endian, fixed offsets — same shape as slc1Header:
// magic, version, a handful of mutable counters, and a trailing CRC32-C
// over everything before it.
const (
	magic      = "VALT"
	version    = 1
	headerSize = 64

	offMagic        = 0
	offVersion      = 4
	offTier         = 5
	offRecordSize   = 8
	offCapacity     = 12
	offHighWater    = 20
	offFreeListHead = 28
	offLiveCount    = 36
	offCRC          = 44
)

// noFree marks an empty free list / absence of a next pointer.
const noFree = ^uint64(0)

// recordHeaderSize is the fixed prefix every slab record carries ahead of
// its key suffix and payload: live flag, free-list next pointer (reused
// as scratch space only while the slot is free), key length, payload
// length.
const recordHeaderSize = 1 + 8 + 2 + 4

// maxKeySuffixLen bounds the key suffix (the key minus its 2-byte index
// prefix) a slab record can store. Spec keys are "typically 32 bytes",
// so 30 bytes of suffix covers the common case; longer keys are rejected
// at insert time rather than silently truncated.
const maxKeySuffixLen = 30

var crcTable = crc32.MakeTable(crc32.Castagnoli)

type header struct {
	tier         uint8
	recordSize   uint32 // 0 for the blob tier
	capacity     uint64 // slab: allocated slot count; blob: file length
	highWater    uint64 // slab: next never-used slot index; blob: bump offset
	freeListHead uint64
	liveCount    uint64
}

func slotSize(tier uint8) int64 {
	if tier == coltypes.BlobTier {
		return 0
	}

	return int64(recordHeaderSize) + maxKeySuffixLen + int64(coltypes.TierCapacities[tier])
}

func newHeader(tier uint8) header {
	h := header{tier: tier, freeListHead: noFree}
	if tier != coltypes.BlobTier {
		h.recordSize = uint32(slotSize(tier))
	}

	return h
}

func encodeHeader(buf []byte, h header) {
	copy(buf[offMagic:], magic)
	buf[offVersion] = version
	buf[offTier] = h.tier
	binary.LittleEndian.PutUint32(buf[offRecordSize:], h.recordSize)
	binary.LittleEndian.PutUint64(buf[offCapacity:], h.capacity)
	binary.LittleEndian.PutUint64(buf[offHighWater:], h.highWater)
	binary.LittleEndian.PutUint64(buf[offFreeListHead:], h.freeListHead)
	binary.LittleEndian.PutUint64(buf[offLiveCount:], h.liveCount)

	checksum := crc32.Checksum(buf[:offCRC], crcTable)
	binary.LittleEndian.PutUint32(buf[offCRC:], checksum)
}

func decodeHeader(buf []byte) (header, error) {
	if len(buf) < headerSize {
		return header{}, fmt.Errorf("%w: short header", ErrCorrupt)
	}

	if string(buf[offMagic:offMagic+4]) != magic {
		return header{}, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}

	if buf[offVersion] != version {
		return header{}, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, buf[offVersion])
	}

	checksum := crc32.Checksum(buf[:offCRC], crcTable)

	stored := binary.LittleEndian.Uint32(buf[offCRC:])
	if checksum != stored {
		return header{}, fmt.Errorf("%w: header checksum mismatch", ErrCorrupt)
	}

	return header{
		tier:         buf[offTier],
		recordSize:   binary.LittleEndian.Uint32(buf[offRecordSize:]),
		capacity:     binary.LittleEndian.Uint64(buf[offCapacity:]),
		highWater:    binary.LittleEndian.Uint64(buf[offHighWater:]),
		freeListHead: binary.LittleEndian.Uint64(buf[offFreeListHead:]),
		liveCount:    binary.LittleEndian.Uint64(buf[offLiveCount:]),
	}, nil
}
