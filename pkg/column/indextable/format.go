package indextable

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// entriesPerChunk is the fixed fan-out of entries probed linearly within
// one chunk (the unit of collision resolution), matching the
// bucket-array-of-fixed-stride shape pkg/slotcache uses for its own
// bucket table, scoped per chunk instead of globally.
const entriesPerChunk = 8

// EntriesPerChunk is the fan-out callers outside the package need to
// know to interpret the sub_index returned by Get and WriteInsertPlan.
const EntriesPerChunk = entriesPerChunk

// Header layout, little-endian fixed offsets, same style as slc1Header:
// magic, version, identity fields, a trailing CRC32-C.
const (
	magic      = "IDXT"
	version    = 1
	headerSize = 64

	offMagic      = 0
	offVersion    = 4
	offIndexBits  = 5
	offEntriesPer = 6
	offChunkCount = 8
	offLiveCount  = 16
	offCRC        = 24
)

// entrySize is (partial_key_hash uint64, size_tier uint8, offset uint64).
const entrySize = 8 + 1 + 8

const (
	entryOffHash   = 0
	entryOffTier   = 8
	entryOffOffset = 9
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

type header struct {
	indexBits  uint8
	chunkCount uint64
	liveCount  uint64
}

func newHeader(indexBits uint8) header {
	// chunkCount spans indexBits bits exactly: chunkIndexLocked selects a
	// chunk by the top indexBits bits of a 64-bit key address, and
	// column.Rebalance inverts that (chunkIndex >> (indexBits-16)) to
	// recover a drained key's 16-bit prefix, so the two must agree on
	// what a "chunk index" counts. entriesPerChunk is a separate,
	// independent fan-out of collision slots stored behind each chunk.
	chunkCount := uint64(1) << uint(indexBits)

	return header{indexBits: indexBits, chunkCount: chunkCount}
}

func encodeHeader(buf []byte, h header) {
	copy(buf[offMagic:], magic)
	buf[offVersion] = version
	buf[offIndexBits] = h.indexBits
	buf[offEntriesPer] = entriesPerChunk
	binary.LittleEndian.PutUint64(buf[offChunkCount:], h.chunkCount)
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

	if buf[offEntriesPer] != entriesPerChunk {
		return header{}, fmt.Errorf("%w: entries_per_chunk mismatch", ErrCorrupt)
	}

	checksum := crc32.Checksum(buf[:offCRC], crcTable)

	stored := binary.LittleEndian.Uint32(buf[offCRC:])
	if checksum != stored {
		return header{}, fmt.Errorf("%w: header checksum mismatch", ErrCorrupt)
	}

	return header{
		indexBits:  buf[offIndexBits],
		chunkCount: binary.LittleEndian.Uint64(buf[offChunkCount:]),
		liveCount:  binary.LittleEndian.Uint64(buf[offLiveCount:]),
	}, nil
}

func entryOffset(globalPos uint64) int64 {
	return int64(headerSize) + int64(globalPos)*entrySize
}

func decodeEntry(buf []byte) Entry {
	return Entry{
		Hash:   binary.LittleEndian.Uint64(buf[entryOffHash:]),
		Tier:   buf[entryOffTier],
		Offset: binary.LittleEndian.Uint64(buf[entryOffOffset:]),
	}
}

func encodeEntry(buf []byte, e Entry) {
	binary.LittleEndian.PutUint64(buf[entryOffHash:], e.Hash)
	buf[entryOffTier] = e.Tier
	binary.LittleEndian.PutUint64(buf[entryOffOffset:], e.Offset)
}

func clearEntry(buf []byte) {
	for i := range buf[:entrySize] {
		buf[i] = 0
	}
}
