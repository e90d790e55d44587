package wal

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/colbase/column-engine/pkg/column/coltypes"
)

// encodeTxn serializes id and actions into a record payload. The format is
// flat binary rather than JSON lines (internal/store's WAL format): every
// action has the same closed shape, so there is nothing a text encoding
// would buy over fixed fields.
func encodeTxn(id uuid.UUID, actions []LogAction) []byte {
	buf := new(bytes.Buffer)
	buf.Write(id[:])

	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(actions)))
	buf.Write(countBuf[:])

	for _, a := range actions {
		buf.WriteByte(byte(a.Kind))

		switch a.Kind {
		case ActionInsertIndex:
			encodeIndexRecord(buf, a.Index)
		case ActionInsertValue:
			encodeValueRecord(buf, a.Value)
		}
	}

	return buf.Bytes()
}

func encodeIndexRecord(buf *bytes.Buffer, r IndexRecord) {
	buf.WriteByte(r.Table.Column)
	buf.WriteByte(r.Table.IndexBits)
	buf.WriteByte(byte(r.Op))
	writeBytes16(buf, r.Key)
	buf.WriteByte(r.Address.Tier)
	writeUint64(buf, r.Address.Offset)

	hasSub := byte(0)
	if r.HasSubIndex {
		hasSub = 1
	}

	buf.WriteByte(hasSub)
	writeUint64(buf, r.SubIndex)
}

func encodeValueRecord(buf *bytes.Buffer, r ValueRecord) {
	buf.WriteByte(r.Table.Column)
	buf.WriteByte(r.Table.Tier)
	buf.WriteByte(byte(r.Op))
	writeUint64(buf, r.Offset)
	writeBytes16(buf, r.Key)
	writeBytes32(buf, r.Payload)
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeBytes16(buf *bytes.Buffer, b []byte) {
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(b)))
	buf.Write(lenBuf[:])
	buf.Write(b)
}

func writeBytes32(buf *bytes.Buffer, b []byte) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	buf.Write(lenBuf[:])
	buf.Write(b)
}

// decodeTxn is the inverse of encodeTxn. It returns ErrCorrupt-wrapped
// errors on any shape mismatch rather than panicking, since payload comes
// from disk.
func decodeTxn(payload []byte) (uuid.UUID, []LogAction, error) {
	r := &byteReader{buf: payload}

	var id uuid.UUID

	idBytes, err := r.take(16)
	if err != nil {
		return uuid.UUID{}, nil, fmt.Errorf("%w: txn id: %w", ErrCorrupt, err)
	}

	copy(id[:], idBytes)

	count, err := r.uint32()
	if err != nil {
		return uuid.UUID{}, nil, fmt.Errorf("%w: action count: %w", ErrCorrupt, err)
	}

	actions := make([]LogAction, 0, count)

	for i := uint32(0); i < count; i++ {
		kindByte, err := r.byte()
		if err != nil {
			return uuid.UUID{}, nil, fmt.Errorf("%w: action %d kind: %w", ErrCorrupt, i, err)
		}

		kind := ActionKind(kindByte)

		var action LogAction

		action.Kind = kind

		switch kind {
		case ActionInsertIndex:
			action.Index, err = decodeIndexRecord(r)
		case ActionInsertValue:
			action.Value, err = decodeValueRecord(r)
		default:
			err = fmt.Errorf("%w: action %d: unknown kind %d", ErrCorrupt, i, kindByte)
		}

		if err != nil {
			return uuid.UUID{}, nil, err
		}

		actions = append(actions, action)
	}

	if !r.exhausted() {
		return uuid.UUID{}, nil, fmt.Errorf("%w: trailing bytes after %d actions", ErrCorrupt, count)
	}

	return id, actions, nil
}

func decodeIndexRecord(r *byteReader) (IndexRecord, error) {
	var rec IndexRecord

	column, err := r.byte()
	if err != nil {
		return rec, fmt.Errorf("%w: index column: %w", ErrCorrupt, err)
	}

	bits, err := r.byte()
	if err != nil {
		return rec, fmt.Errorf("%w: index bits: %w", ErrCorrupt, err)
	}

	op, err := r.byte()
	if err != nil {
		return rec, fmt.Errorf("%w: index op: %w", ErrCorrupt, err)
	}

	key, err := r.bytes16()
	if err != nil {
		return rec, fmt.Errorf("%w: index key: %w", ErrCorrupt, err)
	}

	tier, err := r.byte()
	if err != nil {
		return rec, fmt.Errorf("%w: index address tier: %w", ErrCorrupt, err)
	}

	offset, err := r.uint64()
	if err != nil {
		return rec, fmt.Errorf("%w: index address offset: %w", ErrCorrupt, err)
	}

	hasSub, err := r.byte()
	if err != nil {
		return rec, fmt.Errorf("%w: index has_sub: %w", ErrCorrupt, err)
	}

	subIndex, err := r.uint64()
	if err != nil {
		return rec, fmt.Errorf("%w: index sub_index: %w", ErrCorrupt, err)
	}

	rec.Table = coltypes.IndexTableID{Column: column, IndexBits: bits}
	rec.Op = IndexOp(op)
	rec.Key = coltypes.Key(key)
	rec.Address = coltypes.Address{Tier: tier, Offset: offset}
	rec.HasSubIndex = hasSub != 0
	rec.SubIndex = subIndex

	return rec, nil
}

func decodeValueRecord(r *byteReader) (ValueRecord, error) {
	var rec ValueRecord

	column, err := r.byte()
	if err != nil {
		return rec, fmt.Errorf("%w: value column: %w", ErrCorrupt, err)
	}

	tier, err := r.byte()
	if err != nil {
		return rec, fmt.Errorf("%w: value tier: %w", ErrCorrupt, err)
	}

	op, err := r.byte()
	if err != nil {
		return rec, fmt.Errorf("%w: value op: %w", ErrCorrupt, err)
	}

	offset, err := r.uint64()
	if err != nil {
		return rec, fmt.Errorf("%w: value offset: %w", ErrCorrupt, err)
	}

	key, err := r.bytes16()
	if err != nil {
		return rec, fmt.Errorf("%w: value key: %w", ErrCorrupt, err)
	}

	payload, err := r.bytes32()
	if err != nil {
		return rec, fmt.Errorf("%w: value payload: %w", ErrCorrupt, err)
	}

	rec.Table = coltypes.ValueTableID{Column: column, Tier: tier}
	rec.Op = ValueOp(op)
	rec.Offset = offset
	rec.Key = coltypes.Key(key)
	rec.Payload = payload

	return rec, nil
}

// byteReader is a minimal cursor over a decode buffer, kept private to
// this file since no other package needs to parse log payloads directly.
type byteReader struct {
	buf []byte
	pos int
}

func (r *byteReader) exhausted() bool {
	return r.pos == len(r.buf)
}

func (r *byteReader) take(n int) ([]byte, error) {
	if r.pos+n > len(r.buf) {
		return nil, fmt.Errorf("short read: want %d have %d", n, len(r.buf)-r.pos)
	}

	b := r.buf[r.pos : r.pos+n]
	r.pos += n

	return b, nil
}

func (r *byteReader) byte() (byte, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}

	return b[0], nil
}

func (r *byteReader) uint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(b), nil
}

func (r *byteReader) uint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint64(b), nil
}

func (r *byteReader) bytes16() ([]byte, error) {
	n, err := r.take(2)
	if err != nil {
		return nil, err
	}

	length := binary.LittleEndian.Uint16(n)

	return r.take(int(length))
}

func (r *byteReader) bytes32() ([]byte, error) {
	n, err := r.take(4)
	if err != nil {
		return nil, err
	}

	length := binary.LittleEndian.Uint32(n)
	if length == 0 {
		return nil, nil
	}

	return r.take(int(length))
}
