package wal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/colbase/column-engine/pkg/column/coltypes"
)

const (
	fileMagic      = "COLWAL01"
	fileHeaderSize = 16 // magic[8] + reserved[8]
	// recordTrailerSize is crc32c(4) + inverted payload length(8) +
	// inverted crc(4), mirroring internal/store's footer shape but
	// applied per record so the log can hold many transactions rather
	// than one trailing commit.
	recordTrailerSize = 16
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// FileLog is the on-disk LogWriter/LogReader/LogOverlays implementation.
// Records are appended sequentially; each carries its own checksum and
// inverted-field trailer so a crash mid-append leaves a detectable torn
// record at the tail rather than corrupting earlier ones.
type FileLog struct {
	mu     sync.Mutex
	file   *os.File
	closed bool

	writeOffset int64
	readOffset  int64

	pendingOrder []uuid.UUID
	pending      map[uuid.UUID][]LogAction
}

// OpenFileLog opens or creates the log at path. A freshly created file
// gets just the format header; an existing file is left as-is for the
// caller to replay via Next before staging new transactions.
func OpenFileLog(path string) (*FileLog, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()

		return nil, fmt.Errorf("wal: stat %s: %w", path, err)
	}

	size := info.Size()

	if size == 0 {
		header := make([]byte, fileHeaderSize)
		copy(header, fileMagic)

		_, err = f.WriteAt(header, 0)
		if err != nil {
			_ = f.Close()

			return nil, fmt.Errorf("wal: write header %s: %w", path, err)
		}

		err = f.Sync()
		if err != nil {
			_ = f.Close()

			return nil, fmt.Errorf("wal: sync header %s: %w", path, err)
		}

		size = fileHeaderSize
	} else {
		header := make([]byte, fileHeaderSize)

		_, err = f.ReadAt(header, 0)
		if err != nil {
			_ = f.Close()

			return nil, fmt.Errorf("wal: read header %s: %w", path, err)
		}

		if string(header[:len(fileMagic)]) != fileMagic {
			_ = f.Close()

			return nil, fmt.Errorf("wal: %s: %w: bad magic", path, ErrCorrupt)
		}
	}

	return &FileLog{
		file:        f,
		writeOffset: size,
		readOffset:  fileHeaderSize,
		pending:     make(map[uuid.UUID][]LogAction),
	}, nil
}

// Close closes the underlying file. Idempotent.
func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}

	l.closed = true

	return l.file.Close()
}

// Begin starts a new transaction.
func (l *FileLog) Begin() (Txn, error) {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()

	if closed {
		return nil, ErrClosed
	}

	return &fileTxn{log: l}, nil
}

// MarkEnacted drops transaction id's actions from the overlay. Safe to
// call more than once for the same id.
func (l *FileLog) MarkEnacted(id uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.pending[id]; !ok {
		return
	}

	delete(l.pending, id)

	for i, pendingID := range l.pendingOrder {
		if pendingID == id {
			l.pendingOrder = append(l.pendingOrder[:i], l.pendingOrder[i+1:]...)

			break
		}
	}
}

// PendingActions returns the actions staged for a still-pending
// transaction id, letting a caller that owns both the log and the
// tables apply enact_plan immediately after Commit without re-deriving
// the action list from the overlay.
func (l *FileLog) PendingActions(id uuid.UUID) []LogAction {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]LogAction(nil), l.pending[id]...)
}

// IndexOverlay implements LogOverlays.
func (l *FileLog) IndexOverlay(table coltypes.IndexTableID) []IndexRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []IndexRecord

	for _, id := range l.pendingOrder {
		for _, action := range l.pending[id] {
			if action.Kind == ActionInsertIndex && action.Index.Table == table {
				out = append(out, action.Index)
			}
		}
	}

	return out
}

// ValueOverlay implements LogOverlays.
func (l *FileLog) ValueOverlay(table coltypes.ValueTableID) []ValueRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []ValueRecord

	for _, id := range l.pendingOrder {
		for _, action := range l.pending[id] {
			if action.Kind == ActionInsertValue && action.Value.Table == table {
				out = append(out, action.Value)
			}
		}
	}

	return out
}

// Next implements LogReader, replaying transactions in commit order
// starting from the last read position. A torn trailing record (a crash
// mid-append) truncates the file to the last good record and ends
// iteration without error; a checksum mismatch on a complete-looking
// record is reported as ErrCorrupt since that indicates damage to an
// already-committed entry rather than an interrupted append.
func (l *FileLog) Next() (uuid.UUID, []LogAction, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	payload, recordLen, torn, err := l.readRecordLocked(l.readOffset)
	if errors.Is(err, io.EOF) {
		return uuid.UUID{}, nil, false, nil
	}

	if err != nil {
		return uuid.UUID{}, nil, false, err
	}

	if torn {
		err = l.file.Truncate(l.readOffset)
		if err != nil {
			return uuid.UUID{}, nil, false, fmt.Errorf("wal: truncate torn tail: %w", err)
		}

		err = l.file.Sync()
		if err != nil {
			return uuid.UUID{}, nil, false, fmt.Errorf("wal: sync after truncate: %w", err)
		}

		l.writeOffset = l.readOffset

		return uuid.UUID{}, nil, false, nil
	}

	id, actions, err := decodeTxn(payload)
	if err != nil {
		return uuid.UUID{}, nil, false, err
	}

	l.readOffset += recordLen
	l.pendingOrder = append(l.pendingOrder, id)
	l.pending[id] = actions

	return id, actions, true, nil
}

// readRecordLocked reads one framed record at offset. It returns
// (nil, 0, false, io.EOF) at a clean end of file and (nil, 0, true, nil)
// when the tail is a partially-written record.
func (l *FileLog) readRecordLocked(offset int64) ([]byte, int64, bool, error) {
	lenBytes, torn, err := readExact(l.file, offset, 8)
	if err != nil {
		return nil, 0, false, err
	}

	if torn {
		return nil, 0, true, nil
	}

	payloadLen := binary.LittleEndian.Uint64(lenBytes)

	payload, torn, err := readExact(l.file, offset+8, int(payloadLen))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, true, nil
		}

		return nil, 0, false, err
	}

	if torn {
		return nil, 0, true, nil
	}

	trailer, torn, err := readExact(l.file, offset+8+int64(payloadLen), recordTrailerSize)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, true, nil
		}

		return nil, 0, false, err
	}

	if torn {
		return nil, 0, true, nil
	}

	storedCRC := binary.LittleEndian.Uint32(trailer[0:4])
	invLen := binary.LittleEndian.Uint64(trailer[4:12])
	invCRC := binary.LittleEndian.Uint32(trailer[12:16])

	if ^payloadLen != invLen || ^storedCRC != invCRC {
		return nil, 0, true, nil
	}

	checksum := crc32.Checksum(payload, crcTable)
	if checksum != storedCRC {
		return nil, 0, false, fmt.Errorf("%w: record at offset %d: checksum mismatch", ErrCorrupt, offset)
	}

	recordLen := int64(8 + payloadLen + recordTrailerSize)

	return payload, recordLen, false, nil
}

// readExact reads exactly n bytes at offset. It distinguishes a clean
// end of file (read==0, torn=false, err=io.EOF) from a partial read at
// the tail (0<read<n, torn=true, err=nil).
func readExact(f *os.File, offset int64, n int) ([]byte, bool, error) {
	if n == 0 {
		return nil, false, nil
	}

	buf := make([]byte, n)

	read, err := f.ReadAt(buf, offset)
	if err != nil {
		if errors.Is(err, io.EOF) {
			if read == 0 {
				return nil, false, io.EOF
			}

			return nil, true, nil
		}

		return nil, false, fmt.Errorf("wal: read at %d: %w", offset, err)
	}

	return buf, false, nil
}

// fileTxn is FileLog's Txn implementation.
type fileTxn struct {
	log     *FileLog
	actions []LogAction
	done    bool
}

func (t *fileTxn) Stage(action LogAction) {
	t.actions = append(t.actions, action)
}

func (t *fileTxn) Discard() {
	t.done = true
	t.actions = nil
}

func (t *fileTxn) Commit() (uuid.UUID, error) {
	if t.done {
		return uuid.UUID{}, errors.New("wal: txn already finished")
	}

	t.done = true

	id := uuid.New()
	payload := encodeTxn(id, t.actions)

	t.log.mu.Lock()
	defer t.log.mu.Unlock()

	if t.log.closed {
		return uuid.UUID{}, ErrClosed
	}

	record := make([]byte, 0, 8+len(payload)+recordTrailerSize)

	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(payload)))
	record = append(record, lenBuf[:]...)
	record = append(record, payload...)

	checksum := crc32.Checksum(payload, crcTable)

	var trailer [recordTrailerSize]byte
	binary.LittleEndian.PutUint32(trailer[0:4], checksum)
	binary.LittleEndian.PutUint64(trailer[4:12], ^uint64(len(payload)))
	binary.LittleEndian.PutUint32(trailer[12:16], ^checksum)
	record = append(record, trailer[:]...)

	_, err := t.log.file.WriteAt(record, t.log.writeOffset)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("wal: append record: %w", err)
	}

	err = t.log.file.Sync()
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("wal: sync after append: %w", err)
	}

	t.log.writeOffset += int64(len(record))
	t.log.pendingOrder = append(t.log.pendingOrder, id)
	t.log.pending[id] = t.actions

	return id, nil
}
