package wal_test

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/colbase/column-engine/pkg/column/coltypes"
	"github.com/colbase/column-engine/pkg/wal"
)

func Test_Commit_Then_Reopen_Replays_Transaction_In_Order(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "col0.wal")

	log, err := wal.OpenFileLog(path)
	if err != nil {
		t.Fatalf("OpenFileLog failed: %v", err)
	}

	tableID := coltypes.IndexTableID{Column: 3, IndexBits: 16}

	txn, err := log.Begin()
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	txn.Stage(wal.LogAction{
		Kind: wal.ActionInsertIndex,
		Index: wal.IndexRecord{
			Table:   tableID,
			Op:      wal.IndexInsert,
			Key:     coltypes.Key{0xAA, 0xBB, 0x01, 0x02},
			Address: coltypes.Address{Tier: 2, Offset: 128},
		},
	})

	id, err := txn.Commit()
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if id.String() == "" {
		t.Fatalf("Commit returned zero id")
	}

	overlay := log.IndexOverlay(tableID)
	if len(overlay) != 1 {
		t.Fatalf("IndexOverlay before close: got %d records, want 1", len(overlay))
	}

	err = log.Close()
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := wal.OpenFileLog(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	gotID, actions, ok, err := reopened.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}

	if !ok {
		t.Fatalf("Next returned ok=false, want a replayed transaction")
	}

	if gotID != id {
		t.Fatalf("Next id mismatch: got %s want %s", gotID, id)
	}

	if len(actions) != 1 || actions[0].Index.Table != tableID {
		t.Fatalf("Next actions mismatch: got %+v", actions)
	}

	_, _, ok, err = reopened.Next()
	if err != nil {
		t.Fatalf("second Next failed: %v", err)
	}

	if ok {
		t.Fatalf("second Next returned ok=true, want end of log")
	}
}

func Test_MarkEnacted_Removes_Transaction_From_Overlay(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "col0.wal")

	log, err := wal.OpenFileLog(path)
	if err != nil {
		t.Fatalf("OpenFileLog failed: %v", err)
	}
	defer func() { _ = log.Close() }()

	tableID := coltypes.ValueTableID{Column: 1, Tier: 4}

	txn, err := log.Begin()
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	txn.Stage(wal.LogAction{
		Kind: wal.ActionInsertValue,
		Value: wal.ValueRecord{
			Table:   tableID,
			Op:      wal.ValueInsert,
			Key:     coltypes.Key{0x01, 0x02},
			Payload: []byte("hello"),
		},
	})

	id, err := txn.Commit()
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if len(log.ValueOverlay(tableID)) != 1 {
		t.Fatalf("expected one pending overlay record before MarkEnacted")
	}

	log.MarkEnacted(id)

	if len(log.ValueOverlay(tableID)) != 0 {
		t.Fatalf("expected overlay cleared after MarkEnacted")
	}
}

func Test_Discard_Does_Not_Append_A_Record(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "col0.wal")

	log, err := wal.OpenFileLog(path)
	if err != nil {
		t.Fatalf("OpenFileLog failed: %v", err)
	}
	defer func() { _ = log.Close() }()

	txn, err := log.Begin()
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	txn.Stage(wal.LogAction{Kind: wal.ActionInsertValue})
	txn.Discard()

	_, _, ok, err := log.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}

	if ok {
		t.Fatalf("Next returned a transaction after Discard, want none")
	}
}

func Test_Reopen_After_Torn_Trailing_Write_Truncates_And_Keeps_Earlier_Records(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "col0.wal")

	log, err := wal.OpenFileLog(path)
	if err != nil {
		t.Fatalf("OpenFileLog failed: %v", err)
	}

	txn, err := log.Begin()
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	txn.Stage(wal.LogAction{
		Kind: wal.ActionInsertIndex,
		Index: wal.IndexRecord{
			Table: coltypes.IndexTableID{Column: 0, IndexBits: 16},
			Op:    wal.IndexInsert,
			Key:   coltypes.Key{0x00, 0x01},
		},
	})

	goodID, err := txn.Commit()
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	err = log.Close()
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0)
	if err != nil {
		t.Fatalf("open for corruption failed: %v", err)
	}

	_, err = f.Write([]byte{0x01, 0x02, 0x03})
	if err != nil {
		t.Fatalf("append torn bytes failed: %v", err)
	}

	err = f.Close()
	if err != nil {
		t.Fatalf("close after corruption failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}

	tornSize := info.Size()

	reopened, err := wal.OpenFileLog(path)
	if err != nil {
		t.Fatalf("reopen after torn tail failed: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	gotID, _, ok, err := reopened.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}

	if !ok || gotID != goodID {
		t.Fatalf("expected the earlier good record to replay, got id=%s ok=%v", gotID, ok)
	}

	_, _, ok, err = reopened.Next()
	if err != nil {
		t.Fatalf("second Next failed: %v", err)
	}

	if ok {
		t.Fatalf("expected no second record after torn tail truncation")
	}

	info, err = os.Stat(path)
	if err != nil {
		t.Fatalf("stat after truncation failed: %v", err)
	}

	if info.Size() >= tornSize {
		t.Fatalf("expected file to shrink after torn-tail truncation: before=%d after=%d", tornSize, info.Size())
	}
}

func Test_Next_Reports_ErrCorrupt_On_Checksum_Mismatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "col0.wal")

	log, err := wal.OpenFileLog(path)
	if err != nil {
		t.Fatalf("OpenFileLog failed: %v", err)
	}

	txn, err := log.Begin()
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	txn.Stage(wal.LogAction{
		Kind: wal.ActionInsertValue,
		Value: wal.ValueRecord{
			Table:   coltypes.ValueTableID{Column: 0, Tier: 0},
			Op:      wal.ValueInsert,
			Key:     coltypes.Key{0x00, 0x01},
			Payload: []byte("payload"),
		},
	})

	_, err = txn.Commit()
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	err = log.Close()
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Flip a byte inside the payload region without touching the
	// length/trailer fields, producing a checksum mismatch on an
	// otherwise complete-looking record.
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("open for corruption failed: %v", err)
	}

	buf := make([]byte, 1)

	_, err = f.ReadAt(buf, 40)
	if err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("read byte to corrupt failed: %v", err)
	}

	buf[0] ^= 0xFF

	_, err = f.WriteAt(buf, 40)
	if err != nil {
		t.Fatalf("write corrupted byte failed: %v", err)
	}

	err = f.Close()
	if err != nil {
		t.Fatalf("close after corruption failed: %v", err)
	}

	reopened, err := wal.OpenFileLog(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	_, _, _, err = reopened.Next()
	if !errors.Is(err, wal.ErrCorrupt) {
		t.Fatalf("Next error mismatch: got %v want %v", err, wal.ErrCorrupt)
	}
}
