package valuetable_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/colbase/column-engine/pkg/column/coltypes"
	"github.com/colbase/column-engine/pkg/column/valuetable"
	"github.com/colbase/column-engine/pkg/wal"
)

func openTier(t *testing.T, tier uint8) *valuetable.Table {
	t.Helper()

	dir := t.TempDir()

	table, err := valuetable.Open(dir, coltypes.ValueTableID{Column: 0, Tier: tier})
	require.NoError(t, err)

	t.Cleanup(func() { _ = table.Close() })

	return table
}

func stageAndEnact(t *testing.T, log *wal.FileLog, table *valuetable.Table, action func(txn wal.Txn) error) {
	t.Helper()

	txn, err := log.Begin()
	require.NoError(t, err)

	require.NoError(t, action(txn))

	id, err := txn.Commit()
	require.NoError(t, err)

	for _, rec := range log.ValueOverlay(table.ID()) {
		require.NoError(t, table.EnactPlan(rec))
	}

	log.MarkEnacted(id)
}

func openLog(t *testing.T) *wal.FileLog {
	t.Helper()

	dir := t.TempDir()

	log, err := wal.OpenFileLog(dir + "/test.wal")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	return log
}

func Test_Insert_Then_Get_Roundtrips_Small_Value(t *testing.T) {
	t.Parallel()

	table := openTier(t, 0)
	log := openLog(t)

	key := coltypes.Key{0x11, 0x22, 0x01, 0x02, 0x03}

	var offset uint64

	stageAndEnact(t, log, table, func(txn wal.Txn) error {
		var err error
		offset, err = table.WriteInsertPlan(key, []byte("hello"), txn)

		return err
	})

	got, ok, err := table.Get(key, offset, log)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("hello"), got)
}

func Test_Remove_Then_Get_Returns_Absent_And_Slot_Is_Reused(t *testing.T) {
	t.Parallel()

	table := openTier(t, 0)
	log := openLog(t)

	key := coltypes.Key{0x00, 0x01, 0xAA}

	var offset uint64

	stageAndEnact(t, log, table, func(txn wal.Txn) error {
		var err error
		offset, err = table.WriteInsertPlan(key, []byte("v1"), txn)

		return err
	})

	stageAndEnact(t, log, table, func(txn wal.Txn) error {
		return table.WriteRemovePlan(offset, txn)
	})

	_, ok, err := table.Get(key, offset, log)
	require.NoError(t, err)
	require.False(t, ok)

	key2 := coltypes.Key{0x00, 0x02, 0xBB}

	var offset2 uint64

	stageAndEnact(t, log, table, func(txn wal.Txn) error {
		var err error
		offset2, err = table.WriteInsertPlan(key2, []byte("v2"), txn)

		return err
	})

	require.Equal(t, offset, offset2, "freed slot should be reused before extending high water")
}

func Test_Blob_Tier_Insert_Roundtrips_Large_Value(t *testing.T) {
	t.Parallel()

	table := openTier(t, coltypes.BlobTier)
	log := openLog(t)

	key := coltypes.Key{0x01, 0x02, 0x03}
	payload := make([]byte, 40000)

	for i := range payload {
		payload[i] = byte(i)
	}

	var offset uint64

	stageAndEnact(t, log, table, func(txn wal.Txn) error {
		var err error
		offset, err = table.WriteInsertPlan(key, payload, txn)

		return err
	})

	got, ok, err := table.Get(key, offset, log)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, payload, got)
}

func Test_EnactPlan_Insert_Is_Idempotent(t *testing.T) {
	t.Parallel()

	table := openTier(t, 2)
	log := openLog(t)

	key := coltypes.Key{0x00, 0x00, 0x09}

	txn, err := log.Begin()
	require.NoError(t, err)

	offset, err := table.WriteInsertPlan(key, []byte("payload"), txn)
	require.NoError(t, err)

	id, err := txn.Commit()
	require.NoError(t, err)

	recs := log.ValueOverlay(table.ID())
	require.Len(t, recs, 1)

	require.NoError(t, table.EnactPlan(recs[0]))
	require.NoError(t, table.EnactPlan(recs[0])) // re-apply, must be a no-op

	log.MarkEnacted(id)

	got, ok, err := table.Get(key, offset, log)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("payload"), got)
}
