package indextable_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/colbase/column-engine/pkg/column/coltypes"
	"github.com/colbase/column-engine/pkg/column/indextable"
	"github.com/colbase/column-engine/pkg/wal"
)

func openTable(t *testing.T, bits uint8) *indextable.Table {
	t.Helper()

	dir := t.TempDir()

	id := coltypes.IndexTableID{Column: 0, IndexBits: bits}

	table, err := indextable.Create(dir, id)
	require.NoError(t, err)

	t.Cleanup(func() { _ = table.Close() })

	return table
}

func openLog(t *testing.T) *wal.FileLog {
	t.Helper()

	dir := t.TempDir()

	log, err := wal.OpenFileLog(dir + "/test.wal")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	return log
}

func stage(t *testing.T, log *wal.FileLog, table *indextable.Table, action func(txn wal.Txn) error) {
	t.Helper()

	txn, err := log.Begin()
	require.NoError(t, err)

	require.NoError(t, action(txn))

	id, err := txn.Commit()
	require.NoError(t, err)

	for _, rec := range log.IndexOverlay(table.ID()) {
		require.NoError(t, table.EnactPlan(rec))
	}

	log.MarkEnacted(id)
}

func Test_Insert_Then_Get_Finds_Entry(t *testing.T) {
	t.Parallel()

	table := openTable(t, 16)
	log := openLog(t)

	key := coltypes.Key{0x01, 0x02, 0x03, 0x04}
	addr := coltypes.Address{Tier: 2, Offset: 55}

	stage(t, log, table, func(txn wal.Txn) error {
		outcome, err := table.WriteInsertPlan(key, addr, nil, txn, log)
		require.Equal(t, coltypes.Written, outcome)

		return err
	})

	entry, _, found, err := table.Get(key, 0, log)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, addr.Tier, entry.Tier)
	require.Equal(t, addr.Offset, entry.Offset)
}

func Test_Remove_Clears_Entry(t *testing.T) {
	t.Parallel()

	table := openTable(t, 16)
	log := openLog(t)

	key := coltypes.Key{0xAA, 0xBB, 0x01}
	addr := coltypes.Address{Tier: 0, Offset: 1}

	var subIndex uint8

	stage(t, log, table, func(txn wal.Txn) error {
		_, err := table.WriteInsertPlan(key, addr, nil, txn, log)

		return err
	})

	_, subIndex, found, err := table.Get(key, 0, log)
	require.NoError(t, err)
	require.True(t, found)

	stage(t, log, table, func(txn wal.Txn) error {
		return table.WriteRemovePlan(key, subIndex, txn)
	})

	_, _, found, err = table.Get(key, 0, log)
	require.NoError(t, err)
	require.False(t, found)
}

func Test_Chunk_Overflow_Returns_NeedRebalance(t *testing.T) {
	t.Parallel()

	table := openTable(t, 16)
	log := openLog(t)

	// Fill every sub-slot of one fixed key's home chunk by inserting
	// with an explicit sub_index for each slot, so the next insert
	// without a sub_index finds no empty slot.
	key := coltypes.Key{0x00, 0x00, 0x01}

	for i := uint8(0); i < 8; i++ {
		subIndex := i
		stage(t, log, table, func(txn wal.Txn) error {
			_, err := table.WriteInsertPlan(key, coltypes.Address{Tier: 0, Offset: uint64(subIndex)}, &subIndex, txn, log)

			return err
		})
	}

	txn, err := log.Begin()
	require.NoError(t, err)

	outcome, err := table.WriteInsertPlan(key, coltypes.Address{Tier: 0, Offset: 99}, nil, txn, log)
	require.NoError(t, err)
	require.Equal(t, coltypes.NeedRebalance, outcome)

	txn.Discard()
}

func Test_EnactPlan_Insert_Is_Idempotent(t *testing.T) {
	t.Parallel()

	table := openTable(t, 16)
	log := openLog(t)

	key := coltypes.Key{0x05, 0x06}
	addr := coltypes.Address{Tier: 3, Offset: 7}

	before := table.NumEntries()

	txn, err := log.Begin()
	require.NoError(t, err)

	_, err = table.WriteInsertPlan(key, addr, nil, txn, log)
	require.NoError(t, err)

	id, err := txn.Commit()
	require.NoError(t, err)

	recs := log.IndexOverlay(table.ID())
	require.Len(t, recs, 1)

	require.NoError(t, table.EnactPlan(recs[0]))
	require.NoError(t, table.EnactPlan(recs[0]))

	log.MarkEnacted(id)

	require.Equal(t, before+1, table.NumEntries())
}
