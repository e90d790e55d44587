package column_test

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/colbase/column-engine/pkg/column"
	"github.com/colbase/column-engine/pkg/column/coltypes"
	"github.com/colbase/column-engine/pkg/column/indextable"
)

func openColumn(t *testing.T) *column.Column {
	t.Helper()

	dir := t.TempDir()

	col, err := column.Open(0, dir)
	require.NoError(t, err)

	t.Cleanup(func() { _ = col.Close() })

	return col
}

func key(prefix uint16, rest ...byte) coltypes.Key {
	k := make(coltypes.Key, 2+len(rest))
	k[0] = byte(prefix >> 8)
	k[1] = byte(prefix)
	copy(k[2:], rest)

	return k
}

func Test_Small_Insert_Small_Read(t *testing.T) {
	t.Parallel()

	col := openColumn(t)

	k := key(0x11, 0x22, 0x33)

	outcome, err := col.WritePlan(k, []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, coltypes.Written, outcome)

	val, found, err := col.Get(k)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("hello"), val)
}

func Test_Tier_Migration_Frees_Old_Slot_And_Reindexes(t *testing.T) {
	t.Parallel()

	col := openColumn(t)

	k := key(0x01, 0xAA)

	big := bytes.Repeat([]byte{1}, 100) // tier 1 (capacity 128)

	_, err := col.WritePlan(k, big)
	require.NoError(t, err)

	small := bytes.Repeat([]byte{2}, 10) // tier 0 (capacity 96)

	outcome, err := col.WritePlan(k, small)
	require.NoError(t, err)
	require.Equal(t, coltypes.Written, outcome)

	val, found, err := col.Get(k)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, small, val)

	// The tier 1 slot is freed, tier 0 holds the value, and the primary's
	// entry for k was overwritten in place rather than a second one added.
	stats, err := col.Stats()
	require.NoError(t, err)
	require.Equal(t, uint64(0), stats.Tiers[1].LiveCount)
	require.Equal(t, uint64(1), stats.Tiers[0].LiveCount)
	require.Equal(t, uint64(1), stats.PrimaryLiveCount)
}

func Test_Collision_Chain_Both_Keys_Retrievable(t *testing.T) {
	t.Parallel()

	col := openColumn(t)

	// Same 16-bit prefix, different suffix: both share a home chunk, so
	// the second write must land in the chunk's next open sub-slot
	// rather than overwrite the first.
	k1 := key(0x55AA, 0x01)
	k2 := key(0x55AA, 0x02)

	_, err := col.WritePlan(k1, []byte("one"))
	require.NoError(t, err)

	_, err = col.WritePlan(k2, []byte("two"))
	require.NoError(t, err)

	v1, found, err := col.Get(k1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("one"), v1)

	v2, found, err := col.Get(k2)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("two"), v2)
}

func Test_Rebalance_Trigger_On_Chunk_Overflow(t *testing.T) {
	t.Parallel()

	col := openColumn(t)

	// Every key below shares prefix 0xCAFE, so all of them home to the
	// same chunk; the (entries_per_chunk+1)th write finds no empty
	// sub-slot and forces a promotion.
	var lastOutcome coltypes.PlanOutcome

	for i := 0; i < indextable.EntriesPerChunk+1; i++ {
		k := key(0xCAFE, byte(i))

		outcome, err := col.WritePlan(k, []byte("v"))
		require.NoError(t, err)

		lastOutcome = outcome
	}

	require.Equal(t, coltypes.NeedRebalance, lastOutcome)

	stats, err := col.Stats()
	require.NoError(t, err)
	require.Greater(t, stats.PrimaryIndexBits, uint8(16))
	require.Equal(t, 1, stats.QueueDepth)
}

func Test_Rebalance_Completion_Drains_Queue_Keeping_Keys_Retrievable(t *testing.T) {
	t.Parallel()

	col := openColumn(t)

	const n = 50

	keys := make([]coltypes.Key, 0, n+indextable.EntriesPerChunk+1)

	for i := 0; i < n; i++ {
		k := key(uint16(i), byte(i), 0xFF)
		keys = append(keys, k)

		_, err := col.WritePlan(k, []byte("value"))
		require.NoError(t, err)
	}

	// Keys sharing one prefix overflow their chunk and force a
	// promotion, pushing the original primary onto the rebalance queue
	// so the drain loop below has something real to drain.
	var sawRebalance bool

	for i := 0; i < indextable.EntriesPerChunk+1; i++ {
		k := key(0xBEEF, byte(i))
		keys = append(keys, k)

		outcome, err := col.WritePlan(k, []byte("value"))
		require.NoError(t, err)

		if outcome == coltypes.NeedRebalance {
			sawRebalance = true
		}
	}

	require.True(t, sawRebalance, "collision group should have forced a promotion")

	statsBefore, err := col.Stats()
	require.NoError(t, err)
	require.Equal(t, 1, statsBefore.QueueDepth)

	for {
		dropID, plan, err := col.Rebalance()
		require.NoError(t, err)

		for _, entry := range plan {
			_, err = col.WriteIndexPlan(entry.Key, entry.Address)
			require.NoError(t, err)
		}

		if dropID != nil {
			err = col.DropIndex(*dropID)
			require.NoError(t, err)
		}

		stats, err := col.Stats()
		require.NoError(t, err)

		if stats.QueueDepth == 0 {
			break
		}
	}

	stats, err := col.Stats()
	require.NoError(t, err)
	require.Equal(t, 0, stats.QueueDepth)

	for _, k := range keys {
		_, found, err := col.Get(k)
		require.NoError(t, err)
		require.True(t, found, "key %v should still be retrievable after drain", k)
	}
}

func Test_Delete_Then_Rebalance_Leaves_Key_Absent(t *testing.T) {
	t.Parallel()

	col := openColumn(t)

	k := key(0x4200, 0x01)

	_, err := col.WritePlan(k, []byte("v"))
	require.NoError(t, err)

	outcome, err := col.WritePlan(k, nil)
	require.NoError(t, err)
	require.Equal(t, coltypes.Written, outcome)

	_, found, err := col.Get(k)
	require.NoError(t, err)
	require.False(t, found)

	// Keys sharing k's prefix fill the chunk k's freed slot sits in and
	// overflow it, forcing a promotion so the drain loop below actually
	// walks that chunk instead of finding an empty queue.
	siblings := make([]coltypes.Key, 0, indextable.EntriesPerChunk+1)

	for i := 0; i < indextable.EntriesPerChunk+1; i++ {
		sib := key(0x4200, byte(0x10+i))
		siblings = append(siblings, sib)

		_, err = col.WritePlan(sib, []byte("v"))
		require.NoError(t, err)
	}

	for {
		dropID, plan, err := col.Rebalance()
		require.NoError(t, err)

		for _, entry := range plan {
			_, err = col.WriteIndexPlan(entry.Key, entry.Address)
			require.NoError(t, err)
		}

		if dropID != nil {
			err = col.DropIndex(*dropID)
			require.NoError(t, err)
		}

		stats, err := col.Stats()
		require.NoError(t, err)

		if stats.QueueDepth == 0 {
			break
		}
	}

	_, found, err = col.Get(k)
	require.NoError(t, err)
	require.False(t, found)

	for _, sib := range siblings {
		_, found, err = col.Get(sib)
		require.NoError(t, err)
		require.True(t, found, "sibling key %v should still be retrievable after drain", sib)
	}
}

func Test_Stats_Snapshot_Unchanged_Across_A_Plain_Read(t *testing.T) {
	t.Parallel()

	col := openColumn(t)

	k := key(0x03, 0x04)

	_, err := col.WritePlan(k, []byte("v"))
	require.NoError(t, err)

	before, err := col.Stats()
	require.NoError(t, err)

	_, _, err = col.Get(k)
	require.NoError(t, err)

	after, err := col.Stats()
	require.NoError(t, err)

	if diff := cmp.Diff(before, after); diff != "" {
		t.Fatalf("Stats changed across a read (-before +after):\n%s", diff)
	}
}

func Test_Delete_Of_Missing_Key_Returns_Skipped(t *testing.T) {
	t.Parallel()

	col := openColumn(t)

	outcome, err := col.WritePlan(key(0x99, 0x01), nil)
	require.NoError(t, err)
	require.Equal(t, coltypes.Skipped, outcome)
}

func Test_WritePlan_Is_Enacted_Before_It_Returns(t *testing.T) {
	t.Parallel()

	col := openColumn(t)

	k := key(0x07, 0x08)

	_, err := col.WritePlan(k, []byte("v"))
	require.NoError(t, err)

	val, found, err := col.Get(k)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("v"), val)
}

func Test_Reopen_Replays_Pending_Log_Records(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	col, err := column.Open(0, dir)
	require.NoError(t, err)

	k := key(0x10, 0x20)

	_, err = col.WritePlan(k, []byte("persisted"))
	require.NoError(t, err)

	require.NoError(t, col.Close())

	reopened, err := column.Open(0, dir)
	require.NoError(t, err)

	defer func() { _ = reopened.Close() }()

	val, found, err := reopened.Get(k)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("persisted"), val)
}
