package heapfile

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heapdb/disk/pages"
)

// seedFile creates a heap file holding n fixed-size records keyed 0..n-1.
func seedFile(t *testing.T, env *testEnv, n, recSize int) []RID {
	t.Helper()

	require.NoError(t, Create(env.dm, env.pool, env.name))
	is, err := OpenInsert(env.dm, env.pool, env.name)
	require.NoError(t, err)
	rids := make([]RID, 0, n)
	for i := 0; i < n; i++ {
		rid, err := is.InsertRecord(intRecord(int32(i), recSize))
		require.NoError(t, err)
		rids = append(rids, rid)
	}
	require.NoError(t, is.Close())
	return rids
}

func int32Bytes(v int32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(v))
	return b
}

func float32Bytes(v float32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, math.Float32bits(v))
	return b
}

func TestUnfilteredScanVisitsEveryRecordOnce(t *testing.T) {
	env := newTestEnv(t, 8)
	rids := seedFile(t, env, 4*recordsPerPage(80), 80)

	fs, err := OpenScan(env.dm, env.pool, env.name)
	require.NoError(t, err)
	defer fs.Close()

	for i, want := range rids {
		rid, err := fs.ScanNext()
		require.NoError(t, err)
		assert.Equal(t, want, rid)
		rec, err := fs.Record()
		require.NoError(t, err)
		assert.Equal(t, int32(i), recordKey(rec))
	}
	_, err = fs.ScanNext()
	assert.ErrorIs(t, err, ErrEndOfFile)
	// once exhausted it stays exhausted
	_, err = fs.ScanNext()
	assert.ErrorIs(t, err, ErrEndOfFile)
}

func TestScanEmptyFile(t *testing.T) {
	env := newTestEnv(t, 8)
	require.NoError(t, Create(env.dm, env.pool, env.name))

	fs, err := OpenScan(env.dm, env.pool, env.name)
	require.NoError(t, err)
	defer fs.Close()

	_, err = fs.ScanNext()
	assert.ErrorIs(t, err, ErrEndOfFile)
	// header plus the still-held first page
	assert.LessOrEqual(t, env.pool.PinnedCount(), 2)

	// restarting against an empty first page lands the scan in its
	// terminal state and lets the page go
	require.NoError(t, fs.EndScan())
	_, err = fs.ScanNext()
	assert.ErrorIs(t, err, ErrEndOfFile)
	assert.Equal(t, 1, env.pool.PinnedCount())
	_, err = fs.ScanNext()
	assert.ErrorIs(t, err, ErrEndOfFile)
	_, err = fs.Record()
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestEndScanIsIdempotent(t *testing.T) {
	env := newTestEnv(t, 8)
	seedFile(t, env, 10, 32)

	fs, err := OpenScan(env.dm, env.pool, env.name)
	require.NoError(t, err)
	defer fs.Close()

	_, err = fs.ScanNext()
	require.NoError(t, err)

	require.NoError(t, fs.EndScan())
	require.NoError(t, fs.EndScan())
	assert.Equal(t, 1, env.pool.PinnedCount())

	// the scan restarts from the beginning after EndScan
	rid, err := fs.ScanNext()
	require.NoError(t, err)
	rec, err := fs.Record()
	require.NoError(t, err)
	assert.Equal(t, int32(0), recordKey(rec))
	assert.Equal(t, pages.SlotID(0), rid.SlotNo)
}

func TestStartScanValidation(t *testing.T) {
	env := newTestEnv(t, 8)
	seedFile(t, env, 5, 32)

	fs, err := OpenScan(env.dm, env.pool, env.name)
	require.NoError(t, err)
	defer fs.Close()

	// nil value means no filter, parameters ignored
	assert.NoError(t, fs.StartScan(-5, 0, FieldType(99), nil, CompareOp(99)))

	val := int32Bytes(1)
	assert.ErrorIs(t, fs.StartScan(-1, 4, IntField, val, EQ), ErrBadScanParam)
	assert.ErrorIs(t, fs.StartScan(0, 0, IntField, val, EQ), ErrBadScanParam)
	assert.ErrorIs(t, fs.StartScan(0, 8, IntField, val, EQ), ErrBadScanParam)
	assert.ErrorIs(t, fs.StartScan(0, 8, FloatField, val, EQ), ErrBadScanParam)
	assert.ErrorIs(t, fs.StartScan(0, 4, FieldType(42), val, EQ), ErrBadScanParam)
	assert.ErrorIs(t, fs.StartScan(0, 4, IntField, val, CompareOp(42)), ErrBadScanParam)
	assert.ErrorIs(t, fs.StartScan(0, 8, StringField, val, EQ), ErrBadScanParam)
}

func TestIntFilter(t *testing.T) {
	env := newTestEnv(t, 8)
	seedFile(t, env, 10, 32)

	cases := []struct {
		op   CompareOp
		val  int32
		want []int32
	}{
		{EQ, 5, []int32{5}},
		{LT, 3, []int32{0, 1, 2}},
		{LTE, 3, []int32{0, 1, 2, 3}},
		{GT, 7, []int32{8, 9}},
		{GTE, 7, []int32{7, 8, 9}},
		{NE, 4, []int32{0, 1, 2, 3, 5, 6, 7, 8, 9}},
	}
	for _, c := range cases {
		fs, err := OpenScan(env.dm, env.pool, env.name)
		require.NoError(t, err)
		require.NoError(t, fs.StartScan(0, 4, IntField, int32Bytes(c.val), c.op))

		got := make([]int32, 0)
		for {
			if _, err := fs.ScanNext(); err != nil {
				assert.ErrorIs(t, err, ErrEndOfFile)
				break
			}
			rec, err := fs.Record()
			require.NoError(t, err)
			got = append(got, recordKey(rec))
		}
		assert.Equal(t, c.want, got, "op %v val %v", c.op, c.val)
		require.NoError(t, fs.Close())
	}
}

func TestFloatFilter(t *testing.T) {
	env := newTestEnv(t, 8)
	require.NoError(t, Create(env.dm, env.pool, env.name))

	is, err := OpenInsert(env.dm, env.pool, env.name)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		rec := make([]byte, 32)
		copy(rec, float32Bytes(float32(i)*1.5))
		_, err := is.InsertRecord(rec)
		require.NoError(t, err)
	}
	require.NoError(t, is.Close())

	fs, err := OpenScan(env.dm, env.pool, env.name)
	require.NoError(t, err)
	defer fs.Close()
	require.NoError(t, fs.StartScan(0, 4, FloatField, float32Bytes(6.0), GTE))

	count := 0
	for {
		if _, err := fs.ScanNext(); err != nil {
			break
		}
		rec, err := fs.Record()
		require.NoError(t, err)
		attr := math.Float32frombits(binary.BigEndian.Uint32(rec))
		assert.GreaterOrEqual(t, attr, float32(6.0))
		count++
	}
	assert.Equal(t, 6, count) // 6.0 7.5 9.0 10.5 12.0 13.5
}

func TestStringFilter(t *testing.T) {
	env := newTestEnv(t, 8)
	require.NoError(t, Create(env.dm, env.pool, env.name))

	is, err := OpenInsert(env.dm, env.pool, env.name)
	require.NoError(t, err)
	for _, name := range []string{"ada", "bob", "cid", "dot", "eve"} {
		rec := make([]byte, 16)
		copy(rec[4:], name)
		_, err := is.InsertRecord(rec)
		require.NoError(t, err)
	}
	require.NoError(t, is.Close())

	fs, err := OpenScan(env.dm, env.pool, env.name)
	require.NoError(t, err)
	defer fs.Close()
	require.NoError(t, fs.StartScan(4, 3, StringField, []byte("cid"), GT))

	got := make([]string, 0)
	for {
		if _, err := fs.ScanNext(); err != nil {
			break
		}
		rec, err := fs.Record()
		require.NoError(t, err)
		got = append(got, string(rec[4:7]))
	}
	assert.Equal(t, []string{"dot", "eve"}, got)
}

func TestFilterPastRecordEndNeverMatches(t *testing.T) {
	env := newTestEnv(t, 8)
	require.NoError(t, Create(env.dm, env.pool, env.name))

	is, err := OpenInsert(env.dm, env.pool, env.name)
	require.NoError(t, err)
	_, err = is.InsertRecord(intRecord(7, 8))
	require.NoError(t, err)
	_, err = is.InsertRecord(intRecord(7, 32))
	require.NoError(t, err)
	require.NoError(t, is.Close())

	fs, err := OpenScan(env.dm, env.pool, env.name)
	require.NoError(t, err)
	defer fs.Close()
	// the field sits past the end of the short record
	require.NoError(t, fs.StartScan(16, 4, IntField, int32Bytes(0), GTE))

	rid, err := fs.ScanNext()
	require.NoError(t, err)
	assert.Equal(t, pages.SlotID(1), rid.SlotNo)
	_, err = fs.ScanNext()
	assert.ErrorIs(t, err, ErrEndOfFile)
}

func TestMarkAndResetSamePage(t *testing.T) {
	env := newTestEnv(t, 8)
	seedFile(t, env, 20, 32)

	fs, err := OpenScan(env.dm, env.pool, env.name)
	require.NoError(t, err)
	defer fs.Close()

	for i := 0; i < 5; i++ {
		_, err := fs.ScanNext()
		require.NoError(t, err)
	}
	fs.MarkScan()
	marked, err := fs.Record()
	require.NoError(t, err)
	markedKey := recordKey(marked)

	for i := 0; i < 10; i++ {
		_, err := fs.ScanNext()
		require.NoError(t, err)
	}

	pinned := env.pool.PinnedCount()
	require.NoError(t, fs.ResetScan())
	// the mark is on the pinned page, so no repin happened
	assert.Equal(t, pinned, env.pool.PinnedCount())

	rec, err := fs.Record()
	require.NoError(t, err)
	assert.Equal(t, markedKey, recordKey(rec))

	// the scan resumes right after the marked record
	_, err = fs.ScanNext()
	require.NoError(t, err)
	rec, err = fs.Record()
	require.NoError(t, err)
	assert.Equal(t, markedKey+1, recordKey(rec))
}

func TestMarkAndResetAcrossPages(t *testing.T) {
	env := newTestEnv(t, 8)
	perPage := recordsPerPage(100)
	seedFile(t, env, 3*perPage, 100)

	fs, err := OpenScan(env.dm, env.pool, env.name)
	require.NoError(t, err)
	defer fs.Close()

	// mark on the first page
	for i := 0; i < 3; i++ {
		_, err := fs.ScanNext()
		require.NoError(t, err)
	}
	fs.MarkScan()

	// run into the third page
	for i := 0; i < 2*perPage; i++ {
		_, err := fs.ScanNext()
		require.NoError(t, err)
	}

	require.NoError(t, fs.ResetScan())
	rec, err := fs.Record()
	require.NoError(t, err)
	assert.Equal(t, int32(2), recordKey(rec))

	// replay yields the same sequence as the first pass
	for i := 3; i < 3*perPage; i++ {
		_, err := fs.ScanNext()
		require.NoError(t, err)
		rec, err := fs.Record()
		require.NoError(t, err)
		assert.Equal(t, int32(i), recordKey(rec))
	}
	_, err = fs.ScanNext()
	assert.ErrorIs(t, err, ErrEndOfFile)
}

func TestResetWithoutMarkReturnsToStart(t *testing.T) {
	env := newTestEnv(t, 8)
	seedFile(t, env, 10, 32)

	fs, err := OpenScan(env.dm, env.pool, env.name)
	require.NoError(t, err)
	defer fs.Close()

	for i := 0; i < 4; i++ {
		_, err := fs.ScanNext()
		require.NoError(t, err)
	}
	// without an explicit mark, reset falls back to the position saved
	// at open time: before the first record
	require.NoError(t, fs.ResetScan())

	_, err = fs.ScanNext()
	require.NoError(t, err)
	rec, err := fs.Record()
	require.NoError(t, err)
	assert.Equal(t, int32(0), recordKey(rec))
}

func TestScanSkipsEmptiedMiddlePage(t *testing.T) {
	env := newTestEnv(t, 8)
	perPage := recordsPerPage(100)
	seedFile(t, env, 3*perPage, 100)

	fs, err := OpenScan(env.dm, env.pool, env.name)
	require.NoError(t, err)
	for {
		_, err := fs.ScanNext()
		if err != nil {
			assert.ErrorIs(t, err, ErrEndOfFile)
			break
		}
		rec, err := fs.Record()
		require.NoError(t, err)
		k := int(recordKey(rec))
		if k >= perPage && k < 2*perPage {
			require.NoError(t, fs.DeleteRecord())
		}
	}
	require.NoError(t, fs.Close())

	// the middle page is now empty but still on the chain; a rescan must
	// step over it without yielding anything from it
	fs, err = OpenScan(env.dm, env.pool, env.name)
	require.NoError(t, err)
	defer fs.Close()
	assert.Equal(t, int32(3), fs.PageCount())

	seen := make([]int32, 0)
	for {
		if _, err := fs.ScanNext(); err != nil {
			break
		}
		rec, err := fs.Record()
		require.NoError(t, err)
		seen = append(seen, recordKey(rec))
	}
	require.Len(t, seen, 2*perPage)
	assert.Equal(t, int32(0), seen[0])
	assert.Equal(t, int32(perPage-1), seen[perPage-1])
	assert.Equal(t, int32(2*perPage), seen[perPage])
	assert.Equal(t, int32(3*perPage-1), seen[len(seen)-1])
}

func TestDeleteDuringScan(t *testing.T) {
	env := newTestEnv(t, 8)
	seedFile(t, env, 10, 32)

	fs, err := OpenScan(env.dm, env.pool, env.name)
	require.NoError(t, err)

	// delete before any ScanNext
	assert.ErrorIs(t, fs.DeleteRecord(), ErrRecordNotFound)

	_, err = fs.ScanNext()
	require.NoError(t, err)
	require.NoError(t, fs.DeleteRecord())
	assert.Equal(t, int32(9), fs.RecordCount())

	// deleting the same position again fails and leaves the count alone
	assert.Error(t, fs.DeleteRecord())
	assert.Equal(t, int32(9), fs.RecordCount())

	// the cursor moves on to the record after the deleted one
	_, err = fs.ScanNext()
	require.NoError(t, err)
	rec, err := fs.Record()
	require.NoError(t, err)
	assert.Equal(t, int32(1), recordKey(rec))
	require.NoError(t, fs.Close())

	// the delete survives a flush and reopen
	require.NoError(t, env.pool.FlushAll())
	fs, err = OpenScan(env.dm, env.pool, env.name)
	require.NoError(t, err)
	defer fs.Close()
	assert.Equal(t, int32(9), fs.RecordCount())
	_, err = fs.ScanNext()
	require.NoError(t, err)
	rec, err = fs.Record()
	require.NoError(t, err)
	assert.Equal(t, int32(1), recordKey(rec))
}

func TestScanHoldsAtMostOneDataPage(t *testing.T) {
	env := newTestEnv(t, 8)
	seedFile(t, env, 3*recordsPerPage(100), 100)

	fs, err := OpenScan(env.dm, env.pool, env.name)
	require.NoError(t, err)
	defer fs.Close()

	for {
		if _, err := fs.ScanNext(); err != nil {
			break
		}
		// header plus the page under the cursor
		assert.LessOrEqual(t, env.pool.PinnedCount(), 2)
	}
}
