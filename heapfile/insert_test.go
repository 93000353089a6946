package heapfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heapdb/disk"
	"heapdb/disk/pages"
)

func TestInsertTargetsTailAfterReopen(t *testing.T) {
	env := newTestEnv(t, 8)
	perPage := recordsPerPage(100)
	seedFile(t, env, 2*perPage, 100)

	// the open cursor starts on the first page; the insert must still land
	// on the tail
	is, err := OpenInsert(env.dm, env.pool, env.name)
	require.NoError(t, err)
	defer is.Close()

	lastPageNo := disk.PageID(is.headerPage.header().LastPageID)
	rid, err := is.InsertRecord(intRecord(999, 100))
	require.NoError(t, err)
	assert.Equal(t, lastPageNo, rid.PageNo)
}

func TestInsertAfterGetRecordRepositions(t *testing.T) {
	env := newTestEnv(t, 8)
	perPage := recordsPerPage(100)
	rids := seedFile(t, env, 2*perPage, 100)

	is, err := OpenInsert(env.dm, env.pool, env.name)
	require.NoError(t, err)
	defer is.Close()

	// drag the cursor onto the first page
	_, err = is.GetRecord(rids[0])
	require.NoError(t, err)

	rid, err := is.InsertRecord(intRecord(999, 100))
	require.NoError(t, err)
	assert.Equal(t, rids[len(rids)-1].PageNo, rid.PageNo)

	// the chain is intact: a full scan still sees everything in order
	require.NoError(t, is.Close())
	fs, err := OpenScan(env.dm, env.pool, env.name)
	require.NoError(t, err)
	defer fs.Close()
	n := 0
	for {
		if _, err := fs.ScanNext(); err != nil {
			break
		}
		n++
	}
	assert.Equal(t, 2*perPage+1, n)
}

func TestOverflowLinksNewTail(t *testing.T) {
	env := newTestEnv(t, 8)
	require.NoError(t, Create(env.dm, env.pool, env.name))

	is, err := OpenInsert(env.dm, env.pool, env.name)
	require.NoError(t, err)
	defer is.Close()

	perPage := recordsPerPage(100)
	for i := 0; i <= perPage; i++ {
		_, err := is.InsertRecord(intRecord(int32(i), 100))
		require.NoError(t, err)
	}

	fh := is.headerPage.header()
	assert.Equal(t, int32(2), fh.PageCount)
	assert.NotEqual(t, fh.FirstPageID, fh.LastPageID)

	// the old tail points at the new one
	raw, err := env.pool.GetPage(is.file, disk.PageID(fh.FirstPageID))
	require.NoError(t, err)
	assert.Equal(t, disk.PageID(fh.LastPageID), pages.AsHeapPage(raw).NextPageID())
	require.NoError(t, env.pool.Unpin(is.file, disk.PageID(fh.FirstPageID), false))

	// and the new tail carries the chain terminator
	assert.Equal(t, disk.InvalidPageID, is.curPage.NextPageID())
}

func TestInsertPersistsAcrossReopen(t *testing.T) {
	env := newTestEnv(t, 8)
	require.NoError(t, Create(env.dm, env.pool, env.name))

	is, err := OpenInsert(env.dm, env.pool, env.name)
	require.NoError(t, err)
	want := 3*recordsPerPage(64) + 7
	for i := 0; i < want; i++ {
		_, err := is.InsertRecord(intRecord(int32(i), 64))
		require.NoError(t, err)
	}
	require.NoError(t, is.Close())
	require.NoError(t, env.pool.FlushAll())

	fs, err := OpenScan(env.dm, env.pool, env.name)
	require.NoError(t, err)
	defer fs.Close()
	assert.Equal(t, int32(want), fs.RecordCount())
	assert.Equal(t, int32(4), fs.PageCount())

	for i := 0; i < want; i++ {
		_, err := fs.ScanNext()
		require.NoError(t, err)
		rec, err := fs.Record()
		require.NoError(t, err)
		assert.Equal(t, int32(i), recordKey(rec))
	}
	_, err = fs.ScanNext()
	assert.ErrorIs(t, err, ErrEndOfFile)
}

func TestInsertReusesFreedTailSpace(t *testing.T) {
	env := newTestEnv(t, 8)
	seedFile(t, env, 5, 64)

	fs, err := OpenScan(env.dm, env.pool, env.name)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := fs.ScanNext()
		require.NoError(t, err)
	}
	require.NoError(t, fs.DeleteRecord())
	require.NoError(t, fs.Close())

	is, err := OpenInsert(env.dm, env.pool, env.name)
	require.NoError(t, err)
	defer is.Close()

	// the emptied slot on the single data page is picked up again
	rid, err := is.InsertRecord(intRecord(100, 64))
	require.NoError(t, err)
	assert.Equal(t, pages.SlotID(2), rid.SlotNo)
	assert.Equal(t, int32(1), is.PageCount())
	assert.Equal(t, int32(5), is.RecordCount())
}
