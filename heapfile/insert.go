package heapfile

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"heapdb/buffer"
	"heapdb/disk"
	"heapdb/disk/pages"
)

// InsertScan is a heap-file handle specialized for appending records at the
// tail of the page chain, extending the chain when the tail fills up.
type InsertScan struct {
	HeapFile
}

// OpenInsert opens name for insertion.
func OpenInsert(dm *disk.Manager, pool *buffer.Pool, name string) (*InsertScan, error) {
	is := &InsertScan{}
	if err := is.open(dm, pool, name); err != nil {
		return nil, err
	}
	return is, nil
}

// Close releases the handle. The held data page is always unpinned as dirty:
// an insert handle's page is assumed written whenever one is held.
func (is *InsertScan) Close() error {
	if is.curPage != nil {
		if err := is.pool.Unpin(is.file, is.curPageNo, true); err != nil {
			logrus.WithError(err).Error("unpin of data page failed during insert scan close")
		}
		is.curPage = nil
		is.curPageNo = 0
		is.curDirtyFlag = false
	}
	return is.HeapFile.Close()
}

// InsertRecord appends the record to the last page of the chain and returns
// its RID. When the page has no room, a new page is allocated, linked in as
// the new tail and the insert retried there.
//
// A record longer than pages.MaxRecordSize fails with
// ErrInvalidRecordLength before any page is allocated or the header touched.
func (is *InsertScan) InsertRecord(data []byte) (RID, error) {
	if len(data) > pages.MaxRecordSize {
		return NullRID, ErrInvalidRecordLength
	}

	// inserts always target the tail of the chain; the cursor may sit
	// elsewhere right after open or after a GetRecord call
	lastPageNo := disk.PageID(is.headerPage.header().LastPageID)
	if is.curPage == nil || is.curPageNo != lastPageNo {
		if is.curPage != nil {
			if err := is.pool.Unpin(is.file, is.curPageNo, is.curDirtyFlag); err != nil {
				return NullRID, err
			}
			is.curPage = nil
		}

		raw, err := is.pool.GetPage(is.file, lastPageNo)
		if err != nil {
			return NullRID, pkgerrors.Wrapf(err, "pin last page %v", lastPageNo)
		}
		is.curPage = pages.AsHeapPage(raw)
		is.curPageNo = lastPageNo
		is.curDirtyFlag = false
	}

	slotNo, err := is.curPage.InsertRecord(data)
	if err == nil {
		is.bumpRecCount()
		is.curDirtyFlag = true
		return RID{PageNo: is.curPageNo, SlotNo: slotNo}, nil
	}
	if !errors.Is(err, pages.ErrNoSpace) {
		return NullRID, err
	}

	// the tail is full: extend the chain by one page
	raw, err := is.pool.AllocPage(is.file)
	if err != nil {
		return NullRID, pkgerrors.Wrap(err, "allocate overflow page")
	}
	newPageNo := raw.GetPageId()
	newPage := pages.InitHeapPage(raw)

	is.curPage.SetNextPageID(newPageNo)
	is.curDirtyFlag = true

	fh := is.headerPage.header()
	fh.LastPageID = int32(newPageNo)
	fh.PageCount++
	is.headerPage.setHeader(fh)
	is.hdrDirtyFlag = true

	// the old tail is released only now that the new page is safely pinned
	if err := is.pool.Unpin(is.file, is.curPageNo, is.curDirtyFlag); err != nil {
		is.pool.Unpin(is.file, newPageNo, true)
		is.curPage = nil
		is.curPageNo = 0
		is.curDirtyFlag = false
		return NullRID, err
	}

	is.curPage = newPage
	is.curPageNo = newPageNo
	is.curDirtyFlag = true

	// a fresh page always has room for a record within the size bound, so
	// a failure here is propagated as-is
	slotNo, err = is.curPage.InsertRecord(data)
	if err != nil {
		return NullRID, err
	}
	is.bumpRecCount()
	return RID{PageNo: is.curPageNo, SlotNo: slotNo}, nil
}

func (is *InsertScan) bumpRecCount() {
	fh := is.headerPage.header()
	fh.RecCount++
	is.headerPage.setHeader(fh)
	is.hdrDirtyFlag = true
}
