// Package heapfile implements the heap-file storage layer of the record
// manager: an unordered collection of variable-length records kept in a
// chain of fixed-size pages, with sequential scans, single-predicate
// filtering, insertion and deletion.
//
// A heap file's page 0 is its header (counts and chain endpoints); data
// pages form a singly linked chain starting at the header's first page. An
// open handle pins the header page for its whole lifetime and at most one
// data page at a time.
package heapfile

import (
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"heapdb/buffer"
	"heapdb/disk"
	"heapdb/disk/pages"
)

// Create makes a new heap file: the underlying page file, a header page and
// one empty data page, all flushed to disk. Fails with ErrFileExists when a
// file of that name is already openable.
//
// An intermediate failure unpins whatever was already pinned and propagates;
// it does not remove the partially created file.
func Create(dm *disk.Manager, pool *buffer.Pool, name string) error {
	// if the file opens, it already exists
	if f, err := dm.Open(name); err == nil {
		f.Close()
		return ErrFileExists
	}

	if err := dm.Create(name); err != nil {
		return err
	}
	file, err := dm.Open(name)
	if err != nil {
		return err
	}

	hdrRaw, err := pool.AllocPage(file)
	if err != nil {
		file.Close()
		return pkgerrors.Wrap(err, "allocate header page")
	}
	hdrPageNo := hdrRaw.GetPageId()

	hdr := &headerPage{page: hdrRaw}
	hdr.setFileName(name)

	dataRaw, err := pool.AllocPage(file)
	if err != nil {
		pool.Unpin(file, hdrPageNo, true)
		file.Close()
		return pkgerrors.Wrap(err, "allocate first data page")
	}
	dataPageNo := dataRaw.GetPageId()
	pages.InitHeapPage(dataRaw)

	hdr.setHeader(fileHeader{
		RecCount:    0,
		PageCount:   1,
		FirstPageID: int32(dataPageNo),
		LastPageID:  int32(dataPageNo),
	})

	if err := pool.Unpin(file, hdrPageNo, true); err != nil {
		pool.Unpin(file, dataPageNo, true)
		file.Close()
		return err
	}
	if err := pool.Unpin(file, dataPageNo, true); err != nil {
		file.Close()
		return err
	}

	if err := pool.FlushFile(file); err != nil {
		file.Close()
		return pkgerrors.Wrap(err, "flush during create")
	}
	return file.Close()
}

// Destroy deletes the heap file and discards its cached pool frames. A
// closed handle can leave dirty frames behind, and once the file is gone
// they could never be written back; dropping them keeps the frames usable
// for other files. Fails with disk.ErrFileOpen while any handle is still
// open, leaving the pool untouched.
func Destroy(dm *disk.Manager, pool *buffer.Pool, name string) error {
	file, err := dm.Open(name)
	if err != nil {
		return err
	}
	file.Close()

	if err := dm.Destroy(name); err != nil {
		return err
	}
	pool.DropFile(file)
	return nil
}

// HeapFile is an open handle on a heap file. It keeps the header page pinned
// for its whole lifetime and rotates a single pinned data page as the cursor
// moves. The caller model is single-threaded per handle.
type HeapFile struct {
	pool *buffer.Pool
	file *disk.File

	headerPageNo disk.PageID
	headerPage   *headerPage
	hdrDirtyFlag bool

	curPageNo    disk.PageID
	curPage      *pages.HeapPage
	curDirtyFlag bool
	curRec       RID

	closed bool
}

// Open opens name as a plain heap-file handle with random record access.
func Open(dm *disk.Manager, pool *buffer.Pool, name string) (*HeapFile, error) {
	hf := &HeapFile{}
	if err := hf.open(dm, pool, name); err != nil {
		return nil, err
	}
	return hf, nil
}

// open pins the header page and the first data page. On failure everything
// already pinned is released and the file is closed; the handle must not be
// used afterwards.
func (hf *HeapFile) open(dm *disk.Manager, pool *buffer.Pool, name string) error {
	file, err := dm.Open(name)
	if err != nil {
		return err
	}
	hf.pool = pool
	hf.file = file

	hf.headerPageNo = file.FirstPage()
	if hf.headerPageNo == disk.InvalidPageID {
		file.Close()
		return pkgerrors.Errorf("heap file %s has no header page", name)
	}

	hdrRaw, err := pool.GetPage(file, hf.headerPageNo)
	if err != nil {
		file.Close()
		return pkgerrors.Wrap(err, "pin header page")
	}
	hf.headerPage = &headerPage{page: hdrRaw}
	hf.hdrDirtyFlag = false

	hf.curPageNo = disk.PageID(hf.headerPage.header().FirstPageID)
	curRaw, err := pool.GetPage(file, hf.curPageNo)
	if err != nil {
		pool.Unpin(file, hf.headerPageNo, false)
		file.Close()
		return pkgerrors.Wrap(err, "pin first data page")
	}
	hf.curPage = pages.AsHeapPage(curRaw)
	hf.curDirtyFlag = false
	hf.curRec = NullRID
	return nil
}

// Close unpins everything the handle holds and closes the file. Cleanup is
// best-effort and total: unpin failures are logged as diagnostics and the
// remaining steps still run. Idempotent.
func (hf *HeapFile) Close() error {
	if hf.closed {
		return nil
	}
	hf.closed = true

	if hf.curPage != nil {
		if err := hf.pool.Unpin(hf.file, hf.curPageNo, hf.curDirtyFlag); err != nil {
			logrus.WithError(err).Error("unpin of data page failed during heap file close")
		}
		hf.curPage = nil
		hf.curPageNo = 0
		hf.curDirtyFlag = false
	}

	if err := hf.pool.Unpin(hf.file, hf.headerPageNo, hf.hdrDirtyFlag); err != nil {
		logrus.WithError(err).Error("unpin of header page failed during heap file close")
	}

	return hf.file.Close()
}

// Name returns the file name recorded in the header page.
func (hf *HeapFile) Name() string {
	return hf.headerPage.fileName()
}

// RecordCount returns the number of live records in the heap file.
func (hf *HeapFile) RecordCount() int32 {
	return hf.headerPage.header().RecCount
}

// PageCount returns the number of data pages in the chain.
func (hf *HeapFile) PageCount() int32 {
	return hf.headerPage.header().PageCount
}

// GetRecord retrieves an arbitrary record by RID. If the record is not on
// the currently pinned page, that page is unpinned and the requested one is
// pinned in its place. The returned bytes alias the pinned page image and
// stay valid only until the next operation on the handle.
func (hf *HeapFile) GetRecord(rid RID) ([]byte, error) {
	if hf.curPageNo != rid.PageNo || hf.curPage == nil {
		if hf.curPage != nil {
			err := hf.pool.Unpin(hf.file, hf.curPageNo, hf.curDirtyFlag)
			hf.curPage = nil
			hf.curPageNo = 0
			hf.curDirtyFlag = false
			if err != nil {
				return nil, err
			}
		}

		raw, err := hf.pool.GetPage(hf.file, rid.PageNo)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "pin page %v", rid.PageNo)
		}
		hf.curPage = pages.AsHeapPage(raw)
		hf.curPageNo = rid.PageNo
		hf.curDirtyFlag = false
	}

	rec, err := hf.curPage.GetRecord(rid.SlotNo)
	if err != nil {
		return nil, err
	}
	hf.curRec = rid
	return rec, nil
}
