package disk

import (
	"fmt"
	"os"

	pkgerrors "github.com/pkg/errors"
)

// File is a refcounted handle on one page file. All handles returned by
// Manager.Open for the same name are the same *File, so the page count and
// the buffer pool's frame keys stay consistent across heap-file handles.
type File struct {
	mgr     *Manager
	name    string
	f       *os.File
	refs    int
	pageCnt PageID
}

func (f *File) Name() string {
	return f.name
}

// ReadPage fills dst with the content of the page. dst must be PageSize long.
func (f *File) ReadPage(pageNo PageID, dst []byte) error {
	if len(dst) != PageSize {
		panic(fmt.Sprintf("read buffer is not page sized: %v", len(dst)))
	}

	n, err := f.f.ReadAt(dst, int64(pageNo)*int64(PageSize))
	if err != nil {
		return pkgerrors.Wrapf(err, "read page %v of %s", pageNo, f.name)
	}
	if n != PageSize {
		panic(fmt.Sprintf("partial page read, page id: %v", pageNo))
	}
	return nil
}

func (f *File) WritePage(pageNo PageID, data []byte) error {
	if len(data) != PageSize {
		panic(fmt.Sprintf("write buffer is not page sized: %v", len(data)))
	}

	n, err := f.f.WriteAt(data, int64(pageNo)*int64(PageSize))
	if err != nil {
		return pkgerrors.Wrapf(err, "write page %v of %s", pageNo, f.name)
	}
	if n != PageSize {
		panic("written bytes are not equal to page size")
	}
	return nil
}

// AllocatePage appends a zeroed page to the file and returns its id.
func (f *File) AllocatePage() (PageID, error) {
	f.mgr.mu.Lock()
	defer f.mgr.mu.Unlock()

	pageNo := f.pageCnt
	zero := make([]byte, PageSize)
	if err := f.WritePage(pageNo, zero); err != nil {
		return InvalidPageID, err
	}

	f.pageCnt++
	return pageNo, nil
}

// FirstPage returns the id of the file's first page, which by convention
// holds the heap-file header, or InvalidPageID for an empty file.
func (f *File) FirstPage() PageID {
	if f.pageCnt == 0 {
		return InvalidPageID
	}
	return 0
}

func (f *File) PageCount() PageID {
	return f.pageCnt
}

// Close drops one reference. The OS handle stays cached in the manager so
// evicted dirty frames can still be written back; Manager.Close or Destroy
// release it for real.
func (f *File) Close() error {
	f.mgr.mu.Lock()
	defer f.mgr.mu.Unlock()

	if f.refs == 0 {
		panic(fmt.Sprintf("closing file %s which has no open handles", f.name))
	}
	f.refs--
	return nil
}
