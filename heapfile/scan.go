package heapfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"heapdb/buffer"
	"heapdb/common"
	"heapdb/disk"
	"heapdb/disk/pages"
)

// FieldType is the kind of the filtered field.
type FieldType uint8

const (
	StringField FieldType = iota
	IntField
	FloatField
)

// CompareOp is the comparison applied between the stored field and the
// filter value.
type CompareOp uint8

const (
	LT CompareOp = iota
	LTE
	EQ
	GTE
	GT
	NE
)

// Filter is a single fixed-offset, fixed-width predicate. The raw value
// bytes are decoded once at StartScan time into the kind-specific field.
type Filter struct {
	Offset int
	Length int
	Type   FieldType
	Op     CompareOp

	intVal   int32
	floatVal float32
	strVal   []byte
}

// FileScan is a heap-file handle extended with a sequential-scan cursor, an
// optional filter and mark/reset snapshotting.
type FileScan struct {
	HeapFile

	filter       *Filter
	markedPageNo disk.PageID
	markedRec    RID
}

// OpenScan opens name for sequential scanning.
func OpenScan(dm *disk.Manager, pool *buffer.Pool, name string) (*FileScan, error) {
	fs := &FileScan{}
	if err := fs.open(dm, pool, name); err != nil {
		return nil, err
	}
	fs.markedPageNo = fs.curPageNo
	fs.markedRec = fs.curRec
	return fs, nil
}

// Close ends the scan and releases the handle.
func (fs *FileScan) Close() error {
	if err := fs.EndScan(); err != nil {
		logrus.WithError(err).Error("end scan failed during scan close")
	}
	return fs.HeapFile.Close()
}

// StartScan installs the filter for subsequent ScanNext calls. A nil value
// disables filtering and always succeeds. Invalid parameter combinations
// fail with ErrBadScanParam and leave the scan unfiltered.
func (fs *FileScan) StartScan(offset, length int, typ FieldType, value []byte, op CompareOp) error {
	if value == nil {
		fs.filter = nil
		return nil
	}

	if offset < 0 || length < 1 ||
		(typ != StringField && typ != IntField && typ != FloatField) ||
		(typ == IntField && length != binary.Size(int32(0))) ||
		(typ == FloatField && length != binary.Size(float32(0))) ||
		op > NE {
		return ErrBadScanParam
	}
	if len(value) < length {
		return ErrBadScanParam
	}

	f := &Filter{Offset: offset, Length: length, Type: typ, Op: op}
	switch typ {
	case IntField:
		f.intVal = int32(binary.BigEndian.Uint32(value))
	case FloatField:
		f.floatVal = math.Float32frombits(binary.BigEndian.Uint32(value))
	case StringField:
		f.strVal = common.Clone(value[:length])
	}

	fs.filter = f
	return nil
}

// ScanNext advances to the next record satisfying the filter and returns its
// RID, or ErrEndOfFile when the page chain is exhausted. Records come out in
// page-chain order, then in slot order within a page.
func (fs *FileScan) ScanNext() (RID, error) {
	// terminal state, reached when the first page turned out to be empty
	if fs.curPageNo < 0 {
		return NullRID, ErrEndOfFile
	}

	// no page pinned: first call after open or after EndScan
	if fs.curPage == nil {
		fs.curPageNo = disk.PageID(fs.headerPage.header().FirstPageID)
		if fs.curPageNo == disk.InvalidPageID {
			return NullRID, ErrEndOfFile
		}

		raw, err := fs.pool.GetPage(fs.file, fs.curPageNo)
		if err != nil {
			return NullRID, pkgerrors.Wrapf(err, "pin page %v", fs.curPageNo)
		}
		fs.curPage = pages.AsHeapPage(raw)
		fs.curDirtyFlag = false

		slotNo, err := fs.curPage.FirstSlot()
		if errors.Is(err, pages.ErrNoRecords) {
			// the first page holds nothing: the scan is over for good
			if uerr := fs.pool.Unpin(fs.file, fs.curPageNo, fs.curDirtyFlag); uerr != nil {
				logrus.WithError(uerr).Error("unpin of empty first page failed")
			}
			fs.curPageNo = disk.InvalidPageID
			fs.curPage = nil
			return NullRID, ErrEndOfFile
		} else if err != nil {
			return NullRID, err
		}

		fs.curRec = RID{PageNo: fs.curPageNo, SlotNo: slotNo}
		rec, err := fs.curPage.GetRecord(slotNo)
		if err != nil {
			return NullRID, err
		}
		if fs.matchRec(rec) {
			return fs.curRec, nil
		}
	}

	for {
		slotNo, err := fs.curPage.NextSlot(fs.curRec.SlotNo)
		switch {
		case err == nil:
			fs.curRec = RID{PageNo: fs.curPageNo, SlotNo: slotNo}
			rec, err := fs.curPage.GetRecord(slotNo)
			if err != nil {
				return NullRID, err
			}
			if fs.matchRec(rec) {
				return fs.curRec, nil
			}

		case errors.Is(err, pages.ErrEndOfPage) || errors.Is(err, pages.ErrNoRecords):
			nextPageNo := fs.curPage.NextPageID()
			if nextPageNo == disk.InvalidPageID {
				return NullRID, ErrEndOfFile
			}

			// pin the next page before letting go of the current one so
			// the handle never ends up holding nothing mid-advance
			raw, err := fs.pool.GetPage(fs.file, nextPageNo)
			if err != nil {
				return NullRID, pkgerrors.Wrapf(err, "pin page %v", nextPageNo)
			}
			if uerr := fs.pool.Unpin(fs.file, fs.curPageNo, fs.curDirtyFlag); uerr != nil {
				logrus.WithError(uerr).Error("unpin failed while advancing the scan")
			}

			fs.curPageNo = nextPageNo
			fs.curPage = pages.AsHeapPage(raw)
			fs.curDirtyFlag = false
			// empty pages are skipped by looping with the cursor before
			// the first slot of the new page
			fs.curRec = RID{PageNo: nextPageNo, SlotNo: pages.InvalidSlotID}

		default:
			return NullRID, err
		}
	}
}

// Record returns the record at the scan's current position. The page stays
// pinned; the bytes alias its image.
func (fs *FileScan) Record() ([]byte, error) {
	if fs.curPage == nil {
		return nil, ErrRecordNotFound
	}
	return fs.curPage.GetRecord(fs.curRec.SlotNo)
}

// DeleteRecord removes the record at the current position and decrements the
// header's record count. The cursor is not advanced; the following ScanNext
// continues from the deleted slot.
func (fs *FileScan) DeleteRecord() error {
	if fs.curPage == nil {
		return ErrRecordNotFound
	}

	if err := fs.curPage.DeleteRecord(fs.curRec.SlotNo); err != nil {
		return err
	}
	fs.curDirtyFlag = true

	fh := fs.headerPage.header()
	fh.RecCount--
	fs.headerPage.setHeader(fh)
	fs.hdrDirtyFlag = true
	return nil
}

// MarkDirty marks the currently pinned page dirty without mutating it, for
// callers that changed a record's bytes in place.
func (fs *FileScan) MarkDirty() {
	fs.curDirtyFlag = true
}

// MarkScan snapshots the cursor position. No I/O, never fails.
func (fs *FileScan) MarkScan() {
	fs.markedPageNo = fs.curPageNo
	fs.markedRec = fs.curRec
}

// ResetScan restores the position saved by MarkScan. When the mark is on the
// pinned page only the cursor moves, no unpin/pin cycle happens.
func (fs *FileScan) ResetScan() error {
	if fs.markedPageNo == fs.curPageNo {
		fs.curRec = fs.markedRec
		return nil
	}

	if fs.curPage != nil {
		if err := fs.pool.Unpin(fs.file, fs.curPageNo, fs.curDirtyFlag); err != nil {
			return err
		}
		fs.curPage = nil
	}

	fs.curPageNo = fs.markedPageNo
	fs.curRec = fs.markedRec
	raw, err := fs.pool.GetPage(fs.file, fs.curPageNo)
	if err != nil {
		return pkgerrors.Wrapf(err, "pin marked page %v", fs.curPageNo)
	}
	fs.curPage = pages.AsHeapPage(raw)
	fs.curDirtyFlag = false
	return nil
}

// EndScan unpins the page the scan holds, if any. Idempotent; Close calls it
// automatically.
func (fs *FileScan) EndScan() error {
	if fs.curPage == nil {
		return nil
	}

	err := fs.pool.Unpin(fs.file, fs.curPageNo, fs.curDirtyFlag)
	fs.curPage = nil
	fs.curPageNo = 0
	fs.curDirtyFlag = false
	return err
}

// matchRec evaluates the filter against a record. An absent filter matches
// unconditionally; a field reaching past the end of the record never does.
func (fs *FileScan) matchRec(rec []byte) bool {
	f := fs.filter
	if f == nil {
		return true
	}

	if f.Offset+f.Length > len(rec) {
		return false
	}

	var diff float64
	switch f.Type {
	case IntField:
		attr := int32(binary.BigEndian.Uint32(rec[f.Offset:]))
		diff = float64(attr) - float64(f.intVal)
	case FloatField:
		attr := math.Float32frombits(binary.BigEndian.Uint32(rec[f.Offset:]))
		diff = float64(attr) - float64(f.floatVal)
	case StringField:
		diff = float64(bytes.Compare(rec[f.Offset:f.Offset+f.Length], f.strVal))
	}

	switch f.Op {
	case LT:
		return diff < 0
	case LTE:
		return diff <= 0
	case EQ:
		return diff == 0
	case GTE:
		return diff >= 0
	case GT:
		return diff > 0
	case NE:
		return diff != 0
	}
	return false
}
