package pages

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"heapdb/common"
	"heapdb/disk"
)

/**
 * Heap page format:
 *  ---------------------------------------------------------
 *  | HEADER | SLOT ARRAY | ... FREE SPACE ... | RECORDS ... |
 *  ---------------------------------------------------------
 *                                             ^
 *                                             free space pointer
 *
 *  Header format (size in bytes):
 *  -------------------------------------------------------------
 *  | FreeSpacePointer (4) | SlotCount (2) | NextPageID (4)     |
 *  -------------------------------------------------------------
 *  followed by the slot array: | Offset (4) | Size (4) | ...
 *
 * Records grow from the end of the page towards the slot array. A slot with
 * Size == 0 is empty, either never used or deleted; deletion compacts the
 * record area but never shifts slot indexes, so record ids stay stable.
 */

// SlotID addresses one record within a page. InvalidSlotID doubles as the
// "before the first slot" iteration position.
type SlotID int16

const InvalidSlotID SlotID = -1

var (
	ErrNoSpace        = errors.New("not enough space in heap page")
	ErrRecordNotFound = errors.New("record cannot be found in page slot")
	ErrNoRecords      = errors.New("heap page has no records")
	ErrEndOfPage      = errors.New("no more records in heap page")
)

type HeapPageHeader struct {
	FreeSpacePointer uint32
	SlotCount        uint16
	NextPageID       int32
}

type slotEntry struct {
	Offset uint32
	Size   uint32
}

const SlotEntrySize = 8

var HeapPageHeaderSize = binary.Size(HeapPageHeader{})

// MaxRecordSize is the largest record a freshly formatted page accepts.
// Records are never split across pages.
var MaxRecordSize = disk.PageSize - HeapPageHeaderSize - SlotEntrySize

type HeapPage struct {
	*RawPage
}

// AsHeapPage reinterprets a pinned raw page as a heap page.
func AsHeapPage(page *RawPage) *HeapPage {
	return &HeapPage{RawPage: page}
}

// InitHeapPage formats page as an empty heap page with a terminator link.
func InitHeapPage(page *RawPage) *HeapPage {
	hp := &HeapPage{RawPage: page}
	hp.SetHeader(HeapPageHeader{
		FreeSpacePointer: uint32(disk.PageSize),
		SlotCount:        0,
		NextPageID:       int32(disk.InvalidPageID),
	})
	return hp
}

func (hp *HeapPage) GetHeader() HeapPageHeader {
	reader := bytes.NewReader(hp.GetData())
	dest := HeapPageHeader{}
	binary.Read(reader, binary.BigEndian, &dest)
	return dest
}

func (hp *HeapPage) SetHeader(h HeapPageHeader) {
	buf := bytes.Buffer{}

	// NOTE: this error is actually the error returned by bytes.Buffer.Write call which always returns nil hence no need to check
	err := binary.Write(&buf, binary.BigEndian, &h)
	common.PanicIfErr(err)

	copy(hp.GetData(), buf.Bytes())
}

func (hp *HeapPage) NextPageID() disk.PageID {
	return disk.PageID(hp.GetHeader().NextPageID)
}

func (hp *HeapPage) SetNextPageID(pageNo disk.PageID) {
	h := hp.GetHeader()
	h.NextPageID = int32(pageNo)
	hp.SetHeader(h)
}

func (hp *HeapPage) FreeSpace() int {
	h := hp.GetHeader()
	startingOffset := HeapPageHeaderSize + int(h.SlotCount)*SlotEntrySize
	return int(h.FreeSpacePointer) - startingOffset
}

// InsertRecord copies data into the page and returns its slot. Empty slots
// are reused before the slot array grows. Returns ErrNoSpace when the record
// plus a slot entry does not fit.
func (hp *HeapPage) InsertRecord(data []byte) (SlotID, error) {
	if hp.FreeSpace() < len(data)+SlotEntrySize {
		return InvalidSlotID, ErrNoSpace
	}

	arr := hp.getSlotArr()
	i := 0
	for ; i < len(arr); i++ {
		if arr[i].Size == 0 {
			break
		}
	}

	h := hp.GetHeader()
	h.FreeSpacePointer -= uint32(len(data))
	if i == len(arr) {
		h.SlotCount++
	}
	copy(hp.GetData()[h.FreeSpacePointer:], data)
	hp.SetHeader(h)
	hp.setInSlotArr(i, slotEntry{
		Offset: h.FreeSpacePointer,
		Size:   uint32(len(data)),
	})
	return SlotID(i), nil
}

// GetRecord returns the record bytes in place. The slice aliases the page
// image and is only valid while the page stays pinned.
func (hp *HeapPage) GetRecord(slotNo SlotID) ([]byte, error) {
	h := hp.GetHeader()
	if slotNo < 0 || int(slotNo) >= int(h.SlotCount) {
		return nil, ErrRecordNotFound
	}

	entry := hp.getFromSlotArr(int(slotNo))
	if entry.Size == 0 {
		return nil, ErrRecordNotFound
	}
	return hp.GetData()[entry.Offset : entry.Offset+entry.Size], nil
}

// DeleteRecord empties the slot and compacts the record area. Slot indexes
// of the surviving records do not change, only their offsets do.
func (hp *HeapPage) DeleteRecord(slotNo SlotID) error {
	h := hp.GetHeader()
	if slotNo < 0 || int(slotNo) >= int(h.SlotCount) {
		return ErrRecordNotFound
	}

	entry := hp.getFromSlotArr(int(slotNo))
	if entry.Size == 0 {
		return ErrRecordNotFound
	}

	data := hp.GetData()
	copy(data[h.FreeSpacePointer+entry.Size:entry.Offset+entry.Size], data[h.FreeSpacePointer:entry.Offset])
	h.FreeSpacePointer += entry.Size
	hp.SetHeader(h)
	hp.setInSlotArr(int(slotNo), slotEntry{})

	// records that lived below the deleted one moved up by its size
	for i := 0; i < int(h.SlotCount); i++ {
		curr := hp.getFromSlotArr(i)
		if curr.Size != 0 && curr.Offset < entry.Offset {
			curr.Offset += entry.Size
			hp.setInSlotArr(i, curr)
		}
	}

	return nil
}

// FirstSlot returns the first live slot or ErrNoRecords.
func (hp *HeapPage) FirstSlot() (SlotID, error) {
	slotNo, err := hp.NextSlot(InvalidSlotID)
	if errors.Is(err, ErrEndOfPage) {
		return InvalidSlotID, ErrNoRecords
	}
	return slotNo, err
}

// NextSlot returns the first live slot after the given one; passing
// InvalidSlotID starts from the beginning. Returns ErrEndOfPage when no live
// slot remains.
func (hp *HeapPage) NextSlot(after SlotID) (SlotID, error) {
	arr := hp.getSlotArr()
	for i := int(after) + 1; i < len(arr); i++ {
		if arr[i].Size != 0 {
			return SlotID(i), nil
		}
	}
	return InvalidSlotID, ErrEndOfPage
}

func (hp *HeapPage) getSlotArr() []slotEntry {
	header := hp.GetHeader()
	return readSlotEntries(int(header.SlotCount), hp.GetData()[HeapPageHeaderSize:])
}

func (hp *HeapPage) getFromSlotArr(idx int) slotEntry {
	arr := hp.getSlotArr()
	return arr[idx]
}

func (hp *HeapPage) setInSlotArr(idx int, val slotEntry) {
	offset := HeapPageHeaderSize + SlotEntrySize*idx
	buf := bytes.Buffer{}

	// NOTE: this error is actually the error returned by bytes.Buffer.Write call which always returns nil hence no need to check
	err := binary.Write(&buf, binary.BigEndian, &val)
	common.PanicIfErr(err)

	if offset >= disk.PageSize {
		panic(fmt.Sprintf("slot array overflows the page, idx: %v", idx))
	}

	copy(hp.GetData()[offset:], buf.Bytes())
}

func readSlotEntries(count int, data []byte) []slotEntry {
	reader := bytes.NewReader(data)
	res := make([]slotEntry, 0, count)
	for i := 0; i < count; i++ {
		x := slotEntry{}
		err := binary.Read(reader, binary.BigEndian, &x)
		common.PanicIfErr(err)
		res = append(res, x)
	}
	return res
}
