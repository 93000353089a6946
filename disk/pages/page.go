package pages

import (
	"heapdb/disk"
)

// RawPage is the in-memory image of one physical page plus the bookkeeping
// the buffer pool needs: pin count and dirty flag. A heap-file handle only
// touches it through the page wrappers; pin accounting belongs to the pool.
type RawPage struct {
	pageID   disk.PageID
	isDirty  bool
	pinCount int
	Data     []byte
}

func NewRawPage(pageID disk.PageID) *RawPage {
	return &RawPage{
		pageID: pageID,
		Data:   make([]byte, disk.PageSize),
	}
}

func (p *RawPage) GetData() []byte {
	return p.Data
}

func (p *RawPage) GetPageId() disk.PageID {
	return p.pageID
}

func (p *RawPage) GetPinCount() int {
	return p.pinCount
}

func (p *RawPage) IncrPinCount() {
	p.pinCount++
}

func (p *RawPage) DecrPinCount() {
	p.pinCount--
}

func (p *RawPage) IsDirty() bool {
	return p.isDirty
}

func (p *RawPage) SetDirty() {
	p.isDirty = true
}

func (p *RawPage) SetClean() {
	p.isDirty = false
}

// Reset rebinds the image to another physical page. The data itself is left
// to the caller: either a disk read fills it or Clear zeroes it.
func (p *RawPage) Reset(pageID disk.PageID) {
	p.pageID = pageID
	p.isDirty = false
	p.pinCount = 0
}

func (p *RawPage) Clear() {
	for i := range p.Data {
		p.Data[i] = 0
	}
}
