package heapfile

import (
	"fmt"

	"heapdb/disk"
	"heapdb/disk/pages"
)

// RID uniquely addresses one record within one page of a heap file.
type RID struct {
	PageNo disk.PageID
	SlotNo pages.SlotID
}

// NullRID denotes "no current record".
var NullRID = RID{PageNo: disk.InvalidPageID, SlotNo: pages.InvalidSlotID}

func (r RID) String() string {
	return fmt.Sprintf("(%d.%d)", r.PageNo, r.SlotNo)
}
