package heapfile

import (
	"errors"

	"heapdb/disk"
	"heapdb/disk/pages"
)

var (
	// file-level existence conflicts, surfaced by the disk layer.
	ErrFileExists   = disk.ErrFileExists
	ErrFileNotFound = disk.ErrFileNotFound

	// ErrRecordNotFound reports a RID whose slot is invalid or empty.
	ErrRecordNotFound = pages.ErrRecordNotFound

	// ErrEndOfFile signals scan exhaustion. It is the normal way a scan
	// ends, not a defect.
	ErrEndOfFile = errors.New("end of heap file reached")

	// ErrBadScanParam reports an invalid filter specification.
	ErrBadScanParam = errors.New("bad scan parameter")

	// ErrInvalidRecordLength reports a record larger than a page payload.
	ErrInvalidRecordLength = errors.New("record length exceeds page capacity")
)
