package heapfile

import (
	"bytes"
	"encoding/binary"

	"heapdb/common"
	"heapdb/disk/pages"
)

// MaxNameSize bounds the file name stored in the header page.
const MaxNameSize = 64

/*
 * Header page format (page 0 of the file, big-endian):
 *  -----------------------------------------------------------------
 *  | RecCount (4) | PageCount (4) | FirstPageID (4) | LastPageID (4) |
 *  -----------------------------------------------------------------
 *  | NameLen (2) | Name (up to MaxNameSize) |
 *  -------------------------------------------
 */

type fileHeader struct {
	RecCount    int32
	PageCount   int32
	FirstPageID int32
	LastPageID  int32
}

var fileHeaderSize = binary.Size(fileHeader{})

// headerPage wraps the pinned header frame. Setters write straight into the
// frame's image so the dirty-flag/flush contract of the pool applies; the
// wrapper itself keeps no state.
type headerPage struct {
	page *pages.RawPage
}

func (h *headerPage) header() fileHeader {
	reader := bytes.NewReader(h.page.GetData())
	dest := fileHeader{}
	binary.Read(reader, binary.BigEndian, &dest)
	return dest
}

func (h *headerPage) setHeader(fh fileHeader) {
	buf := bytes.Buffer{}

	// NOTE: this error is actually the error returned by bytes.Buffer.Write call which always returns nil hence no need to check
	err := binary.Write(&buf, binary.BigEndian, &fh)
	common.PanicIfErr(err)

	copy(h.page.GetData(), buf.Bytes())
}

func (h *headerPage) fileName() string {
	data := h.page.GetData()[fileHeaderSize:]
	nameLen := binary.BigEndian.Uint16(data)
	return string(data[2 : 2+int(nameLen)])
}

// setFileName copies name into the header, truncated to MaxNameSize. Set
// once at creation, immutable thereafter.
func (h *headerPage) setFileName(name string) {
	if len(name) > MaxNameSize {
		name = name[:MaxNameSize]
	}

	data := h.page.GetData()[fileHeaderSize:]
	binary.BigEndian.PutUint16(data, uint16(len(name)))
	copy(data[2:], name)
}
