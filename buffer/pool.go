package buffer

import (
	"errors"
	"fmt"
	"sync"

	pkgerrors "github.com/pkg/errors"

	"heapdb/disk"
	"heapdb/disk/pages"
)

var (
	ErrNoVictim      = errors.New("every frame in the pool is pinned")
	ErrPageNotPinned = errors.New("page is not pinned in the pool")
)

type frameKey struct {
	file   *disk.File
	pageNo disk.PageID
}

type frame struct {
	page *pages.RawPage
	file *disk.File
}

// Pool caches page images in a fixed number of frames and tracks pin counts.
// A pinned page is never evicted; dirty pages are written back when their
// frame is victimized or on an explicit flush. One pool serves any number of
// page files, frames are keyed by (file, page id).
type Pool struct {
	frames      []*frame
	pageMap     map[frameKey]int
	emptyFrames []int
	replacer    Replacer
	lock        sync.Mutex
}

func NewPool(poolSize int) *Pool {
	return NewPoolWithReplacer(poolSize, NewClockReplacer(poolSize))
}

func NewPoolWithReplacer(poolSize int, replacer Replacer) *Pool {
	emptyFrames := make([]int, poolSize)
	for i := 0; i < poolSize; i++ {
		emptyFrames[i] = i
	}

	return &Pool{
		frames:      make([]*frame, poolSize),
		pageMap:     map[frameKey]int{},
		emptyFrames: emptyFrames,
		replacer:    replacer,
	}
}

// GetPage pins the page and returns its image, reading it from the file on a
// miss. Every successful call owes exactly one Unpin.
func (p *Pool) GetPage(f *disk.File, pageNo disk.PageID) (*pages.RawPage, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	key := frameKey{file: f, pageNo: pageNo}
	if frameIdx, ok := p.pageMap[key]; ok {
		p.pin(frameIdx)
		return p.frames[frameIdx].page, nil
	}

	frameIdx, err := p.takeFrame()
	if err != nil {
		return nil, err
	}

	fr := p.frames[frameIdx]
	fr.page.Reset(pageNo)
	if err := f.ReadPage(pageNo, fr.page.GetData()); err != nil {
		p.emptyFrames = append(p.emptyFrames, frameIdx)
		return nil, err
	}

	fr.file = f
	p.pageMap[key] = frameIdx
	p.pin(frameIdx)
	return fr.page, nil
}

// AllocPage appends a fresh zeroed page to the file and returns it pinned.
func (p *Pool) AllocPage(f *disk.File) (*pages.RawPage, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	pageNo, err := f.AllocatePage()
	if err != nil {
		return nil, err
	}

	frameIdx, err := p.takeFrame()
	if err != nil {
		return nil, err
	}

	fr := p.frames[frameIdx]
	fr.page.Reset(pageNo)
	fr.page.Clear()
	fr.file = f
	p.pageMap[frameKey{file: f, pageNo: pageNo}] = frameIdx
	p.pin(frameIdx)
	return fr.page, nil
}

// Unpin releases one pin. The dirty flag is sticky: once any unpin reports
// the page dirty it stays dirty until written back. Unpinning a page that is
// not held is reported as ErrPageNotPinned so that close paths can log it
// and carry on.
func (p *Pool) Unpin(f *disk.File, pageNo disk.PageID, dirty bool) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	frameIdx, ok := p.pageMap[frameKey{file: f, pageNo: pageNo}]
	if !ok {
		return pkgerrors.Wrapf(ErrPageNotPinned, "page %v of %s", pageNo, f.Name())
	}

	fr := p.frames[frameIdx]
	if fr.page.GetPinCount() <= 0 {
		return pkgerrors.Wrapf(ErrPageNotPinned, "pin count is already zero, page %v of %s", pageNo, f.Name())
	}

	if dirty {
		fr.page.SetDirty()
	}

	fr.page.DecrPinCount()
	if fr.page.GetPinCount() == 0 {
		p.replacer.Unpin(frameIdx)
	}
	return nil
}

// DropFile discards every frame of the file, dirty or not. Meant for files
// about to be destroyed: their pages are going away, so nothing is written
// back, and the frames return to the empty list instead of lingering as
// unwritable eviction candidates.
func (p *Pool) DropFile(f *disk.File) {
	p.lock.Lock()
	defer p.lock.Unlock()

	for key, frameIdx := range p.pageMap {
		if key.file != f {
			continue
		}

		fr := p.frames[frameIdx]
		if fr.page.GetPinCount() != 0 {
			panic(fmt.Sprintf("dropping a file while page %v is still pinned", fr.page.GetPageId()))
		}

		fr.page.Reset(disk.InvalidPageID)
		fr.file = nil
		delete(p.pageMap, key)
		p.emptyFrames = append(p.emptyFrames, frameIdx)
	}
}

// FlushFile writes every dirty frame of the file back to disk.
func (p *Pool) FlushFile(f *disk.File) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	for _, fr := range p.frames {
		if fr == nil || fr.file != f || !fr.page.IsDirty() {
			continue
		}
		if err := f.WritePage(fr.page.GetPageId(), fr.page.GetData()); err != nil {
			return err
		}
		fr.page.SetClean()
	}
	return nil
}

// FlushAll writes every dirty frame of every file back to disk.
func (p *Pool) FlushAll() error {
	p.lock.Lock()
	defer p.lock.Unlock()

	for _, fr := range p.frames {
		if fr == nil || !fr.page.IsDirty() {
			continue
		}
		if err := fr.file.WritePage(fr.page.GetPageId(), fr.page.GetData()); err != nil {
			return err
		}
		fr.page.SetClean()
	}
	return nil
}

// PinnedCount returns the number of frames holding at least one pin.
func (p *Pool) PinnedCount() int {
	p.lock.Lock()
	defer p.lock.Unlock()

	return p.replacer.NumPinnedPages()
}

// EmptyFrameCount returns the number of frames which do not hold data of any
// physical page.
func (p *Pool) EmptyFrameCount() int {
	p.lock.Lock()
	defer p.lock.Unlock()

	return len(p.emptyFrames)
}

// pin increments the page's pin count and pins its frame in the replacer so
// it cannot be chosen as victim.
func (p *Pool) pin(frameIdx int) {
	fr := p.frames[frameIdx]
	fr.page.IncrPinCount()
	p.replacer.Pin(frameIdx)
}

// takeFrame returns an empty frame, evicting a victim if none is free. The
// returned frame is not yet in the page map.
func (p *Pool) takeFrame() (int, error) {
	if len(p.emptyFrames) > 0 {
		frameIdx := p.emptyFrames[0]
		p.emptyFrames = p.emptyFrames[1:]
		if p.frames[frameIdx] == nil {
			p.frames[frameIdx] = &frame{page: pages.NewRawPage(disk.InvalidPageID)}
		}
		return frameIdx, nil
	}

	victimIdx, err := p.replacer.ChooseVictim()
	if err != nil {
		return 0, err
	}

	victim := p.frames[victimIdx]
	if victim.page.GetPinCount() != 0 {
		panic(fmt.Sprintf("a page is chosen as victim while its pin count is not zero, pin count: %v, page id: %v", victim.page.GetPinCount(), victim.page.GetPageId()))
	}

	if victim.page.IsDirty() {
		if err := victim.file.WritePage(victim.page.GetPageId(), victim.page.GetData()); err != nil {
			return 0, err
		}
		victim.page.SetClean()
	}

	delete(p.pageMap, frameKey{file: victim.file, pageNo: victim.page.GetPageId()})
	return victimIdx, nil
}
