package buffer

import (
	"sync"
)

var _ Replacer = &LruReplacer{}

// LruReplacer evicts the frame whose pin was released longest ago.
type LruReplacer struct {
	unpinned []int
	pinned   map[int]struct{}
	size     int
	lock     sync.Mutex
}

func NewLruReplacer(poolSize int) *LruReplacer {
	return &LruReplacer{
		unpinned: make([]int, 0),
		pinned:   make(map[int]struct{}),
		size:     poolSize,
	}
}

func (l *LruReplacer) Pin(frameID int) {
	l.lock.Lock()
	defer l.lock.Unlock()

	idx, ok := l.findFrameID(frameID)
	if ok {
		copy(l.unpinned[idx:], l.unpinned[idx+1:])
		l.unpinned = l.unpinned[:len(l.unpinned)-1]
	}
	l.pinned[frameID] = struct{}{}
}

func (l *LruReplacer) Unpin(frameID int) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if _, ok := l.pinned[frameID]; !ok {
		panic("unpinning a frame which is not pinned")
	}
	if _, ok := l.findFrameID(frameID); ok {
		panic("unpinning a frame which is already unpinned")
	}

	l.unpinned = append(l.unpinned, frameID)
	delete(l.pinned, frameID)
}

func (l *LruReplacer) ChooseVictim() (int, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if len(l.unpinned) == 0 {
		return 0, ErrNoVictim
	}

	victim := l.unpinned[0]
	l.unpinned = l.unpinned[1:]
	return victim, nil
}

func (l *LruReplacer) GetSize() int {
	return l.size
}

func (l *LruReplacer) NumPinnedPages() int {
	return len(l.pinned)
}

func (l *LruReplacer) findFrameID(frameID int) (int, bool) {
	for idx, curr := range l.unpinned {
		if curr == frameID {
			return idx, true
		}
	}
	return 0, false
}
