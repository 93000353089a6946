package buffer

// Replacer decides which unpinned frame gives up its page when the pool is
// full. Pinned frames are never eligible.
type Replacer interface {
	Pin(frameID int)
	Unpin(frameID int)
	ChooseVictim() (frameID int, err error)
	GetSize() int
	NumPinnedPages() int
}
