package buffer

import (
	"sync"
)

const (
	pinnedBit       uint8 = 1 << 7
	secondChanceBit uint8 = 1 << 6
)

var _ Replacer = &ClockReplacer{}

// ClockReplacer is a second-chance clock over the pool's frames. Recently
// pinned frames survive one sweep before they can be chosen.
type ClockReplacer struct {
	frames         []uint8
	victimIterator int
	lock           sync.Mutex
}

func NewClockReplacer(size int) *ClockReplacer {
	return &ClockReplacer{
		frames: make([]uint8, size),
	}
}

func (c *ClockReplacer) Pin(frameID int) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.frames[frameID] |= pinnedBit
	c.frames[frameID] |= secondChanceBit
}

func (c *ClockReplacer) Unpin(frameID int) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.frames[frameID]&pinnedBit == 0 {
		panic("unpinning a frame which is already unpinned or not pinned at all")
	}

	c.frames[frameID] &= ^pinnedBit
}

func (c *ClockReplacer) ChooseVictim() (int, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	st := c.victimIterator
	pass := 0
	for {
		f := c.frames[c.victimIterator]
		if f&pinnedBit == 0 {
			if f&secondChanceBit > 0 {
				c.frames[c.victimIterator] &= ^secondChanceBit
			} else {
				victim := c.victimIterator
				c.victimIterator = (c.victimIterator + 1) % c.GetSize()
				return victim, nil
			}
		}

		c.victimIterator = (c.victimIterator + 1) % c.GetSize()

		if c.victimIterator == st {
			if pass == 0 {
				pass++
			} else {
				return 0, ErrNoVictim
			}
		}
	}
}

func (c *ClockReplacer) GetSize() int {
	return len(c.frames)
}

func (c *ClockReplacer) NumPinnedPages() int {
	i := 0
	for _, frame := range c.frames {
		if frame&pinnedBit > 0 {
			i++
		}
	}

	return i
}
