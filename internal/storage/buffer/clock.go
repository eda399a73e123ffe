package buffer

import "sync"

// clockReplacer decides which unpinned frame to evict next, using the
// classic second-chance clock algorithm. It is a direct port of
// original_source/src/buffer/clock_replacer.rs, including its exact
// pin/unpin bookkeeping of a free-frame counter and the precise point at
// which the reference bit is cleared versus a frame is chosen.
type clockReplacer struct {
	mu          sync.Mutex
	poolSize    int
	clockHand   int
	freeFrames  int
	pinCounts   []uint32
	refBits     []bool
}

func newClockReplacer(poolSize int) *clockReplacer {
	return &clockReplacer{
		poolSize:   poolSize,
		freeFrames: poolSize,
		pinCounts:  make([]uint32, poolSize),
		refBits:    make([]bool, poolSize),
	}
}

// pin marks frame as in use. The reference bit is unconditionally set;
// the free-frame counter is only decremented on the 0->1 pin transition.
func (c *clockReplacer) pin(frame int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pinCounts[frame] == 0 {
		c.freeFrames--
	}
	c.pinCounts[frame]++
	c.refBits[frame] = true
}

// unpin decrements frame's pin count; at zero it becomes eviction-eligible
// again and the free-frame counter is incremented.
func (c *clockReplacer) unpin(frame int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pinCounts[frame] == 0 {
		return
	}
	c.pinCounts[frame]--
	if c.pinCounts[frame] == 0 {
		c.freeFrames++
	}
}

// findFreeBuffer sweeps from the clock hand, skipping pinned frames and
// clearing set reference bits, and returns the first unpinned frame whose
// reference bit is already clear. An empty frame and a clean cached page
// look the same to the replacer; callers tell them apart with their own
// bookkeeping. Returns (-1, false) iff no frame is unpinned.
func (c *clockReplacer) findFreeBuffer() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.freeFrames == 0 {
		return -1, false
	}
	for {
		frame := c.clockHand
		c.clockHand = (c.clockHand + 1) % c.poolSize
		if c.pinCounts[frame] != 0 {
			continue
		}
		if !c.refBits[frame] {
			return frame, true
		}
		c.refBits[frame] = false
	}
}
