// Package buffer implements the fixed-size buffer pool of spec §4.2: a
// pool of pinned page frames backed by a clock (second-chance) replacement
// policy, loaded and flushed through a pager.FileManager. It is grounded on
// original_source/src/buffer/buffer_manager.rs and clock_replacer.rs.
package buffer

import (
	"fmt"
	"log"
	"sync"

	"github.com/dbcore/erdb/internal/common"
	"github.com/dbcore/erdb/internal/dberr"
	"github.com/dbcore/erdb/internal/storage/pager"
)

// Pool is a fixed-size buffer pool: poolSize frames, each PAGE_SIZE bytes,
// shared by every table.
type Pool struct {
	fileManager *pager.FileManager
	logger      *log.Logger

	replacer *clockReplacer

	// mu protects the page-id <-> frame mapping and frame occupancy/dirty
	// bookkeeping. It is held across a page fault's disk I/O (a simpler,
	// coarser critical section than spec's "short critical sections"
	// language suggests, but it keeps eviction and load atomic with no
	// extra bookkeeping; distinct pages already resident in the pool are
	// still read/written concurrently through their own frame lock).
	mu            sync.Mutex
	pageToFrame   map[common.PageId]int
	frameToPage   []common.PageId
	frameOccupied []bool
	dirty         []bool

	frames  [][]byte
	frameMu []sync.RWMutex
}

// New creates a buffer pool of poolSize frames over fileManager. A nil
// logger falls back to log.Default().
func New(fileManager *pager.FileManager, poolSize int, logger *log.Logger) *Pool {
	if logger == nil {
		logger = log.Default()
	}
	p := &Pool{
		fileManager:   fileManager,
		logger:        logger,
		replacer:      newClockReplacer(poolSize),
		pageToFrame:   make(map[common.PageId]int),
		frameToPage:   make([]common.PageId, poolSize),
		frameOccupied: make([]bool, poolSize),
		dirty:         make([]bool, poolSize),
		frames:        make([][]byte, poolSize),
		frameMu:       make([]sync.RWMutex, poolSize),
	}
	for i := range p.frames {
		p.frames[i] = make([]byte, common.PageSize)
	}
	return p
}

// Guard is a scoped handle on one pinned frame. Call Release exactly once
// when done, with defer or explicitly on every path; it is the Go
// stand-in for the teacher's drop-releases-the-pin idiom.
type Guard struct {
	pool      *Pool
	frame     int
	pageId    common.PageId
	locked    bool
	exclusive bool
}

// PageId reports which page this guard is pinning.
func (g *Guard) PageId() common.PageId { return g.pageId }

// Read acquires a shared lock on the frame and returns its bytes. The
// returned slice is valid until Release is called.
func (g *Guard) Read() []byte {
	g.pool.frameMu[g.frame].RLock()
	g.locked, g.exclusive = true, false
	return g.pool.frames[g.frame]
}

// Write acquires an exclusive lock on the frame and returns its bytes for
// mutation. Callers that mutate the page should also call MarkDirty.
func (g *Guard) Write() []byte {
	g.pool.frameMu[g.frame].Lock()
	g.locked, g.exclusive = true, true
	return g.pool.frames[g.frame]
}

// MarkDirty flags the frame for write-back on the next eviction or
// FlushAll.
func (g *Guard) MarkDirty() {
	g.pool.mu.Lock()
	g.pool.dirty[g.frame] = true
	g.pool.mu.Unlock()
}

// Release unlocks the frame (if a Read/Write lock is held) and unpins it.
func (g *Guard) Release() {
	if g.locked {
		if g.exclusive {
			g.pool.frameMu[g.frame].Unlock()
		} else {
			g.pool.frameMu[g.frame].RUnlock()
		}
		g.locked = false
	}
	g.pool.replacer.unpin(g.frame)
}

// Fetch returns a guard for pageId: a cache hit pins the existing frame
// immediately; a miss evicts (writing back a dirty victim first) and loads
// the page from disk. Returns ok=false, err=nil iff every frame is
// currently pinned.
func (p *Pool) Fetch(pageId common.PageId) (guard *Guard, ok bool, err error) {
	p.mu.Lock()
	if frame, found := p.pageToFrame[pageId]; found {
		p.mu.Unlock()
		p.replacer.pin(frame)
		return &Guard{pool: p, frame: frame, pageId: pageId}, true, nil
	}
	defer p.mu.Unlock()

	frame, found := p.replacer.findFreeBuffer()
	if !found {
		return nil, false, nil
	}

	if p.frameOccupied[frame] {
		victim := p.frameToPage[frame]
		delete(p.pageToFrame, victim)
		if p.dirty[frame] {
			if err := p.fileManager.WritePage(victim.Table, victim.Page, p.frames[frame]); err != nil {
				return nil, false, fmt.Errorf("writing back evicted page %+v: %w", victim, err)
			}
		}
	}

	if err := p.fileManager.ReadPage(pageId.Table, pageId.Page, p.frames[frame]); err != nil {
		return nil, false, err
	}

	p.pageToFrame[pageId] = frame
	p.frameToPage[frame] = pageId
	p.frameOccupied[frame] = true
	p.dirty[frame] = false
	p.replacer.pin(frame)
	return &Guard{pool: p, frame: frame, pageId: pageId}, true, nil
}

// AllocateNewPage appends a new page with the given initial contents
// (which must be exactly PAGE_SIZE bytes) to tableId's file and returns a
// pinned guard for it.
func (p *Pool) AllocateNewPage(tableId common.TableId, initial []byte) (*Guard, common.PageId, error) {
	pageNo, err := p.fileManager.AllocateNewPage(tableId, initial)
	if err != nil {
		return nil, common.PageId{}, err
	}
	pageId := common.PageId{Table: tableId, Page: pageNo}
	g, ok, err := p.Fetch(pageId)
	if err != nil {
		return nil, pageId, err
	}
	if !ok {
		return nil, pageId, dberr.New(dberr.Resource, "buffer.AllocateNewPage", fmt.Errorf("all buffer frames are pinned"))
	}
	return g, pageId, nil
}

// HighestPageNo returns the highest page number currently on disk for
// tableId, or ok=false if the table is empty.
func (p *Pool) HighestPageNo(tableId common.TableId) (common.PageNo, bool, error) {
	return p.fileManager.LastPageNo(tableId)
}

// CreateTable creates tableId's backing file.
func (p *Pool) CreateTable(tableId common.TableId) error {
	return p.fileManager.CreateTable(tableId)
}

// FlushAll writes back every dirty frame and clears its dirty flag. It is
// the operation the checkpoint scheduler calls periodically, and the
// transaction manager calls after every commit/abort status write.
func (p *Pool) FlushAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for frame := 0; frame < len(p.frames); frame++ {
		if !p.frameOccupied[frame] || !p.dirty[frame] {
			continue
		}
		pid := p.frameToPage[frame]
		if err := p.fileManager.WritePage(pid.Table, pid.Page, p.frames[frame]); err != nil {
			return fmt.Errorf("flushing page %+v: %w", pid, err)
		}
		p.dirty[frame] = false
	}
	return nil
}
