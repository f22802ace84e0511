// Package buffer implements the buffer pool manager: the fixed-capacity
// cache of disk pages that mediates all page I/O for the B+ tree and
// table heap. Grounded on storage_engine/bufferpool/bufferpool.go's
// free-list + page-table + per-frame array shape, with the teacher's
// plain access-order slice swapped for the LRU-K replacer (storage/
// replacer) and its ad hoc fmt.Printf trace lines swapped for logrus.
package buffer

import (
	"fmt"
	"sync"

	humanize "github.com/dustin/go-humanize"

	"storagecore/config"
	"storagecore/logging"
	"storagecore/storage/disk"
	"storagecore/storage/page"
	"storagecore/storage/replacer"
	"storagecore/types"
)

var log = logging.For("bufferpool")

// Pool is the buffer pool manager. All public operations are protected
// by a single pool mutex, matching spec.md §4.2's "all latch-protected
// by a single pool mutex" contract; the per-page reader/writer latch is
// a separate, finer-grained lock used by page guards.
type Pool struct {
	mu sync.Mutex

	frames    []page.Page
	pageTable map[types.PageID]types.FrameID
	freeList  []types.FrameID
	replacer  *replacer.LRUKReplacer
	disk      disk.Manager
}

// NewPool builds a pool of cfg.BufferPoolSize frames backed by disk.
func NewPool(cfg *config.Config, d disk.Manager) *Pool {
	p := &Pool{
		frames:    make([]page.Page, cfg.BufferPoolSize),
		pageTable: make(map[types.PageID]types.FrameID),
		replacer:  replacer.NewLRUKReplacer(cfg.ReplacerK),
		disk:      d,
	}
	p.freeList = make([]types.FrameID, cfg.BufferPoolSize)
	for i := range p.freeList {
		p.freeList[i] = types.FrameID(i)
	}
	log.WithField("frames", cfg.BufferPoolSize).
		WithField("bytes", humanize.Bytes(uint64(cfg.BufferPoolSize*cfg.PageSize))).
		Info("buffer pool initialized")
	return p
}

// findVictimFrame returns a frame to recycle: the free list first, else
// an evicted frame. Caller must hold p.mu.
func (p *Pool) findVictimFrame() (types.FrameID, bool) {
	if n := len(p.freeList); n > 0 {
		f := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		return f, true
	}
	frame, ok := p.replacer.Evict()
	if !ok {
		return 0, false
	}
	victim := &p.frames[frame]
	if victim.IsDirty() {
		if err := p.disk.WritePage(types.PageID(victim.ID()), victim.Data()); err != nil {
			log.WithError(err).WithField("page_id", victim.ID()).Error("write back during eviction failed")
		}
	}
	delete(p.pageTable, types.PageID(victim.ID()))
	return frame, true
}

// NewPage allocates a fresh page id and pins it in a frame. Returns nil
// if every frame is pinned and unevictable.
func (p *Pool) NewPage() (types.PageID, *page.Page, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	frame, ok := p.findVictimFrame()
	if !ok {
		return types.InvalidPageID, nil, false
	}

	id := p.disk.AllocatePage()
	pg := &p.frames[frame]
	pg.Reset()
	pg.SetID(int32(id))
	pg.Pin()

	p.pageTable[id] = frame
	p.replacer.RecordAccess(frame)
	p.replacer.SetEvictable(frame, false)

	log.WithField("page_id", id).Debug("new page")
	return id, pg, true
}

// FetchPage returns the page for id, reading it from disk on first
// fault-in. Returns nil if no frame is available.
func (p *Pool) FetchPage(id types.PageID) (*page.Page, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if frame, ok := p.pageTable[id]; ok {
		pg := &p.frames[frame]
		pg.Pin()
		p.replacer.RecordAccess(frame)
		p.replacer.SetEvictable(frame, false)
		return pg, true
	}

	frame, ok := p.findVictimFrame()
	if !ok {
		return nil, false
	}

	pg := &p.frames[frame]
	pg.Reset()
	pg.SetID(int32(id))
	if err := p.disk.ReadPage(id, pg.Data()); err != nil {
		log.WithError(err).WithField("page_id", id).Error("fetch page failed")
		p.freeList = append(p.freeList, frame)
		return nil, false
	}
	pg.Pin()

	p.pageTable[id] = frame
	p.replacer.RecordAccess(frame)
	p.replacer.SetEvictable(frame, false)

	return pg, true
}

// UnpinPage decrements the pin count for id, OR-ing in isDirty, and
// marks the frame evictable once the pin count reaches zero. Returns
// false if id is unknown or already unpinned.
func (p *Pool) UnpinPage(id types.PageID, isDirty bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	frame, ok := p.pageTable[id]
	if !ok {
		return false
	}
	pg := &p.frames[frame]
	if !pg.Unpin() {
		return false
	}
	pg.SetDirty(isDirty)
	if pg.PinCount() == 0 {
		p.replacer.SetEvictable(frame, true)
	}
	return true
}

// FlushPage writes id to disk unconditionally and clears its dirty
// flag.
func (p *Pool) FlushPage(id types.PageID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushLocked(id)
}

func (p *Pool) flushLocked(id types.PageID) bool {
	frame, ok := p.pageTable[id]
	if !ok {
		return false
	}
	pg := &p.frames[frame]
	if err := p.disk.WritePage(id, pg.Data()); err != nil {
		log.WithError(err).WithField("page_id", id).Error("flush page failed")
		return false
	}
	pg.ClearDirty()
	return true
}

// FlushAllPages flushes every resident page.
func (p *Pool) FlushAllPages() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id := range p.pageTable {
		p.flushLocked(id)
	}
}

// DeletePage removes id from the pool, flushing it first if dirty.
// Returns false if id is currently pinned. Idempotent: returns true for
// an id that is not resident.
func (p *Pool) DeletePage(id types.PageID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	frame, ok := p.pageTable[id]
	if !ok {
		return true
	}
	pg := &p.frames[frame]
	if pg.PinCount() > 0 {
		return false
	}
	if pg.IsDirty() {
		if err := p.disk.WritePage(id, pg.Data()); err != nil {
			log.WithError(err).WithField("page_id", id).Error("flush during delete failed")
		}
	}
	delete(p.pageTable, id)
	p.replacer.Remove(frame)
	pg.SetID(int32(types.InvalidPageID))
	p.freeList = append(p.freeList, frame)
	p.disk.DeallocatePage(id)
	return true
}

// String implements fmt.Stringer for debug logging.
func (p *Pool) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fmt.Sprintf("Pool{resident=%d free=%d}", len(p.pageTable), len(p.freeList))
}
