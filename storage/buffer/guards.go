package buffer

import "storagecore/types"

// peek returns the resident page for id without pinning it — used
// internally by guards that already hold a pin (and, for Read/Write
// guards, a latch) to reach the page again at Drop time without
// re-entering the pin/fetch path. It is not exported: guard
// construction is the only sanctioned way to obtain a page reference
// from outside this package.
func (p *Pool) peek(id types.PageID) (*PagePeek, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	frame, ok := p.pageTable[id]
	if !ok {
		return nil, false
	}
	return &PagePeek{pg: &p.frames[frame]}, true
}

// PagePeek is a thin, non-pinning handle onto a resident page, used
// only by guards to release their latch on Drop.
type PagePeek struct {
	pg interface {
		RLock()
		RUnlock()
		Lock()
		Unlock()
		Data() []byte
	}
}

func (h *PagePeek) RUnlock() { h.pg.RUnlock() }
func (h *PagePeek) Unlock()  { h.pg.Unlock() }

// BasicGuard couples a page's pin lifetime to a scope: it unpins on
// Drop and records dirtiness based on whether mutable access was
// requested at construction. Guards are move-only — moved-from guards
// must become inert so Drop never double-unpins. This formalizes the
// unpin-at-every-call-site discipline the teacher hand-rolls throughout
// storage_engine/bufferpool, per spec.md §9's design note on buffer
// pool / guard cyclic references.
type BasicGuard struct {
	pool    *Pool
	pageID  types.PageID
	dataRef []byte
	dirty   bool
	dropped bool
}

// FetchPageBasic fetches id and wraps it in a BasicGuard. mutable
// records whether the caller intends to write the page, which becomes
// the dirty flag passed to UnpinPage on Drop.
func FetchPageBasic(p *Pool, id types.PageID, mutable bool) (*BasicGuard, bool) {
	pg, ok := p.FetchPage(id)
	if !ok {
		return nil, false
	}
	return &BasicGuard{pool: p, pageID: id, dataRef: pg.Data(), dirty: mutable}, true
}

// NewPageBasic allocates a fresh page and wraps it in a BasicGuard.
func NewPageBasic(p *Pool) (*BasicGuard, types.PageID, bool) {
	id, pg, ok := p.NewPage()
	if !ok {
		return nil, types.InvalidPageID, false
	}
	return &BasicGuard{pool: p, pageID: id, dataRef: pg.Data(), dirty: true}, id, true
}

// PageID returns the guarded page's id.
func (g *BasicGuard) PageID() types.PageID { return g.pageID }

// Data exposes the raw page bytes. No latch is taken: BasicGuard is for
// callers that already serialize access some other way (e.g. holding
// the tree's ancestor write-latch stack); real concurrent readers/
// writers should use ReadGuard/WriteGuard instead.
func (g *BasicGuard) Data() []byte { return g.dataRef }

// MarkDirty flags the page dirty regardless of the guard's mutable
// setting.
func (g *BasicGuard) MarkDirty() { g.dirty = true }

// Drop unpins the page, recording dirtiness. Idempotent; a moved-from
// (zero-value) guard's Drop is a no-op.
func (g *BasicGuard) Drop() {
	if g == nil || g.dropped || g.pool == nil {
		return
	}
	g.pool.UnpinPage(g.pageID, g.dirty)
	g.dropped = true
}

// ReadGuard additionally holds the page's reader latch for its
// lifetime, released on Drop.
type ReadGuard struct {
	pool    *Pool
	pageID  types.PageID
	dataRef []byte
	dropped bool
}

// FetchPageRead pins id, takes its reader latch, and returns a ReadGuard.
func FetchPageRead(p *Pool, id types.PageID) (*ReadGuard, bool) {
	pg, ok := p.FetchPage(id)
	if !ok {
		return nil, false
	}
	pg.RLock()
	return &ReadGuard{pool: p, pageID: id, dataRef: pg.Data()}, true
}

// PageID returns the guarded page's id.
func (g *ReadGuard) PageID() types.PageID { return g.pageID }

// Data returns the page's bytes for reading. Valid until Drop.
func (g *ReadGuard) Data() []byte { return g.dataRef }

// Drop releases the reader latch and unpins the page. Idempotent.
func (g *ReadGuard) Drop() {
	if g == nil || g.dropped || g.pool == nil {
		return
	}
	if h, ok := g.pool.peek(g.pageID); ok {
		h.RUnlock()
	}
	g.pool.UnpinPage(g.pageID, false)
	g.dropped = true
}

// WriteGuard additionally holds the page's writer latch for its
// lifetime, released on Drop.
type WriteGuard struct {
	pool    *Pool
	pageID  types.PageID
	dataRef []byte
	dropped bool
}

// FetchPageWrite pins id, takes its writer latch, and returns a
// WriteGuard.
func FetchPageWrite(p *Pool, id types.PageID) (*WriteGuard, bool) {
	pg, ok := p.FetchPage(id)
	if !ok {
		return nil, false
	}
	pg.Lock()
	return &WriteGuard{pool: p, pageID: id, dataRef: pg.Data()}, true
}

// NewPageWrite allocates a fresh page, takes its writer latch, and
// returns a WriteGuard plus the new page's id.
func NewPageWrite(p *Pool) (*WriteGuard, types.PageID, bool) {
	id, pg, ok := p.NewPage()
	if !ok {
		return nil, types.InvalidPageID, false
	}
	pg.Lock()
	return &WriteGuard{pool: p, pageID: id, dataRef: pg.Data()}, id, true
}

// PageID returns the guarded page's id.
func (g *WriteGuard) PageID() types.PageID { return g.pageID }

// Data returns the page's bytes for reading or writing. Valid until
// Drop.
func (g *WriteGuard) Data() []byte { return g.dataRef }

// Drop releases the writer latch and unpins the page as dirty.
// Idempotent.
func (g *WriteGuard) Drop() {
	if g == nil || g.dropped || g.pool == nil {
		return
	}
	if h, ok := g.pool.peek(g.pageID); ok {
		h.Unlock()
	}
	g.pool.UnpinPage(g.pageID, true)
	g.dropped = true
}
