package heap

import (
	"storagecore/storage/buffer"
	"storagecore/types"
)

// Iterator walks a TableHeap's page chain in insertion order, skipping
// tombstoned slots, holding at most one page's read latch at a time —
// the same one-guard-at-a-time discipline index/bplustree/iterator.go
// uses for leaf traversal.
type Iterator struct {
	pool   *buffer.Pool
	schema *types.Schema

	pageID   types.PageID
	guard    *buffer.ReadGuard
	slot     uint16
	numSlots uint16
	done     bool
}

// Scan returns an Iterator positioned at the first live tuple.
func (h *TableHeap) Scan(schema *types.Schema) *Iterator {
	it := &Iterator{pool: h.pool, schema: schema, pageID: h.firstPageID}
	it.loadPage()
	it.skipToLive()
	return it
}

func (it *Iterator) loadPage() {
	guard, ok := buffer.FetchPageRead(it.pool, it.pageID)
	if !ok {
		it.done = true
		return
	}
	it.guard = guard
	it.numSlots = getNumSlots(guard.Data())
	it.slot = 0
}

func (it *Iterator) skipToLive() {
	for !it.done {
		if it.slot < it.numSlots {
			if _, length := readSlot(it.guard.Data(), it.slot); length > 0 {
				return
			}
			it.slot++
			continue
		}
		next := getNextPageID(it.guard.Data())
		it.guard.Drop()
		it.guard = nil
		if next == types.InvalidPageID {
			it.done = true
			return
		}
		it.pageID = next
		it.loadPage()
	}
}

// Valid reports whether Tuple/RID are safe to call.
func (it *Iterator) Valid() bool { return !it.done }

// Tuple returns the current row.
func (it *Iterator) Tuple() (*types.Tuple, error) {
	data, _ := getRecord(it.guard.Data(), it.slot)
	return types.DeserializeTuple(data, it.schema)
}

// RID returns the current row's identifier.
func (it *Iterator) RID() types.RID {
	return types.RID{PageID: it.pageID, Slot: uint32(it.slot)}
}

// Next advances to the following live tuple.
func (it *Iterator) Next() {
	if it.done {
		return
	}
	it.slot++
	it.skipToLive()
}

// Close releases the iterator's current page latch, if any. Idempotent.
func (it *Iterator) Close() {
	if it.guard != nil {
		it.guard.Drop()
		it.guard = nil
	}
	it.done = true
}
