package heap

import (
	"fmt"
	"sync"

	"storagecore/logging"
	"storagecore/storage/buffer"
	"storagecore/types"
)

var log = logging.For("heap")

// TableHeap is an append-mostly chain of slotted pages for one table,
// grounded on storage_engine/access/heapfile_manager/heapfile_manager.go's
// CreateHeapfile/LoadHeapFile shape, simplified from that file's
// per-table OS file (this core's disk manager is single-file, per
// DESIGN.md) to a linked chain of buffer-pool pages reached through
// NextPageID, the same linking idiom the B+ tree leaves use.
type TableHeap struct {
	mu          sync.Mutex
	pool        *buffer.Pool
	firstPageID types.PageID
	lastPageID  types.PageID
}

// NewTableHeap allocates the first (empty) page of a new table heap.
func NewTableHeap(pool *buffer.Pool) (*TableHeap, error) {
	guard, id, ok := buffer.NewPageWrite(pool)
	if !ok {
		return nil, fmt.Errorf("heap: failed to allocate first page")
	}
	initPage(guard.Data(), types.InvalidPageID)
	guard.Drop()
	log.WithField("page", id).Debug("table heap created")
	return &TableHeap{pool: pool, firstPageID: id, lastPageID: id}, nil
}

// OpenTableHeap binds a TableHeap to a previously-created chain,
// walking it once to find the current last page (e.g. after a catalog
// restart, mirroring LoadHeapFile's page-chain re-registration).
func OpenTableHeap(pool *buffer.Pool, firstPageID types.PageID) (*TableHeap, error) {
	last := firstPageID
	for {
		guard, ok := buffer.FetchPageRead(pool, last)
		if !ok {
			return nil, fmt.Errorf("heap: page %d unavailable while opening heap", last)
		}
		next := getNextPageID(guard.Data())
		guard.Drop()
		if next == types.InvalidPageID {
			break
		}
		last = next
	}
	return &TableHeap{pool: pool, firstPageID: firstPageID, lastPageID: last}, nil
}

// FirstPageID exposes the head of the page chain, e.g. for catalog
// persistence of a table's heap location.
func (h *TableHeap) FirstPageID() types.PageID { return h.firstPageID }

// InsertTuple serializes tuple and appends it to the last page,
// allocating and linking a new page when the current one is full.
func (h *TableHeap) InsertTuple(tuple *types.Tuple) (types.RID, error) {
	data := tuple.Serialize()

	h.mu.Lock()
	defer h.mu.Unlock()

	guard, ok := buffer.FetchPageWrite(h.pool, h.lastPageID)
	if !ok {
		return types.RID{}, fmt.Errorf("heap: last page %d unavailable", h.lastPageID)
	}
	if slot, ok := insertRecord(guard.Data(), data); ok {
		guard.Drop()
		return types.RID{PageID: h.lastPageID, Slot: uint32(slot)}, nil
	}
	guard.Drop()

	newGuard, newID, ok := buffer.NewPageWrite(h.pool)
	if !ok {
		return types.RID{}, fmt.Errorf("heap: failed to allocate overflow page")
	}
	initPage(newGuard.Data(), types.InvalidPageID)
	slot, ok := insertRecord(newGuard.Data(), data)
	newGuard.Drop()
	if !ok {
		return types.RID{}, fmt.Errorf("heap: tuple of %d bytes too large for an empty page", len(data))
	}

	oldGuard, ok := buffer.FetchPageWrite(h.pool, h.lastPageID)
	if !ok {
		return types.RID{}, fmt.Errorf("heap: last page %d unavailable while linking", h.lastPageID)
	}
	setNextPageID(oldGuard.Data(), newID)
	oldGuard.Drop()

	h.lastPageID = newID
	return types.RID{PageID: newID, Slot: uint32(slot)}, nil
}

// GetTuple reads and deserializes the tuple at rid.
func (h *TableHeap) GetTuple(rid types.RID, schema *types.Schema) (*types.Tuple, error) {
	guard, ok := buffer.FetchPageRead(h.pool, rid.PageID)
	if !ok {
		return nil, fmt.Errorf("heap: page %d unavailable", rid.PageID)
	}
	data, ok := getRecord(guard.Data(), uint16(rid.Slot))
	guard.Drop()
	if !ok {
		return nil, fmt.Errorf("heap: rid %s is deleted or out of range", rid)
	}
	return types.DeserializeTuple(data, schema)
}

// DeleteTuple tombstones rid. The row's bytes are not reclaimed; a later
// InsertTuple that lands on the same page may reuse its slot entry.
func (h *TableHeap) DeleteTuple(rid types.RID) error {
	guard, ok := buffer.FetchPageWrite(h.pool, rid.PageID)
	if !ok {
		return fmt.Errorf("heap: page %d unavailable", rid.PageID)
	}
	ok = tombstoneSlot(guard.Data(), uint16(rid.Slot))
	guard.Drop()
	if !ok {
		return fmt.Errorf("heap: rid %s already deleted or out of range", rid)
	}
	return nil
}

// UpdateTuple overwrites rid in place when newTuple's serialized form
// fits the original allocation; otherwise it tombstones rid and
// re-inserts newTuple elsewhere, returning the tuple's (possibly new)
// RID, mirroring the teacher's UpdateRecord move-on-overflow contract.
func (h *TableHeap) UpdateTuple(rid types.RID, newTuple *types.Tuple) (types.RID, error) {
	data := newTuple.Serialize()

	guard, ok := buffer.FetchPageWrite(h.pool, rid.PageID)
	if !ok {
		return types.RID{}, fmt.Errorf("heap: page %d unavailable", rid.PageID)
	}
	if updateRecordInPlace(guard.Data(), uint16(rid.Slot), data) {
		guard.Drop()
		return rid, nil
	}
	_, live := getRecord(guard.Data(), uint16(rid.Slot))
	guard.Drop()
	if !live {
		return types.RID{}, fmt.Errorf("heap: rid %s already deleted or out of range", rid)
	}

	// The new image is inserted before rid is tombstoned, so it cannot
	// land back in rid's own slot entry.
	newRID, err := h.InsertTuple(newTuple)
	if err != nil {
		return types.RID{}, err
	}
	if err := h.DeleteTuple(rid); err != nil {
		return types.RID{}, err
	}
	return newRID, nil
}

// UndoInsert compensates an insert on abort: the row is tombstoned.
func (h *TableHeap) UndoInsert(rid types.RID) error {
	return h.DeleteTuple(rid)
}

// UndoDelete compensates a delete on abort: before's bytes are
// re-appended and rid's slot entry is pointed at them again.
func (h *TableHeap) UndoDelete(rid types.RID, before *types.Tuple) error {
	data := before.Serialize()
	guard, ok := buffer.FetchPageWrite(h.pool, rid.PageID)
	if !ok {
		return fmt.Errorf("heap: page %d unavailable", rid.PageID)
	}
	ok = reviveSlot(guard.Data(), uint16(rid.Slot), data)
	guard.Drop()
	if !ok {
		return fmt.Errorf("heap: failed to revive rid %s", rid)
	}
	return nil
}

// UndoUpdate compensates an update on abort by writing before's bytes
// back over rid, which must still fit since it held exactly this image
// before the update that is being undone.
func (h *TableHeap) UndoUpdate(rid types.RID, before *types.Tuple) error {
	data := before.Serialize()
	guard, ok := buffer.FetchPageWrite(h.pool, rid.PageID)
	if !ok {
		return fmt.Errorf("heap: page %d unavailable", rid.PageID)
	}
	ok = updateRecordInPlace(guard.Data(), uint16(rid.Slot), data)
	guard.Drop()
	if !ok {
		return fmt.Errorf("heap: failed to undo update at rid %s", rid)
	}
	return nil
}
