package types

import "fmt"

// PageID identifies a page across the whole database, analogous to the
// teacher's globalPageID (storage_engine/disk_manager/main.go), but kept
// as a plain int32 here since file-id encoding is an on-disk-layout
// concern out of this core's scope.
type PageID int32

// InvalidPageID is the sentinel for "no page" — used by the B+ tree
// header's root id and by iterator end-of-range.
const InvalidPageID PageID = -1

// FrameID indexes into the buffer pool's frame array.
type FrameID int32

// RID identifies a row within a table heap: (page, slot), exactly the
// shape of the teacher's RowPointer (types/row.go) minus the file-id
// field, which is out of this core's scope.
type RID struct {
	PageID PageID
	Slot   uint32
}

func (r RID) String() string {
	return fmt.Sprintf("%d:%d", r.PageID, r.Slot)
}

// TableOID identifies a table in the catalog.
type TableOID uint32

// IndexOID identifies an index in the catalog.
type IndexOID uint32

// TxnID identifies a transaction.
type TxnID int64
