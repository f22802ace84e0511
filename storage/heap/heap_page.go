// Package heap is a minimal slotted-page table heap: fixed-size pages
// holding row bytes that grow forward from the page header and a slot
// directory of (offset, length) entries that grows backward from the end
// of the page, RID = (page_id, slot).
// Grounded on storage_engine/access/heapfile_manager/heap_page.go's
// slotted layout, trimmed of its LSN/FileID/PageType header fields
// (those belong to the teacher's multi-file WAL-backed page store,
// both out of this core's scope) and of its forward-growing slot
// directory, which here is replaced by the backward-growing layout
// spec.md's companion B+ tree node pages already use.
package heap

import (
	"encoding/binary"

	"storagecore/storage/page"
	"storagecore/types"
)

// Page layout:
//
//	[ header 8B ][ records -> ][ free space ][ <- slot dir ]
//	0            8                                      page.Size
//
// Header: NextPageID int32 (types.InvalidPageID when this is the last
// page), NumSlots uint16, RecordEnd uint16 (first free byte after the
// last record). Slot i lives at page.Size-(i+1)*slotSize; a slot with
// length 0 is a tombstone.
const (
	headerSize = 8
	slotSize   = 4

	offNextPageID = 0
	offNumSlots   = 4
	offRecordEnd  = 6
)

func initPage(buf []byte, next types.PageID) {
	binary.BigEndian.PutUint32(buf[offNextPageID:], uint32(int32(next)))
	binary.BigEndian.PutUint16(buf[offNumSlots:], 0)
	binary.BigEndian.PutUint16(buf[offRecordEnd:], headerSize)
}

func getNextPageID(buf []byte) types.PageID {
	return types.PageID(int32(binary.BigEndian.Uint32(buf[offNextPageID:])))
}

func setNextPageID(buf []byte, id types.PageID) {
	binary.BigEndian.PutUint32(buf[offNextPageID:], uint32(int32(id)))
}

func getNumSlots(buf []byte) uint16 { return binary.BigEndian.Uint16(buf[offNumSlots:]) }

func setNumSlots(buf []byte, n uint16) { binary.BigEndian.PutUint16(buf[offNumSlots:], n) }

func getRecordEnd(buf []byte) uint16 { return binary.BigEndian.Uint16(buf[offRecordEnd:]) }

func setRecordEnd(buf []byte, v uint16) { binary.BigEndian.PutUint16(buf[offRecordEnd:], v) }

func slotPos(i uint16) int { return page.Size - int(i+1)*slotSize }

func readSlot(buf []byte, i uint16) (offset, length uint16) {
	pos := slotPos(i)
	return binary.BigEndian.Uint16(buf[pos:]), binary.BigEndian.Uint16(buf[pos+2:])
}

func writeSlot(buf []byte, i uint16, offset, length uint16) {
	pos := slotPos(i)
	binary.BigEndian.PutUint16(buf[pos:], offset)
	binary.BigEndian.PutUint16(buf[pos+2:], length)
}

// freeSpace returns the number of unused bytes between the record area
// and the slot directory, optionally reserving a fresh slot entry.
func freeSpace(buf []byte, reserveNewSlot bool) int {
	slotDirStart := page.Size - int(getNumSlots(buf))*slotSize
	if reserveNewSlot {
		slotDirStart -= slotSize
	}
	return slotDirStart - int(getRecordEnd(buf))
}

// insertRecord appends data to the page and returns its slot index,
// reusing a tombstoned slot's entry (but not its bytes) when one
// exists, exactly as the teacher's InsertRecord does.
func insertRecord(buf []byte, data []byte) (uint16, bool) {
	numSlots := getNumSlots(buf)
	reuse := numSlots
	for i := uint16(0); i < numSlots; i++ {
		if _, length := readSlot(buf, i); length == 0 {
			reuse = i
			break
		}
	}
	needsNewSlot := reuse == numSlots
	if freeSpace(buf, needsNewSlot) < len(data) {
		return 0, false
	}

	recordEnd := getRecordEnd(buf)
	copy(buf[recordEnd:], data)
	writeSlot(buf, reuse, recordEnd, uint16(len(data)))
	setRecordEnd(buf, recordEnd+uint16(len(data)))
	if needsNewSlot {
		setNumSlots(buf, numSlots+1)
	}
	return reuse, true
}

// getRecord returns a copy of slot i's bytes, or ok=false if i is out
// of range or tombstoned.
func getRecord(buf []byte, i uint16) ([]byte, bool) {
	if i >= getNumSlots(buf) {
		return nil, false
	}
	offset, length := readSlot(buf, i)
	if length == 0 {
		return nil, false
	}
	out := make([]byte, length)
	copy(out, buf[offset:offset+length])
	return out, true
}

// tombstoneSlot marks slot i deleted without reclaiming its bytes.
func tombstoneSlot(buf []byte, i uint16) bool {
	if i >= getNumSlots(buf) {
		return false
	}
	if _, length := readSlot(buf, i); length == 0 {
		return false
	}
	writeSlot(buf, i, 0, 0)
	return true
}

// updateRecordInPlace overwrites slot i's record with newData when it
// fits in the original allocation; otherwise it leaves the slot unchanged
// and reports false, and the caller must place newData elsewhere.
func updateRecordInPlace(buf []byte, i uint16, newData []byte) bool {
	if i >= getNumSlots(buf) {
		return false
	}
	offset, length := readSlot(buf, i)
	if length == 0 || uint16(len(newData)) > length {
		return false
	}
	copy(buf[offset:], newData)
	writeSlot(buf, i, offset, uint16(len(newData)))
	return true
}

// reviveSlot re-appends data for a previously tombstoned slot i,
// pointing its existing slot entry at the new bytes. Used to undo a
// delete on abort.
func reviveSlot(buf []byte, i uint16, data []byte) bool {
	if i >= getNumSlots(buf) {
		return false
	}
	if freeSpace(buf, false) < len(data) {
		return false
	}
	recordEnd := getRecordEnd(buf)
	copy(buf[recordEnd:], data)
	writeSlot(buf, i, recordEnd, uint16(len(data)))
	setRecordEnd(buf, recordEnd+uint16(len(data)))
	return true
}
