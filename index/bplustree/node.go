// Package bplus implements the concurrent, disk-backed B+ tree index of
// spec.md §4.3: fixed int64 keys, RID values, latch-crabbing traversal.
// Node layout and the split/merge/redistribute shapes are grounded on
// storage_engine/access/indexfile_manager/bplustree (struct.go,
// insertion.go, split_leaf.go, split_internal.go, deletion.go), adapted
// from that package's variable-length []byte keys protected by one
// tree-wide sync.RWMutex to spec.md's fixed-size keys protected by
// per-page latches obtained through buffer pool guards.
package bplus

import (
	"encoding/binary"

	"storagecore/types"
)

// pageTag distinguishes header/internal/leaf pages, stored as the first
// byte of every page this package owns.
type pageTag byte

const (
	tagHeader pageTag = iota
	tagInternal
	tagLeaf
)

// Layout offsets shared by internal and leaf pages.
const (
	offTag      = 0
	offSize     = 1 // int32
	offMaxSize  = 5 // int32
	offNextLeaf = 9 // int32, leaf only
	offEntries  = 13
)

const headerRootOffset = 1 // int32, right after offTag

// entrySize is the on-page size of one (key, value) or (key, child)
// entry: an 8-byte key plus an 8-byte payload (child page id padded, or
// RID encoded as pageID+slot).
const entrySize = 16

// Node is the in-memory decoded form of one B+ tree page. Internal
// nodes use Children; leaves use Values and NextLeaf. Slot 0's key is
// unused for internal nodes (only Children[0] matters), matching
// spec.md §3.
type Node struct {
	PageID   types.PageID
	IsLeaf   bool
	Size     int
	MaxSize  int
	Keys     []int64
	Children []types.PageID // internal only, len == Size
	Values   []types.RID    // leaf only, len == Size
	NextLeaf types.PageID   // leaf only
}

// newInternal builds an empty internal node.
func newInternal(pageID types.PageID, maxSize int) *Node {
	return &Node{PageID: pageID, IsLeaf: false, MaxSize: maxSize}
}

// newLeaf builds an empty leaf node.
func newLeaf(pageID types.PageID, maxSize int) *Node {
	return &Node{PageID: pageID, IsLeaf: true, MaxSize: maxSize, NextLeaf: types.InvalidPageID}
}

// Encode serializes the node into a page-sized buffer.
func (n *Node) Encode(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
	if n.IsLeaf {
		buf[offTag] = byte(tagLeaf)
	} else {
		buf[offTag] = byte(tagInternal)
	}
	binary.BigEndian.PutUint32(buf[offSize:], uint32(n.Size))
	binary.BigEndian.PutUint32(buf[offMaxSize:], uint32(n.MaxSize))
	if n.IsLeaf {
		binary.BigEndian.PutUint32(buf[offNextLeaf:], uint32(n.NextLeaf))
	}
	off := offEntries
	for i := 0; i < n.Size; i++ {
		binary.BigEndian.PutUint64(buf[off:], uint64(n.Keys[i]))
		off += 8
		if n.IsLeaf {
			binary.BigEndian.PutUint32(buf[off:], uint32(n.Values[i].PageID))
			binary.BigEndian.PutUint32(buf[off+4:], n.Values[i].Slot)
		} else {
			binary.BigEndian.PutUint32(buf[off:], uint32(n.Children[i]))
		}
		off += 8
	}
}

// DecodeNode reads a Node back out of a page-sized buffer.
func DecodeNode(pageID types.PageID, buf []byte) *Node {
	tag := pageTag(buf[offTag])
	size := int(binary.BigEndian.Uint32(buf[offSize:]))
	maxSize := int(binary.BigEndian.Uint32(buf[offMaxSize:]))
	n := &Node{PageID: pageID, IsLeaf: tag == tagLeaf, Size: size, MaxSize: maxSize}
	if n.IsLeaf {
		n.NextLeaf = types.PageID(binary.BigEndian.Uint32(buf[offNextLeaf:]))
		n.Values = make([]types.RID, size)
	} else {
		n.Children = make([]types.PageID, size)
	}
	n.Keys = make([]int64, size)
	off := offEntries
	for i := 0; i < size; i++ {
		n.Keys[i] = int64(binary.BigEndian.Uint64(buf[off:]))
		off += 8
		if n.IsLeaf {
			n.Values[i] = types.RID{
				PageID: types.PageID(binary.BigEndian.Uint32(buf[off:])),
				Slot:   binary.BigEndian.Uint32(buf[off+4:]),
			}
		} else {
			n.Children[i] = types.PageID(binary.BigEndian.Uint32(buf[off:]))
		}
		off += 8
	}
	return n
}

// IsHeaderPage reports whether buf looks like a header page (used by
// callers that fetch a page without knowing its kind in advance).
func IsHeaderPage(buf []byte) bool { return pageTag(buf[offTag]) == tagHeader }

// --- internal node operations (spec.md §4.3.1) ---

// FindChild performs the binary search spec.md describes: returns the
// last index i with KeyAt(i) <= key (slot 0's key is ignored and always
// a candidate).
func (n *Node) FindChild(key int64) int {
	// Invariant: n.Keys[0] is unused. Search among [1, Size).
	lo, hi := 1, n.Size
	for lo < hi {
		mid := (lo + hi) / 2
		if n.Keys[mid] <= key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo - 1
}

// InsertChild inserts (key, child) at the internal node's sorted
// position (key ignored for slot 0 semantics — callers insert at the
// index already determined by the split/new-root logic).
func (n *Node) InsertChild(index int, key int64, child types.PageID) {
	n.Keys = append(n.Keys, 0)
	copy(n.Keys[index+1:], n.Keys[index:])
	n.Keys[index] = key
	n.Children = append(n.Children, 0)
	copy(n.Children[index+1:], n.Children[index:])
	n.Children[index] = child
	n.Size++
}

// RemoveAt removes the entry at index from an internal node.
func (n *Node) RemoveAt(index int) {
	n.Keys = append(n.Keys[:index], n.Keys[index+1:]...)
	n.Children = append(n.Children[:index], n.Children[index+1:]...)
	n.Size--
}

// KeyIndexInternal returns the index of child in n.Children, or -1.
func (n *Node) KeyIndexInternal(child types.PageID) int {
	for i, c := range n.Children {
		if c == child {
			return i
		}
	}
	return -1
}

// --- leaf node operations (spec.md §4.3.1) ---

// FindValue returns the value for key and whether it was found.
func (n *Node) FindValue(key int64) (types.RID, bool) {
	idx := n.leafSearch(key)
	if idx >= 0 {
		return n.Values[idx], true
	}
	return types.RID{}, false
}

// leafSearch returns the index of key in a leaf, or -1 if absent.
func (n *Node) leafSearch(key int64) int {
	lo, hi := 0, n.Size
	for lo < hi {
		mid := (lo + hi) / 2
		if n.Keys[mid] < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < n.Size && n.Keys[lo] == key {
		return lo
	}
	return -1
}

// lowerBound returns the first index with Keys[i] >= key.
func (n *Node) lowerBound(key int64) int {
	lo, hi := 0, n.Size
	for lo < hi {
		mid := (lo + hi) / 2
		if n.Keys[mid] < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// InsertLeaf inserts (key, value) in sorted position; returns false if
// key already exists (strict uniqueness per spec.md §4.3).
func (n *Node) InsertLeaf(key int64, value types.RID) bool {
	if n.leafSearch(key) >= 0 {
		return false
	}
	pos := n.lowerBound(key)
	n.Keys = append(n.Keys, 0)
	copy(n.Keys[pos+1:], n.Keys[pos:])
	n.Keys[pos] = key
	n.Values = append(n.Values, types.RID{})
	copy(n.Values[pos+1:], n.Values[pos:])
	n.Values[pos] = value
	n.Size++
	return true
}

// RemoveLeaf removes key from the leaf; reports whether it was present.
func (n *Node) RemoveLeaf(key int64) bool {
	idx := n.leafSearch(key)
	if idx < 0 {
		return false
	}
	n.Keys = append(n.Keys[:idx], n.Keys[idx+1:]...)
	n.Values = append(n.Values[:idx], n.Values[idx+1:]...)
	n.Size--
	return true
}

// CopyLeaf appends other's entries after n's (used when merging a right
// leaf sibling into n).
func (n *Node) CopyLeaf(other *Node) {
	n.Keys = append(n.Keys, other.Keys...)
	n.Values = append(n.Values, other.Values...)
	n.Size += other.Size
	n.NextLeaf = other.NextLeaf
}

// CopyInternal merges other into n, inserting parentKey as the
// separator between n's last child and other's first child (spec.md
// §4.3.1's Copy(other, parent_key)).
func (n *Node) CopyInternal(other *Node, parentKey int64) {
	n.Keys = append(n.Keys, parentKey)
	n.Children = append(n.Children, other.Children[0])
	n.Keys = append(n.Keys, other.Keys[1:]...)
	n.Children = append(n.Children, other.Children[1:]...)
	n.Size = len(n.Children)
}
