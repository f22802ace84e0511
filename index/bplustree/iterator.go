package bplus

import (
	"storagecore/storage/buffer"
	"storagecore/types"
)

// Iterator walks a leaf chain in ascending key order, crossing leaf
// page boundaries via NextLeaf. It never holds more than one leaf's
// read latch at a time.
type Iterator struct {
	tree    *Tree
	guard   *buffer.ReadGuard
	node    *Node
	pos     int
	done    bool
}

// Begin returns an iterator positioned at the first key in the tree.
func (t *Tree) Begin() (*Iterator, error) {
	return t.begin(nil)
}

// BeginAt returns an iterator positioned at the first key >= key.
func (t *Tree) BeginAt(key int64) (*Iterator, error) {
	return t.begin(&key)
}

func (t *Tree) begin(key *int64) (*Iterator, error) {
	headerGuard, ok := buffer.FetchPageRead(t.pool, t.headerPageID)
	if !ok {
		return &Iterator{done: true}, nil
	}
	root := readHeaderRoot(headerGuard.Data())
	if root == types.InvalidPageID {
		headerGuard.Drop()
		return &Iterator{done: true}, nil
	}

	curGuard, ok := buffer.FetchPageRead(t.pool, root)
	headerGuard.Drop()
	if !ok {
		return &Iterator{done: true}, nil
	}

	for {
		node := DecodeNode(curGuard.PageID(), curGuard.Data())
		if node.IsLeaf {
			pos := 0
			if key != nil {
				pos = node.lowerBound(*key)
			}
			it := &Iterator{tree: t, guard: curGuard, node: node, pos: pos}
			it.skipToNonEmpty()
			return it, nil
		}
		var idx int
		if key != nil {
			idx = node.FindChild(*key)
		} else {
			idx = 0
		}
		childGuard, ok := buffer.FetchPageRead(t.pool, node.Children[idx])
		curGuard.Drop()
		if !ok {
			return &Iterator{done: true}, nil
		}
		curGuard = childGuard
	}
}

// skipToNonEmpty advances across empty leaves (possible transiently
// after a delete that emptied a non-root leaf mid-rebalance elsewhere)
// until it finds a leaf with a value at pos, or exhausts the chain.
func (it *Iterator) skipToNonEmpty() {
	for !it.done && it.pos >= it.node.Size {
		next := it.node.NextLeaf
		it.guard.Drop()
		if next == types.InvalidPageID {
			it.done = true
			it.guard = nil
			it.node = nil
			return
		}
		guard, ok := buffer.FetchPageRead(it.tree.pool, next)
		if !ok {
			it.done = true
			it.guard = nil
			it.node = nil
			return
		}
		it.guard = guard
		it.node = DecodeNode(guard.PageID(), guard.Data())
		it.pos = 0
	}
}

// Valid reports whether the iterator is positioned at an entry.
func (it *Iterator) Valid() bool {
	return !it.done && it.node != nil && it.pos < it.node.Size
}

// Key returns the current entry's key. Valid must be true.
func (it *Iterator) Key() int64 { return it.node.Keys[it.pos] }

// Value returns the current entry's RID. Valid must be true.
func (it *Iterator) Value() types.RID { return it.node.Values[it.pos] }

// Next advances to the following entry, crossing leaf boundaries as
// needed.
func (it *Iterator) Next() {
	if it.done {
		return
	}
	it.pos++
	it.skipToNonEmpty()
}

// Close releases the iterator's held leaf latch. Safe to call multiple
// times and on an exhausted iterator.
func (it *Iterator) Close() {
	if it.guard != nil {
		it.guard.Drop()
		it.guard = nil
	}
	it.done = true
}
