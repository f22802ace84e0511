package bplus

import (
	"encoding/binary"
	"fmt"

	"storagecore/logging"
	"storagecore/storage/buffer"
	"storagecore/types"
)

var log = logging.For("bplustree")

// Tree is a concurrent B+ tree index: fixed int64 keys, RID values,
// unique keys. All traversal goes through buffer pool page guards so
// concurrent transactions latch-crab instead of taking a single
// tree-wide lock — unlike the teacher's BPlusTree.mu sync.RWMutex
// (storage_engine/access/indexfile_manager/bplustree/struct.go), which
// this repo replaces with per-page latches per spec.md §4.3.
type Tree struct {
	headerPageID types.PageID
	pool         *buffer.Pool
	leafMaxSize  int
	internalMaxSize int
}

// NewTree allocates a header page (root = INVALID) and returns a Tree
// bound to it. leafMaxSize/internalMaxSize are the max_size values new
// leaf/internal nodes are created with.
func NewTree(pool *buffer.Pool, leafMaxSize, internalMaxSize int) (*Tree, error) {
	guard, id, ok := buffer.NewPageWrite(pool)
	if !ok {
		return nil, fmt.Errorf("bplustree: failed to allocate header page")
	}
	data := guard.Data()
	data[offTag] = byte(tagHeader)
	writeHeaderRoot(data, types.InvalidPageID)
	guard.Drop()

	return &Tree{
		headerPageID:    id,
		pool:            pool,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
	}, nil
}

// OpenTree binds a Tree to a previously-created header page (e.g. after
// a catalog restart).
func OpenTree(pool *buffer.Pool, headerPageID types.PageID, leafMaxSize, internalMaxSize int) *Tree {
	return &Tree{headerPageID: headerPageID, pool: pool, leafMaxSize: leafMaxSize, internalMaxSize: internalMaxSize}
}

// HeaderPageID exposes the tree's header page, e.g. for catalog
// persistence.
func (t *Tree) HeaderPageID() types.PageID { return t.headerPageID }

func readHeaderRoot(buf []byte) types.PageID {
	return types.PageID(int32(binary.BigEndian.Uint32(buf[headerRootOffset:])))
}

func writeHeaderRoot(buf []byte, root types.PageID) {
	binary.BigEndian.PutUint32(buf[headerRootOffset:], uint32(int32(root)))
}

// IsEmpty reports whether the tree currently has no root.
func (t *Tree) IsEmpty() bool {
	headerGuard, ok := buffer.FetchPageRead(t.pool, t.headerPageID)
	if !ok {
		return true
	}
	defer headerGuard.Drop()
	return readHeaderRoot(headerGuard.Data()) == types.InvalidPageID
}

// GetValue performs the read-mode latch-crabbing search of spec.md
// §4.3.2: header read latch, then root's, then for each descent the
// child's latch is acquired before the parent's is released.
func (t *Tree) GetValue(key int64) (types.RID, bool, error) {
	headerGuard, ok := buffer.FetchPageRead(t.pool, t.headerPageID)
	if !ok {
		return types.RID{}, false, fmt.Errorf("bplustree: header page unavailable")
	}
	root := readHeaderRoot(headerGuard.Data())
	if root == types.InvalidPageID {
		headerGuard.Drop()
		return types.RID{}, false, nil
	}

	curGuard, ok := buffer.FetchPageRead(t.pool, root)
	headerGuard.Drop()
	if !ok {
		return types.RID{}, false, fmt.Errorf("bplustree: root page unavailable")
	}

	for {
		node := DecodeNode(curGuard.PageID(), curGuard.Data())
		if node.IsLeaf {
			v, found := node.FindValue(key)
			curGuard.Drop()
			return v, found, nil
		}
		idx := node.FindChild(key)
		childID := node.Children[idx]
		childGuard, ok := buffer.FetchPageRead(t.pool, childID)
		curGuard.Drop() // release parent once the child is latched
		if !ok {
			return types.RID{}, false, fmt.Errorf("bplustree: child page %d unavailable", childID)
		}
		curGuard = childGuard
	}
}

// frame is one level of the write-latch stack held during insert/delete
// descent, per spec.md §4.3.3's conservative crabbing variant: the
// header and every ancestor stay write-latched until the operation
// completes.
type frame struct {
	guard *buffer.WriteGuard
	node  *Node
}

// Insert adds (key, value). Returns false without error if key already
// exists.
func (t *Tree) Insert(key int64, value types.RID) (bool, error) {
	headerGuard, ok := buffer.FetchPageWrite(t.pool, t.headerPageID)
	if !ok {
		return false, fmt.Errorf("bplustree: header page unavailable")
	}
	root := readHeaderRoot(headerGuard.Data())

	if root == types.InvalidPageID {
		leafGuard, leafID, ok := buffer.NewPageWrite(t.pool)
		if !ok {
			headerGuard.Drop()
			return false, fmt.Errorf("bplustree: buffer pool exhausted allocating root leaf")
		}
		leaf := newLeaf(leafID, t.leafMaxSize)
		leaf.InsertLeaf(key, value)
		leaf.Encode(leafGuard.Data())
		writeHeaderRoot(headerGuard.Data(), leafID)
		leafGuard.Drop()
		headerGuard.Drop()
		return true, nil
	}

	stack, err := t.descendWrite(root, key)
	if err != nil {
		headerGuard.Drop()
		return false, err
	}

	leafFrame := stack[len(stack)-1]
	if !leafFrame.node.InsertLeaf(key, value) {
		releaseAll(stack)
		headerGuard.Drop()
		return false, nil
	}

	if leafFrame.node.Size < leafFrame.node.MaxSize {
		leafFrame.node.Encode(leafFrame.guard.Data())
		releaseAll(stack)
		headerGuard.Drop()
		return true, nil
	}

	// Split: move the upper half [max_size/2, max_size) to a new leaf
	// (spec.md §4.3.3).
	rightGuard, rightID, ok := buffer.NewPageWrite(t.pool)
	if !ok {
		releaseAll(stack)
		headerGuard.Drop()
		return false, fmt.Errorf("bplustree: buffer pool exhausted splitting leaf")
	}
	left := leafFrame.node
	mid := left.MaxSize / 2
	right := newLeaf(rightID, left.MaxSize)
	right.Keys = append([]int64{}, left.Keys[mid:]...)
	right.Values = append([]types.RID{}, left.Values[mid:]...)
	right.Size = len(right.Keys)
	right.NextLeaf = left.NextLeaf

	left.Keys = left.Keys[:mid]
	left.Values = left.Values[:mid]
	left.Size = mid
	left.NextLeaf = rightID

	left.Encode(leafFrame.guard.Data())
	right.Encode(rightGuard.Data())
	separator := right.Keys[0]
	log.WithField("leaf", left.PageID).WithField("new_leaf", rightID).Debug("split leaf")

	rightGuard.Drop()
	leafFrame.guard.Drop()

	return t.insertInParent(stack[:len(stack)-1], headerGuard, left.PageID, rightID, separator)
}

// descendWrite write-latches the header's root and every node down to
// (and including) the leaf containing key, keeping all of them latched
// (conservative crabbing).
func (t *Tree) descendWrite(root types.PageID, key int64) ([]*frame, error) {
	var stack []*frame
	curID := root
	for {
		guard, ok := buffer.FetchPageWrite(t.pool, curID)
		if !ok {
			releaseAll(stack)
			return nil, fmt.Errorf("bplustree: page %d unavailable during descent", curID)
		}
		node := DecodeNode(curID, guard.Data())
		stack = append(stack, &frame{guard: guard, node: node})
		if node.IsLeaf {
			return stack, nil
		}
		idx := node.FindChild(key)
		curID = node.Children[idx]
	}
}

func releaseAll(stack []*frame) {
	for _, f := range stack {
		f.guard.Drop()
	}
}

// insertInParent implements spec.md §4.3.3's InsertInParent: grow a new
// root if the ancestor stack is empty, otherwise insert the separator
// into the parent (splitting it in turn if full).
func (t *Tree) insertInParent(ancestors []*frame, headerGuard *buffer.WriteGuard, leftID, rightID types.PageID, key int64) (bool, error) {
	if len(ancestors) == 0 {
		rootGuard, rootID, ok := buffer.NewPageWrite(t.pool)
		if !ok {
			headerGuard.Drop()
			return false, fmt.Errorf("bplustree: buffer pool exhausted growing new root")
		}
		root := newInternal(rootID, t.internalMaxSize)
		root.Children = []types.PageID{leftID, rightID}
		root.Keys = []int64{0, key}
		root.Size = 2
		root.Encode(rootGuard.Data())
		writeHeaderRoot(headerGuard.Data(), rootID)
		log.WithField("root", rootID).Debug("grew new root")
		rootGuard.Drop()
		headerGuard.Drop()
		return true, nil
	}

	parentFrame := ancestors[len(ancestors)-1]
	parent := parentFrame.node
	insertAt := parent.KeyIndexInternal(leftID) + 1

	if parent.Size < parent.MaxSize {
		parent.InsertChild(insertAt, key, rightID)
		parent.Encode(parentFrame.guard.Data())
		releaseAll(ancestors)
		headerGuard.Drop()
		return true, nil
	}

	// Split the parent including the new entry: m = (max_size-1)/2 + 1
	// (spec.md §4.3.3, preserved verbatim per spec.md §9).
	parent.InsertChild(insertAt, key, rightID)
	m := (parent.MaxSize-1)/2 + 1

	rightGuard, rightPageID, ok := buffer.NewPageWrite(t.pool)
	if !ok {
		releaseAll(ancestors)
		headerGuard.Drop()
		return false, fmt.Errorf("bplustree: buffer pool exhausted splitting internal node")
	}
	rightNode := newInternal(rightPageID, parent.MaxSize)
	rightNode.Keys = append([]int64{}, parent.Keys[m:]...)
	rightNode.Children = append([]types.PageID{}, parent.Children[m:]...)
	rightNode.Size = len(rightNode.Children)
	promoted := rightNode.Keys[0]
	rightNode.Keys[0] = 0

	parent.Keys = parent.Keys[:m]
	parent.Children = parent.Children[:m]
	parent.Size = m

	parent.Encode(parentFrame.guard.Data())
	rightNode.Encode(rightGuard.Data())
	rightGuard.Drop()
	parentFrame.guard.Drop()

	return t.insertInParent(ancestors[:len(ancestors)-1], headerGuard, parent.PageID, rightPageID, promoted)
}

// leastSizeLeaf is spec.md §4.3.4's ceil((max_size+2)/2) - 1.
func leastSizeLeaf(maxSize int) int { return ceilDiv(maxSize+2, 2) - 1 }

// leastSizeInternal is spec.md §4.3.4's ceil((max_size+1)/2) - 1.
func leastSizeInternal(maxSize int) int { return ceilDiv(maxSize+1, 2) - 1 }

func ceilDiv(a, b int) int { return (a + b - 1) / b }

// Delete removes key. Returns false if key was not present.
func (t *Tree) Delete(key int64) (bool, error) {
	headerGuard, ok := buffer.FetchPageWrite(t.pool, t.headerPageID)
	if !ok {
		return false, fmt.Errorf("bplustree: header page unavailable")
	}
	root := readHeaderRoot(headerGuard.Data())
	if root == types.InvalidPageID {
		headerGuard.Drop()
		return false, nil
	}

	stack, err := t.descendWrite(root, key)
	if err != nil {
		headerGuard.Drop()
		return false, err
	}

	leafFrame := stack[len(stack)-1]
	if !leafFrame.node.RemoveLeaf(key) {
		releaseAll(stack)
		headerGuard.Drop()
		return false, nil
	}

	if err := t.rebalance(stack, len(stack)-1, headerGuard); err != nil {
		return false, err
	}
	return true, nil
}
