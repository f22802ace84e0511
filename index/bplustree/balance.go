package bplus

import (
	"fmt"

	"storagecore/storage/buffer"
	"storagecore/types"
)

// rebalance implements spec.md §4.3.4's post-delete fixup: walking the
// write-latch stack from the leaf upward, redistributing from (or
// merging with) a sibling whenever a node falls under its least_size,
// and handling the two root special cases.
func (t *Tree) rebalance(stack []*frame, idx int, headerGuard *buffer.WriteGuard) error {
	cur := stack[idx]

	if idx == 0 {
		if cur.node.IsLeaf {
			if cur.node.Size == 0 {
				writeHeaderRoot(headerGuard.Data(), types.InvalidPageID)
				cur.guard.Drop()
				t.pool.DeletePage(cur.node.PageID)
			} else {
				cur.node.Encode(cur.guard.Data())
				cur.guard.Drop()
			}
		} else {
			if cur.node.Size == 1 {
				onlyChild := cur.node.Children[0]
				writeHeaderRoot(headerGuard.Data(), onlyChild)
				cur.guard.Drop()
				t.pool.DeletePage(cur.node.PageID)
			} else {
				cur.node.Encode(cur.guard.Data())
				cur.guard.Drop()
			}
		}
		headerGuard.Drop()
		return nil
	}

	var leastSize int
	if cur.node.IsLeaf {
		leastSize = leastSizeLeaf(cur.node.MaxSize)
	} else {
		leastSize = leastSizeInternal(cur.node.MaxSize)
	}

	if cur.node.Size >= leastSize {
		cur.node.Encode(cur.guard.Data())
		cur.guard.Drop()
		releaseAll(stack[:idx])
		headerGuard.Drop()
		return nil
	}

	parent := stack[idx-1]
	selfIndex := parent.node.KeyIndexInternal(cur.node.PageID)
	if selfIndex < 0 {
		cur.guard.Drop()
		releaseAll(stack[:idx])
		headerGuard.Drop()
		return fmt.Errorf("bplustree: corrupt tree, child %d not found in parent %d", cur.node.PageID, parent.node.PageID)
	}

	var siblingIndex int
	useRight := selfIndex+1 < parent.node.Size
	if useRight {
		siblingIndex = selfIndex + 1
	} else {
		siblingIndex = selfIndex - 1
	}
	siblingID := parent.node.Children[siblingIndex]

	sibGuard, ok := buffer.FetchPageWrite(t.pool, siblingID)
	if !ok {
		cur.guard.Drop()
		releaseAll(stack[:idx])
		headerGuard.Drop()
		return fmt.Errorf("bplustree: sibling page %d unavailable", siblingID)
	}
	sibling := DecodeNode(siblingID, sibGuard.Data())

	var sibLeast int
	if sibling.IsLeaf {
		sibLeast = leastSizeLeaf(sibling.MaxSize)
	} else {
		sibLeast = leastSizeInternal(sibling.MaxSize)
	}

	if sibling.Size > sibLeast {
		if useRight {
			borrowFromRight(cur.node, sibling, parent.node, selfIndex)
		} else {
			borrowFromLeft(cur.node, sibling, parent.node, selfIndex)
		}
		cur.node.Encode(cur.guard.Data())
		sibling.Encode(sibGuard.Data())
		parent.node.Encode(parent.guard.Data())
		cur.guard.Drop()
		sibGuard.Drop()
		releaseAll(stack[:idx])
		headerGuard.Drop()
		return nil
	}

	// Merge: the left-hand node absorbs the right-hand one, and the
	// parent entry for the absorbed child is removed.
	var leftNode, rightNode *Node
	var leftGuard, rightGuard *buffer.WriteGuard
	var sepIndex int
	if useRight {
		leftNode, rightNode = cur.node, sibling
		leftGuard, rightGuard = cur.guard, sibGuard
		sepIndex = siblingIndex
	} else {
		leftNode, rightNode = sibling, cur.node
		leftGuard, rightGuard = sibGuard, cur.guard
		sepIndex = selfIndex
	}

	if leftNode.IsLeaf {
		leftNode.CopyLeaf(rightNode)
	} else {
		separatorKey := parent.node.Keys[sepIndex]
		leftNode.CopyInternal(rightNode, separatorKey)
	}
	leftNode.Encode(leftGuard.Data())
	leftGuard.Drop()
	rightGuard.Drop()
	t.pool.DeletePage(rightNode.PageID)

	parent.node.RemoveAt(sepIndex)

	return t.rebalance(stack, idx-1, headerGuard)
}

// borrowFromRight moves cur's right sibling's first entry into cur,
// updating the separator key in parent at selfIndex+1.
func borrowFromRight(cur, sibling, parent *Node, selfIndex int) {
	if cur.IsLeaf {
		k, v := sibling.Keys[0], sibling.Values[0]
		cur.Keys = append(cur.Keys, k)
		cur.Values = append(cur.Values, v)
		cur.Size++

		sibling.Keys = sibling.Keys[1:]
		sibling.Values = sibling.Values[1:]
		sibling.Size--

		parent.Keys[selfIndex+1] = sibling.Keys[0]
		return
	}

	sepKey := parent.Keys[selfIndex+1]
	movedChild := sibling.Children[0]
	cur.Keys = append(cur.Keys, sepKey)
	cur.Children = append(cur.Children, movedChild)
	cur.Size++

	newSep := sibling.Keys[1]
	sibling.Children = sibling.Children[1:]
	sibling.Keys = append([]int64{0}, sibling.Keys[2:]...)
	sibling.Size--

	parent.Keys[selfIndex+1] = newSep
}

// borrowFromLeft moves cur's left sibling's last entry into cur,
// updating the separator key in parent at selfIndex.
func borrowFromLeft(cur, sibling, parent *Node, selfIndex int) {
	n := sibling.Size
	if cur.IsLeaf {
		k, v := sibling.Keys[n-1], sibling.Values[n-1]
		sibling.Keys = sibling.Keys[:n-1]
		sibling.Values = sibling.Values[:n-1]
		sibling.Size--

		cur.Keys = append([]int64{k}, cur.Keys...)
		cur.Values = append([]types.RID{v}, cur.Values...)
		cur.Size++

		parent.Keys[selfIndex] = k
		return
	}

	movedChild := sibling.Children[n-1]
	sepKey := parent.Keys[selfIndex]
	promoted := sibling.Keys[n-1]
	sibling.Children = sibling.Children[:n-1]
	sibling.Keys = sibling.Keys[:n-1]
	sibling.Size--

	newKeys := make([]int64, cur.Size+1)
	newKeys[0] = 0
	newKeys[1] = sepKey
	copy(newKeys[2:], cur.Keys[1:])
	cur.Keys = newKeys
	cur.Children = append([]types.PageID{movedChild}, cur.Children...)
	cur.Size++

	parent.Keys[selfIndex] = promoted
}
