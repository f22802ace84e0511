// Package replacer implements the LRU-K eviction policy (Shasha &
// O'Neil) used to choose which buffer pool frame to evict. It
// generalizes the teacher's plain-LRU accessOrder []int64 bookkeeping
// (bplustree/buffer_pool.go, storage_engine/bufferpool/bufferpool.go) —
// a single last-touched timestamp per frame — into a bounded K-entry
// history per frame with the classical backward k-distance comparison.
package replacer

import (
	"math"
	"sync"

	"storagecore/logging"
	"storagecore/types"
)

var log = logging.For("replacer")

// node is the per-frame bookkeeping: a bounded ring of the K most recent
// access timestamps, and whether the frame currently participates in
// eviction.
type node struct {
	history   []int64 // oldest first, capped at k entries
	evictable bool
}

// backwardKDistance returns now - (k-th most recent access), or +infinity
// (math.MaxInt64) when fewer than k accesses have been recorded.
func (n *node) backwardKDistance(now int64, k int) int64 {
	if len(n.history) < k {
		return math.MaxInt64
	}
	kth := n.history[len(n.history)-k]
	return now - kth
}

// earliestAccess returns the first recorded timestamp, used to break
// ties among history-insufficient frames (classic LRU over that
// subset).
func (n *node) earliestAccess() int64 {
	if len(n.history) == 0 {
		return math.MaxInt64
	}
	return n.history[0]
}

// LRUKReplacer selects an evictable frame to reclaim using LRU-K.
// One mutex protects all state; every operation is O(numFrames), which
// is acceptable because the frame count is small relative to the
// working set (spec.md §4.1).
type LRUKReplacer struct {
	mu        sync.Mutex
	k         int
	clock     int64
	nodes     map[types.FrameID]*node
	evictable int // count of evictable frames, for Size()
}

// NewLRUKReplacer builds a replacer using history depth k. Frames are
// tracked from their first RecordAccess or SetEvictable call.
func NewLRUKReplacer(k int) *LRUKReplacer {
	return &LRUKReplacer{
		k:     k,
		nodes: make(map[types.FrameID]*node),
	}
}

// RecordAccess appends the current logical timestamp to frame's history,
// dropping the oldest entry once the history exceeds k. Creates the
// frame's bookkeeping (non-evictable) on first access.
func (r *LRUKReplacer) RecordAccess(frame types.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock++

	n, ok := r.nodes[frame]
	if !ok {
		n = &node{}
		r.nodes[frame] = n
	}
	n.history = append(n.history, r.clock)
	if len(n.history) > r.k {
		n.history = n.history[len(n.history)-r.k:]
	}
}

// SetEvictable marks whether frame participates in eviction. Creates the
// frame's bookkeeping if absent.
func (r *LRUKReplacer) SetEvictable(frame types.FrameID, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[frame]
	if !ok {
		n = &node{}
		r.nodes[frame] = n
	}
	if n.evictable == evictable {
		return
	}
	n.evictable = evictable
	if evictable {
		r.evictable++
	} else {
		r.evictable--
	}
}

// Remove forgets frame entirely. Fails silently if frame is absent; it
// is the caller's responsibility never to call Remove on a frame that is
// currently pinned / non-evictable.
func (r *LRUKReplacer) Remove(frame types.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[frame]
	if !ok {
		return
	}
	if n.evictable {
		r.evictable--
	}
	delete(r.nodes, frame)
}

// Evict selects and removes a victim frame: the evictable frame with the
// largest backward k-distance, ties among history-insufficient frames
// broken by earliest first access. Reports ok=false if no evictable
// frame exists.
func (r *LRUKReplacer) Evict() (frame types.FrameID, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		bestFrame    types.FrameID
		bestDist     int64 = -1
		bestEarliest int64 = math.MaxInt64
		found        bool
	)

	for f, n := range r.nodes {
		if !n.evictable {
			continue
		}
		dist := n.backwardKDistance(r.clock, r.k)
		switch {
		case !found:
			bestFrame, bestDist, bestEarliest, found = f, dist, n.earliestAccess(), true
		case dist > bestDist:
			bestFrame, bestDist, bestEarliest = f, dist, n.earliestAccess()
		case dist == bestDist && dist == math.MaxInt64:
			// Both history-insufficient: break the tie by earliest access
			// (classic LRU over that subset).
			if e := n.earliestAccess(); e < bestEarliest {
				bestFrame, bestEarliest = f, e
			}
		}
	}

	if !found {
		return 0, false
	}

	if n := r.nodes[bestFrame]; n.evictable {
		r.evictable--
	}
	delete(r.nodes, bestFrame)
	log.WithField("frame", bestFrame).Debug("evicted frame")
	return bestFrame, true
}

// Size returns the count of currently evictable frames.
func (r *LRUKReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evictable
}
