package concurrency

import (
	"sort"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"storagecore/logging"
	"storagecore/types"
)

var lockLog = logging.For("lockmanager")

const noUpgrade types.TxnID = -1

// lockRequest is one entry of a requestQueue.
type lockRequest struct {
	txnID   types.TxnID
	mode    LockMode
	granted bool
}

// requestQueue is the per-resource (table oid, or row rid) queue of
// spec.md §4.4: an ordered slice of requests, a latch, a condition
// variable, and an `upgrading` slot tracking the one in-flight upgrade.
type requestQueue struct {
	mu        sync.Mutex
	cond      *sync.Cond
	requests  []*lockRequest
	upgrading types.TxnID
}

func newRequestQueue() *requestQueue {
	q := &requestQueue{upgrading: noUpgrade}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *requestQueue) indexOf(txnID types.TxnID) int {
	for i, r := range q.requests {
		if r.txnID == txnID {
			return i
		}
	}
	return -1
}

func (q *requestQueue) removeRequest(txnID types.TxnID) {
	idx := q.indexOf(txnID)
	if idx < 0 {
		return
	}
	q.requests = append(q.requests[:idx], q.requests[idx+1:]...)
}

// insertAtFirstWaiterPosition inserts req immediately ahead of the
// first not-yet-granted request (i.e. after every granted request),
// per spec.md §4.4.1 step 3's upgrade-jumps-the-queue rule.
func (q *requestQueue) insertAtFirstWaiterPosition(req *lockRequest) {
	for i, r := range q.requests {
		if !r.granted {
			tail := append([]*lockRequest{req}, q.requests[i:]...)
			q.requests = append(q.requests[:i], tail...)
			return
		}
	}
	q.requests = append(q.requests, req)
}

// canGrant reports whether the request at txnID's position may be
// granted now: every earlier request is granted and compatible with
// this mode, and — for a non-upgrade waiter — no earlier request is
// still waiting (FIFO, except upgrades which already jumped ahead).
func (q *requestQueue) canGrant(txnID types.TxnID) bool {
	idx := q.indexOf(txnID)
	if idx < 0 {
		return false
	}
	req := q.requests[idx]
	isUpgrade := q.upgrading == txnID
	for i := 0; i < idx; i++ {
		other := q.requests[i]
		if other.granted {
			if !compatible(other.mode, req.mode) {
				return false
			}
		} else if !isUpgrade {
			return false
		}
	}
	return true
}

type rowQueueKey = rowKey

// LockManager is the hierarchical multi-granularity lock table of
// spec.md §4.4, grounded on the original bustub LockManager's
// queue-plus-condvar crabbing protocol
// (original_source/src/concurrency/lock_manager.cpp) and on
// zhukovaskychina-xmysql-server/server/innodb/manager/lock_manager.go's
// Go-idiomatic per-resource request queue plus background
// ticker-driven deadlock detector.
type LockManager struct {
	tableMu     sync.Mutex
	tableQueues map[types.TableOID]*requestQueue

	rowMu     sync.Mutex
	rowQueues map[rowQueueKey]*requestQueue

	waitForMu  sync.Mutex
	waitFor    map[types.TxnID]map[types.TxnID]struct{}
	waitsTable map[types.TxnID][]types.TableOID
	waitsRid   map[types.TxnID][]rowQueueKey

	txnManager *TransactionManager
	interval   time.Duration
	stop       chan struct{}
	stopped    sync.Once
}

// NewLockManager builds a lock manager bound to tm (consulted by the
// deadlock detector via GetTransaction) and starts the background
// detector goroutine at the given interval (spec.md §4.4.4: "e.g. 50
// ms").
func NewLockManager(tm *TransactionManager, interval time.Duration) *LockManager {
	lm := &LockManager{
		tableQueues: make(map[types.TableOID]*requestQueue),
		rowQueues:   make(map[rowQueueKey]*requestQueue),
		waitFor:     make(map[types.TxnID]map[types.TxnID]struct{}),
		waitsTable:  make(map[types.TxnID][]types.TableOID),
		waitsRid:    make(map[types.TxnID][]rowQueueKey),
		txnManager:  tm,
		interval:    interval,
		stop:        make(chan struct{}),
	}
	go lm.runCycleDetection()
	return lm
}

// Close stops the background deadlock detector.
func (lm *LockManager) Close() {
	lm.stopped.Do(func() { close(lm.stop) })
}

func (lm *LockManager) getTableQueue(oid types.TableOID) *requestQueue {
	lm.tableMu.Lock()
	defer lm.tableMu.Unlock()
	q, ok := lm.tableQueues[oid]
	if !ok {
		q = newRequestQueue()
		lm.tableQueues[oid] = q
	}
	return q
}

func (lm *LockManager) getRowQueue(key rowQueueKey) *requestQueue {
	lm.rowMu.Lock()
	defer lm.rowMu.Unlock()
	q, ok := lm.rowQueues[key]
	if !ok {
		q = newRequestQueue()
		lm.rowQueues[key] = q
	}
	return q
}

// isolationPreflight implements spec.md §4.4.1 step 1.
func isolationPreflight(txn *Transaction, mode LockMode) *AbortError {
	isolation := txn.IsolationLevel()
	state := txn.State()

	if isolation == ReadUncommitted && (mode == Shared || mode == IntentionShared || mode == SharedIntentionExclusive) {
		return &AbortError{TxnID: txn.ID(), Reason: LockSharedOnReadUncommitted}
	}

	if state == Shrinking {
		if isolation == ReadCommitted && (mode == IntentionShared || mode == Shared) {
			return nil
		}
		return &AbortError{TxnID: txn.ID(), Reason: LockOnShrinking}
	}
	return nil
}

// LockTable implements spec.md §4.4.1.
func (lm *LockManager) LockTable(txn *Transaction, mode LockMode, oid types.TableOID) (bool, error) {
	if err := isolationPreflight(txn, mode); err != nil {
		txn.setState(Aborted)
		return false, err
	}

	q := lm.getTableQueue(oid)
	q.mu.Lock()

	if held, ok := txn.HoldsTable(oid); ok {
		if held == mode {
			q.mu.Unlock()
			return true, nil
		}
		if q.upgrading != noUpgrade {
			q.mu.Unlock()
			txn.setState(Aborted)
			return false, &AbortError{TxnID: txn.ID(), Reason: UpgradeConflict}
		}
		if !allowedUpgrade(held, mode) {
			q.mu.Unlock()
			txn.setState(Aborted)
			return false, &AbortError{TxnID: txn.ID(), Reason: IncompatibleUpgrade}
		}
		q.upgrading = txn.ID()
		q.removeRequest(txn.ID())
		txn.revokeTable(oid, held)
		q.insertAtFirstWaiterPosition(&lockRequest{txnID: txn.ID(), mode: mode})
	} else {
		q.requests = append(q.requests, &lockRequest{txnID: txn.ID(), mode: mode})
	}

	granted := lm.waitForGrant(q, txn)
	if !granted {
		q.mu.Unlock()
		return false, nil
	}

	req := q.requests[q.indexOf(txn.ID())]
	req.granted = true
	txn.grantTable(oid, mode)
	if q.upgrading == txn.ID() {
		q.upgrading = noUpgrade
	}
	q.cond.Broadcast()
	q.mu.Unlock()
	return true, nil
}

// waitForGrant blocks on q's condition variable until txn's request can
// be granted or txn is aborted by the deadlock detector, per spec.md
// §4.4.1 step 4 / §5's cancellation rule. Caller must hold q.mu; it is
// released and re-acquired across Wait.
func (lm *LockManager) waitForGrant(q *requestQueue, txn *Transaction) bool {
	for {
		if txn.State() == Aborted {
			q.removeRequest(txn.ID())
			if q.upgrading == txn.ID() {
				q.upgrading = noUpgrade
			}
			return false
		}
		if q.canGrant(txn.ID()) {
			return true
		}
		q.cond.Wait()
	}
}

// UnlockTable implements spec.md §4.4.2.
func (lm *LockManager) UnlockTable(txn *Transaction, oid types.TableOID) (bool, error) {
	held, ok := txn.HoldsTable(oid)
	if !ok {
		txn.setState(Aborted)
		return false, &AbortError{TxnID: txn.ID(), Reason: AttemptedUnlockButNoLockHeld}
	}
	if txn.HoldsAnyRowUnderTable(oid) {
		txn.setState(Aborted)
		return false, &AbortError{TxnID: txn.ID(), Reason: TableUnlockedBeforeUnlockingRows}
	}

	q := lm.getTableQueue(oid)
	q.mu.Lock()
	q.removeRequest(txn.ID())
	q.cond.Broadcast()
	q.mu.Unlock()

	txn.revokeTable(oid, held)
	applyUnlockShrinkTransition(txn, held)
	return true, nil
}

// applyUnlockShrinkTransition implements spec.md §4.4.2's shrink rule:
// unlocking X always moves to SHRINKING; unlocking S moves to SHRINKING
// only under REPEATABLE_READ; READ_COMMITTED/READ_UNCOMMITTED unlocks
// of S/IS never do, and intention-only locks never force a transition.
func applyUnlockShrinkTransition(txn *Transaction, mode LockMode) {
	switch mode {
	case Exclusive:
		if txn.State() == Growing {
			txn.setState(Shrinking)
		}
	case Shared:
		if txn.IsolationLevel() == RepeatableRead && txn.State() == Growing {
			txn.setState(Shrinking)
		}
	}
}

// LockRow implements spec.md §4.4.3.
func (lm *LockManager) LockRow(txn *Transaction, mode LockMode, oid types.TableOID, rid types.RID) (bool, error) {
	if !isRowCompatibleMode(mode) {
		txn.setState(Aborted)
		return false, &AbortError{TxnID: txn.ID(), Reason: AttemptedIntentionLockOnRow}
	}
	if err := isolationPreflight(txn, mode); err != nil {
		txn.setState(Aborted)
		return false, err
	}

	tableMode, hasTable := txn.HoldsTable(oid)
	if mode == Shared {
		if !hasTable {
			txn.setState(Aborted)
			return false, &AbortError{TxnID: txn.ID(), Reason: TableLockNotPresent}
		}
	} else {
		if !hasTable || (tableMode != IntentionExclusive && tableMode != SharedIntentionExclusive && tableMode != Exclusive) {
			txn.setState(Aborted)
			return false, &AbortError{TxnID: txn.ID(), Reason: TableLockNotPresent}
		}
	}

	key := rowQueueKey{oid: oid, rid: rid}
	q := lm.getRowQueue(key)
	q.mu.Lock()

	if held, ok := txn.HoldsRow(oid, rid); ok {
		if held == mode {
			q.mu.Unlock()
			return true, nil
		}
		if q.upgrading != noUpgrade {
			q.mu.Unlock()
			txn.setState(Aborted)
			return false, &AbortError{TxnID: txn.ID(), Reason: UpgradeConflict}
		}
		if !allowedUpgrade(held, mode) {
			q.mu.Unlock()
			txn.setState(Aborted)
			return false, &AbortError{TxnID: txn.ID(), Reason: IncompatibleUpgrade}
		}
		q.upgrading = txn.ID()
		q.removeRequest(txn.ID())
		q.insertAtFirstWaiterPosition(&lockRequest{txnID: txn.ID(), mode: mode})
	} else {
		q.requests = append(q.requests, &lockRequest{txnID: txn.ID(), mode: mode})
	}

	granted := lm.waitForGrant(q, txn)
	if !granted {
		q.mu.Unlock()
		return false, nil
	}

	req := q.requests[q.indexOf(txn.ID())]
	req.granted = true
	txn.grantRow(oid, rid, mode)
	if q.upgrading == txn.ID() {
		q.upgrading = noUpgrade
	}
	q.cond.Broadcast()
	q.mu.Unlock()
	return true, nil
}

// UnlockRow implements spec.md §4.4.3. force bypasses the 2PL state
// transition (used internally when skipping tombstoned rows).
func (lm *LockManager) UnlockRow(txn *Transaction, oid types.TableOID, rid types.RID, force bool) (bool, error) {
	held, ok := txn.HoldsRow(oid, rid)
	if !ok {
		if force {
			return true, nil
		}
		txn.setState(Aborted)
		return false, &AbortError{TxnID: txn.ID(), Reason: AttemptedUnlockButNoLockHeld}
	}

	key := rowQueueKey{oid: oid, rid: rid}
	q := lm.getRowQueue(key)
	q.mu.Lock()
	q.removeRequest(txn.ID())
	q.cond.Broadcast()
	q.mu.Unlock()

	txn.revokeRow(oid, rid, held)
	if !force {
		applyUnlockShrinkTransition(txn, held)
	}
	return true, nil
}

// ReleaseAll force-unlocks every row then every table lock txn holds,
// called at Commit/Abort. Rows are released first so UnlockTable's
// "rows still locked" check never fires here.
func (lm *LockManager) ReleaseAll(txn *Transaction) {
	for _, r := range txn.rowsHeld() {
		key := r.key
		q := lm.getRowQueue(key)
		q.mu.Lock()
		q.removeRequest(txn.ID())
		q.cond.Broadcast()
		q.mu.Unlock()
		txn.revokeRow(key.oid, key.rid, r.mode)
	}
	for _, e := range txn.tablesHeld() {
		q := lm.getTableQueue(e.oid)
		q.mu.Lock()
		q.removeRequest(txn.ID())
		q.cond.Broadcast()
		q.mu.Unlock()
		txn.revokeTable(e.oid, e.mode)
	}
}

// --- deadlock detector (spec.md §4.4.4) ---

func (lm *LockManager) addEdge(waiter, holder types.TxnID) {
	lm.waitForMu.Lock()
	defer lm.waitForMu.Unlock()
	set, ok := lm.waitFor[waiter]
	if !ok {
		set = make(map[types.TxnID]struct{})
		lm.waitFor[waiter] = set
	}
	set[holder] = struct{}{}
}

func (lm *LockManager) sortedVertices() []types.TxnID {
	lm.waitForMu.Lock()
	defer lm.waitForMu.Unlock()
	vs := make([]types.TxnID, 0, len(lm.waitFor))
	for v := range lm.waitFor {
		vs = append(vs, v)
	}
	sort.Slice(vs, func(i, j int) bool { return vs[i] < vs[j] })
	return vs
}

func (lm *LockManager) neighbors(v types.TxnID) []types.TxnID {
	lm.waitForMu.Lock()
	defer lm.waitForMu.Unlock()
	set := lm.waitFor[v]
	ns := make([]types.TxnID, 0, len(set))
	for n := range set {
		ns = append(ns, n)
	}
	sort.Slice(ns, func(i, j int) bool { return ns[i] < ns[j] })
	return ns
}

// findCycle runs DFS from source in ascending-neighbor order, per
// spec.md §4.4.4 step 2. onPath/visited are per-detection-pass vertex
// sets (github.com/deckarep/golang-set/v2, as ryogrid-sametree's
// sametree_util.go uses for ad hoc vertex tracking). On finding a back
// edge to a vertex already on the current path, the victim is the
// highest txn id among the cycle's vertices.
func findCycle(source types.TxnID, path []types.TxnID, onPath mapset.Set[types.TxnID], visited mapset.Set[types.TxnID], lm *LockManager) (types.TxnID, bool) {
	if onPath.Contains(source) {
		victim := source
		found := false
		for _, v := range path {
			if v == source {
				found = true
			}
			if found && v > victim {
				victim = v
			}
		}
		return victim, true
	}
	if visited.Contains(source) {
		return 0, false
	}
	visited.Add(source)
	onPath.Add(source)
	path = append(path, source)
	for _, next := range lm.neighbors(source) {
		if victim, ok := findCycle(next, path, onPath, visited, lm); ok {
			return victim, true
		}
	}
	onPath.Remove(source)
	return 0, false
}

func (lm *LockManager) hasCycle() (types.TxnID, bool) {
	visited := mapset.NewSet[types.TxnID]()
	for _, v := range lm.sortedVertices() {
		if visited.Contains(v) {
			continue
		}
		if victim, ok := findCycle(v, nil, mapset.NewSet[types.TxnID](), visited, lm); ok {
			return victim, true
		}
	}
	return 0, false
}

func (lm *LockManager) removeVertex(v types.TxnID) {
	lm.waitForMu.Lock()
	defer lm.waitForMu.Unlock()
	delete(lm.waitFor, v)
	for _, set := range lm.waitFor {
		delete(set, v)
	}
}

func (lm *LockManager) clearGraph() {
	lm.waitForMu.Lock()
	defer lm.waitForMu.Unlock()
	lm.waitFor = make(map[types.TxnID]map[types.TxnID]struct{})
	lm.waitsTable = make(map[types.TxnID][]types.TableOID)
	lm.waitsRid = make(map[types.TxnID][]rowQueueKey)
}

func (lm *LockManager) buildWaitForGraph() {
	lm.tableMu.Lock()
	tableQueues := make(map[types.TableOID]*requestQueue, len(lm.tableQueues))
	for oid, q := range lm.tableQueues {
		tableQueues[oid] = q
	}
	lm.tableMu.Unlock()

	for oid, q := range tableQueues {
		q.mu.Lock()
		granted := make(map[types.TxnID]struct{})
		for _, req := range q.requests {
			txn, ok := lm.txnManager.GetTransaction(req.txnID)
			if !ok || txn.State() == Aborted {
				continue
			}
			if req.granted {
				granted[req.txnID] = struct{}{}
			} else {
				lm.waitForMu.Lock()
				lm.waitsTable[req.txnID] = append(lm.waitsTable[req.txnID], oid)
				lm.waitForMu.Unlock()
				for holder := range granted {
					lm.addEdge(req.txnID, holder)
				}
			}
		}
		q.mu.Unlock()
	}

	lm.rowMu.Lock()
	rowQueues := make(map[rowQueueKey]*requestQueue, len(lm.rowQueues))
	for key, q := range lm.rowQueues {
		rowQueues[key] = q
	}
	lm.rowMu.Unlock()

	for key, q := range rowQueues {
		q.mu.Lock()
		granted := make(map[types.TxnID]struct{})
		for _, req := range q.requests {
			txn, ok := lm.txnManager.GetTransaction(req.txnID)
			if !ok || txn.State() == Aborted {
				continue
			}
			if req.granted {
				granted[req.txnID] = struct{}{}
			} else {
				lm.waitForMu.Lock()
				lm.waitsRid[req.txnID] = append(lm.waitsRid[req.txnID], key)
				lm.waitForMu.Unlock()
				for holder := range granted {
					lm.addEdge(req.txnID, holder)
				}
			}
		}
		q.mu.Unlock()
	}
}

func (lm *LockManager) notifyWaiters(victim types.TxnID) {
	lm.waitForMu.Lock()
	tables := lm.waitsTable[victim]
	rids := lm.waitsRid[victim]
	lm.waitForMu.Unlock()

	for _, oid := range tables {
		lm.tableMu.Lock()
		q, ok := lm.tableQueues[oid]
		lm.tableMu.Unlock()
		if ok {
			q.mu.Lock()
			q.cond.Broadcast()
			q.mu.Unlock()
		}
	}
	for _, key := range rids {
		lm.rowMu.Lock()
		q, ok := lm.rowQueues[key]
		lm.rowMu.Unlock()
		if ok {
			q.mu.Lock()
			q.cond.Broadcast()
			q.mu.Unlock()
		}
	}
}

// runCycleDetection is the background detector thread of spec.md
// §4.4.4, woken at a fixed interval.
func (lm *LockManager) runCycleDetection() {
	ticker := time.NewTicker(lm.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			lm.buildWaitForGraph()
			for {
				victim, ok := lm.hasCycle()
				if !ok {
					break
				}
				txn, ok := lm.txnManager.GetTransaction(victim)
				if ok {
					txn.setState(Aborted)
					lockLog.WithField("txn", victim).Warn("deadlock detected, aborting youngest transaction")
				}
				lm.notifyWaiters(victim)
				lm.removeVertex(victim)
			}
			lm.clearGraph()
		case <-lm.stop:
			return
		}
	}
}
