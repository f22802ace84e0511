package concurrency

import (
	"fmt"
	"sync"

	"storagecore/logging"
	"storagecore/types"
)

var txnLog = logging.For("txn")

// Undoer is implemented by the table heap layer so TransactionManager
// can apply a transaction's write records in reverse on abort (spec.md
// §6's "drives Commit/Abort, which applies write records in reverse for
// rollback").
type Undoer interface {
	UndoInsert(oid types.TableOID, rid types.RID) error
	UndoDelete(oid types.TableOID, rid types.RID, before *types.Tuple) error
	UndoUpdate(oid types.TableOID, rid types.RID, before *types.Tuple) error
}

// TransactionManager issues transaction ids and drives Commit/Abort.
// Grounded on storage_engine/transaction_manager/main.go's id-counter +
// active-set shape, generalized with isolation levels and the 2PL state
// machine per spec.md §3/§4.1.
type TransactionManager struct {
	mu          sync.Mutex
	nextID      types.TxnID
	active      map[types.TxnID]*Transaction
	lockManager *LockManager
}

// NewTransactionManager returns an empty manager. Call SetLockManager
// once the lock manager exists (the two are constructed in either
// order since NewLockManager also needs this manager).
func NewTransactionManager() *TransactionManager {
	return &TransactionManager{active: make(map[types.TxnID]*Transaction)}
}

// SetLockManager wires the lock manager used to release locks at
// Commit/Abort and to look up transactions for the deadlock detector.
func (tm *TransactionManager) SetLockManager(lm *LockManager) {
	tm.mu.Lock()
	tm.lockManager = lm
	tm.mu.Unlock()
}

// Begin starts a new transaction under the given isolation level.
func (tm *TransactionManager) Begin(level IsolationLevel) *Transaction {
	tm.mu.Lock()
	tm.nextID++
	id := tm.nextID
	txn := newTransaction(id, level)
	tm.active[id] = txn
	tm.mu.Unlock()
	txnLog.WithField("txn", id).WithField("isolation", level).Debug("begin")
	return txn
}

// GetTransaction looks up an active (or recently finished) transaction
// by id, for the deadlock detector's txn_manager_->GetTransaction calls.
func (tm *TransactionManager) GetTransaction(id types.TxnID) (*Transaction, bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	txn, ok := tm.active[id]
	return txn, ok
}

// Commit finalizes txn: releases every lock it holds and marks it
// COMMITTED.
func (tm *TransactionManager) Commit(txn *Transaction) error {
	if txn.State() == Aborted {
		return fmt.Errorf("txn %d: cannot commit an aborted transaction", txn.ID())
	}
	txn.setState(Committed)
	tm.mu.Lock()
	lm := tm.lockManager
	tm.mu.Unlock()
	if lm != nil {
		lm.ReleaseAll(txn)
	}
	txnLog.WithField("txn", txn.ID()).Debug("commit")
	return nil
}

// Abort rolls txn back by applying its write records in reverse order
// through undo, releases every lock it holds, and marks it ABORTED.
func (tm *TransactionManager) Abort(txn *Transaction, undo Undoer) error {
	records := txn.writeRecords()
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		var err error
		switch r.Kind {
		case RecordInsert:
			err = undo.UndoInsert(r.TableOID, r.RID)
		case RecordDelete:
			err = undo.UndoDelete(r.TableOID, r.RID, r.Before)
		case RecordUpdate:
			err = undo.UndoUpdate(r.TableOID, r.RID, r.Before)
		}
		if err != nil {
			return fmt.Errorf("txn %d: undo failed: %w", txn.ID(), err)
		}
	}
	txn.setState(Aborted)
	tm.mu.Lock()
	lm := tm.lockManager
	tm.mu.Unlock()
	if lm != nil {
		lm.ReleaseAll(txn)
	}
	txnLog.WithField("txn", txn.ID()).Debug("abort")
	return nil
}
