package execution

import (
	"fmt"

	"storagecore/catalog"
	"storagecore/concurrency"
	bplus "storagecore/index/bplustree"
	"storagecore/types"
)

// IndexScan walks a B+ tree index's leaf chain in ascending key order,
// dereferencing each entry's RID against the owning table's heap. Lock
// discipline mirrors SeqScan's read path (table IS and row S unless
// READ_UNCOMMITTED, READ_COMMITTED releases each row lock immediately).
type IndexScan struct {
	ctx      *Context
	table    *catalog.TableInfo
	index    *catalog.IndexInfo
	startKey *int64 // nil scans the whole index; non-nil begins at >= *startKey

	it *bplus.Iterator
}

// NewIndexScan builds a scan over index, starting at the first key >=
// *startKey, or at the beginning of the index when startKey is nil.
func NewIndexScan(ctx *Context, table *catalog.TableInfo, index *catalog.IndexInfo, startKey *int64) *IndexScan {
	return &IndexScan{ctx: ctx, table: table, index: index, startKey: startKey}
}

func (s *IndexScan) OutputSchema() *types.Schema { return s.table.Schema }

func (s *IndexScan) Init() error {
	if s.ctx.Txn.IsolationLevel() != concurrency.ReadUncommitted {
		if ok, err := s.ctx.Locks.LockTable(s.ctx.Txn, concurrency.IntentionShared, s.table.OID); !ok {
			return fmt.Errorf("execution: index scan lock table %d: %w", s.table.OID, err)
		}
	}
	if s.it != nil {
		s.it.Close()
	}
	var it *bplus.Iterator
	var err error
	if s.startKey != nil {
		it, err = s.index.Tree.BeginAt(*s.startKey)
	} else {
		it, err = s.index.Tree.Begin()
	}
	if err != nil {
		return fmt.Errorf("execution: index scan begin: %w", err)
	}
	s.it = it
	return nil
}

func (s *IndexScan) Next() (*types.Tuple, types.RID, bool, error) {
	isolation := s.ctx.Txn.IsolationLevel()
	for s.it.Valid() {
		rid := s.it.Value()

		if isolation != concurrency.ReadUncommitted {
			if ok, err := s.ctx.Locks.LockRow(s.ctx.Txn, concurrency.Shared, s.table.OID, rid); !ok {
				return nil, types.RID{}, false, fmt.Errorf("execution: index scan lock row %s: %w", rid, err)
			}
		}

		tuple, err := s.table.Heap.GetTuple(rid, s.table.Schema)
		if err != nil {
			// Entry is stale (e.g. a tombstoned row an index delete hasn't
			// caught up to yet) — skip it rather than fail the scan. The row
			// lock just acquired above will never be returned to a caller
			// who could release it normally, so force it off now instead of
			// holding a lock on a row this transaction will never see.
			if isolation != concurrency.ReadUncommitted {
				if _, err := s.ctx.Locks.UnlockRow(s.ctx.Txn, s.table.OID, rid, true); err != nil {
					return nil, types.RID{}, false, fmt.Errorf("execution: index scan unlock stale row %s: %w", rid, err)
				}
			}
			s.it.Next()
			continue
		}

		if isolation == concurrency.ReadCommitted {
			if _, err := s.ctx.Locks.UnlockRow(s.ctx.Txn, s.table.OID, rid, false); err != nil {
				return nil, types.RID{}, false, fmt.Errorf("execution: index scan unlock row %s: %w", rid, err)
			}
		}

		s.it.Next()
		return tuple, rid, true, nil
	}

	s.it.Close()
	if isolation == concurrency.ReadCommitted {
		if _, err := s.ctx.Locks.UnlockTable(s.ctx.Txn, s.table.OID); err != nil {
			return nil, types.RID{}, false, fmt.Errorf("execution: index scan unlock table %d: %w", s.table.OID, err)
		}
	}
	return nil, types.RID{}, false, nil
}
