package execution

import (
	"fmt"

	"storagecore/catalog"
	"storagecore/concurrency"
	"storagecore/storage/heap"
	"storagecore/types"
)

// SeqScan walks a table's heap page chain in insertion order, taking
// the table/row locks spec.md §4.5's SeqScan entry names: IS/S under
// REPEATABLE_READ and READ_COMMITTED for a plain read, IX/X held to
// commit when the scan feeds a Delete/Update, and no table or row locks
// at all for a plain read under READ_UNCOMMITTED (matching the lock
// manager's own rejection of IS and S under that isolation level).
// Under READ_COMMITTED, row S locks are
// released immediately after each read and the table IS lock at EOF.
type SeqScan struct {
	ctx       *Context
	table     *catalog.TableInfo
	forUpdate bool

	it *heap.Iterator
}

// NewSeqScan builds a sequential scan over table. forUpdate marks the
// scan as feeding a Delete/Update operator, switching its lock
// discipline to IX/X held through commit.
func NewSeqScan(ctx *Context, table *catalog.TableInfo, forUpdate bool) *SeqScan {
	return &SeqScan{ctx: ctx, table: table, forUpdate: forUpdate}
}

func (s *SeqScan) OutputSchema() *types.Schema { return s.table.Schema }

func (s *SeqScan) Init() error {
	mode := concurrency.IntentionShared
	if s.forUpdate {
		mode = concurrency.IntentionExclusive
	}
	if s.forUpdate || s.ctx.Txn.IsolationLevel() != concurrency.ReadUncommitted {
		if ok, err := s.ctx.Locks.LockTable(s.ctx.Txn, mode, s.table.OID); !ok {
			return fmt.Errorf("execution: seq scan lock table %d: %w", s.table.OID, err)
		}
	}
	if s.it != nil {
		s.it.Close()
	}
	s.it = s.table.Heap.Scan(s.table.Schema)
	return nil
}

func (s *SeqScan) Next() (*types.Tuple, types.RID, bool, error) {
	isolation := s.ctx.Txn.IsolationLevel()
	for s.it.Valid() {
		rid := s.it.RID()

		if s.forUpdate {
			if ok, err := s.ctx.Locks.LockRow(s.ctx.Txn, concurrency.Exclusive, s.table.OID, rid); !ok {
				return nil, types.RID{}, false, fmt.Errorf("execution: seq scan lock row %s: %w", rid, err)
			}
		} else if isolation != concurrency.ReadUncommitted {
			if ok, err := s.ctx.Locks.LockRow(s.ctx.Txn, concurrency.Shared, s.table.OID, rid); !ok {
				return nil, types.RID{}, false, fmt.Errorf("execution: seq scan lock row %s: %w", rid, err)
			}
		}

		tuple, err := s.it.Tuple()
		if err != nil {
			return nil, types.RID{}, false, fmt.Errorf("execution: seq scan read tuple at %s: %w", rid, err)
		}

		if !s.forUpdate && isolation == concurrency.ReadCommitted {
			if _, err := s.ctx.Locks.UnlockRow(s.ctx.Txn, s.table.OID, rid, false); err != nil {
				return nil, types.RID{}, false, fmt.Errorf("execution: seq scan unlock row %s: %w", rid, err)
			}
		}

		s.it.Next()
		return tuple, rid, true, nil
	}

	s.it.Close()
	if !s.forUpdate && isolation == concurrency.ReadCommitted {
		if _, err := s.ctx.Locks.UnlockTable(s.ctx.Txn, s.table.OID); err != nil {
			return nil, types.RID{}, false, fmt.Errorf("execution: seq scan unlock table %d: %w", s.table.OID, err)
		}
	}
	return nil, types.RID{}, false, nil
}
