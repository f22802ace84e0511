package execution

import (
	"fmt"

	"storagecore/catalog"
	"storagecore/concurrency"
	"storagecore/expression"
	"storagecore/types"
)

// Assignment is one SET clause of an UPDATE: column's value becomes
// Value evaluated against the pre-update tuple.
type Assignment struct {
	Column string
	Value  expression.Expr
}

// Update is modeled as a delete of the old row followed by an insert
// of the new one, maintaining every index over table, per spec.md
// §4.5's "Update is modeled as delete+insert per row". It logs a
// DELETE write record for the old image and an INSERT write record for
// the new one (two write records rather than one RecordUpdate, since a
// row's RID can change across the delete+insert — see
// storage/heap/table_heap.go's UpdateTuple move-on-overflow note).
type Update struct {
	ctx         *Context
	table       *catalog.TableInfo
	child       Executor
	assignments []Assignment

	done bool
}

// NewUpdate builds an Update operator applying assignments to every
// row child produces. child is expected to have been built with
// forUpdate=true, taking row X locks as it scans.
func NewUpdate(ctx *Context, table *catalog.TableInfo, child Executor, assignments []Assignment) *Update {
	return &Update{ctx: ctx, table: table, child: child, assignments: assignments}
}

func (u *Update) OutputSchema() *types.Schema { return countSchema() }

func (u *Update) Init() error {
	if ok, err := u.ctx.Locks.LockTable(u.ctx.Txn, concurrency.IntentionExclusive, u.table.OID); !ok {
		return fmt.Errorf("execution: update lock table %d: %w", u.table.OID, err)
	}
	u.done = false
	return u.child.Init()
}

func (u *Update) applyAssignments(tuple *types.Tuple) *types.Tuple {
	values := make([]types.Value, len(tuple.Values))
	copy(values, tuple.Values)
	for _, a := range u.assignments {
		idx := u.table.Schema.ColumnIndex(a.Column)
		if idx < 0 {
			continue
		}
		values[idx] = a.Value.Evaluate(tuple, u.table.Schema)
	}
	return &types.Tuple{Values: values}
}

func (u *Update) Next() (*types.Tuple, types.RID, bool, error) {
	if u.done {
		return nil, types.RID{}, false, nil
	}
	u.done = true

	// The child is drained before any row is rewritten: a SeqScan child
	// keeps its current heap page read-latched between Next calls, and
	// DeleteTuple/InsertTuple write-latch heap pages.
	var tuples []*types.Tuple
	var rids []types.RID
	for {
		tuple, rid, ok, err := u.child.Next()
		if err != nil {
			return nil, types.RID{}, false, err
		}
		if !ok {
			break
		}
		tuples = append(tuples, tuple)
		rids = append(rids, rid)
	}

	var count int64
	for i, tuple := range tuples {
		rid := rids[i]
		before := tuple.Clone()
		updated := u.applyAssignments(tuple)

		if err := u.table.Heap.DeleteTuple(rid); err != nil {
			return nil, types.RID{}, false, fmt.Errorf("execution: update delete old row at %s: %w", rid, err)
		}
		u.ctx.Txn.AppendWrite(concurrency.WriteRecord{Kind: concurrency.RecordDelete, TableOID: u.table.OID, RID: rid, Before: before})
		for _, idx := range u.ctx.Catalog.GetTableIndexes(u.table.OID) {
			if key, ok := idx.ExtractKey(tuple, u.table.Schema); ok {
				if _, err := idx.Tree.Delete(key); err != nil {
					return nil, types.RID{}, false, fmt.Errorf("execution: update index %q removal: %w", idx.Name, err)
				}
			}
		}

		newRID, err := u.table.Heap.InsertTuple(updated)
		if err != nil {
			return nil, types.RID{}, false, fmt.Errorf("execution: update insert new row: %w", err)
		}
		u.ctx.Txn.AppendWrite(concurrency.WriteRecord{Kind: concurrency.RecordInsert, TableOID: u.table.OID, RID: newRID})
		for _, idx := range u.ctx.Catalog.GetTableIndexes(u.table.OID) {
			if key, ok := idx.ExtractKey(updated, u.table.Schema); ok {
				if _, err := idx.Tree.Insert(key, newRID); err != nil {
					return nil, types.RID{}, false, fmt.Errorf("execution: update index %q insertion: %w", idx.Name, err)
				}
			}
		}
		count++
	}
	return types.NewTuple(types.NewInteger(count)), types.RID{}, true, nil
}
