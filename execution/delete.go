package execution

import (
	"fmt"

	"storagecore/catalog"
	"storagecore/concurrency"
	"storagecore/types"
)

// Delete pulls every (tuple, rid) its child produces, tombstones each
// row in table's heap, removes the corresponding entry from every
// index built over table, and logs one DELETE write record per row
// (carrying the pre-delete tuple image for undo). It emits a single
// (count) tuple on its first Next call.
type Delete struct {
	ctx   *Context
	table *catalog.TableInfo
	child Executor

	done bool
}

// NewDelete builds a Delete operator removing every row child
// produces from table. child is expected to have been built with
// forUpdate=true (e.g. a SeqScan), taking row X locks as it scans.
func NewDelete(ctx *Context, table *catalog.TableInfo, child Executor) *Delete {
	return &Delete{ctx: ctx, table: table, child: child}
}

func (d *Delete) OutputSchema() *types.Schema { return countSchema() }

func (d *Delete) Init() error {
	if ok, err := d.ctx.Locks.LockTable(d.ctx.Txn, concurrency.IntentionExclusive, d.table.OID); !ok {
		return fmt.Errorf("execution: delete lock table %d: %w", d.table.OID, err)
	}
	d.done = false
	return d.child.Init()
}

func (d *Delete) Next() (*types.Tuple, types.RID, bool, error) {
	if d.done {
		return nil, types.RID{}, false, nil
	}
	d.done = true

	// The child is drained before any row is tombstoned: a SeqScan child
	// keeps its current heap page read-latched between Next calls, and
	// DeleteTuple write-latches the row's page.
	var tuples []*types.Tuple
	var rids []types.RID
	for {
		tuple, rid, ok, err := d.child.Next()
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
		if err := d.table.Heap.DeleteTuple(rid); err != nil {
			return nil, types.RID{}, false, fmt.Errorf("execution: delete from table %d at %s: %w", d.table.OID, rid, err)
		}
		d.ctx.Txn.AppendWrite(concurrency.WriteRecord{Kind: concurrency.RecordDelete, TableOID: d.table.OID, RID: rid, Before: before})
		for _, idx := range d.ctx.Catalog.GetTableIndexes(d.table.OID) {
			if key, ok := idx.ExtractKey(tuple, d.table.Schema); ok {
				if _, err := idx.Tree.Delete(key); err != nil {
					return nil, types.RID{}, false, fmt.Errorf("execution: delete index %q entry: %w", idx.Name, err)
				}
			}
		}
		count++
	}
	return types.NewTuple(types.NewInteger(count)), types.RID{}, true, nil
}
