package execution

import (
	"fmt"

	"storagecore/catalog"
	"storagecore/concurrency"
	"storagecore/types"
)

// Insert pulls every tuple its child produces, appends each to table's
// heap, maintains every index built over table, and logs one INSERT
// write record per row for undo. It emits a single (count) tuple on
// its first Next call, per spec.md §4.5.
type Insert struct {
	ctx   *Context
	table *catalog.TableInfo
	child Executor

	done bool
}

// NewInsert builds an Insert operator feeding rows from child into
// table.
func NewInsert(ctx *Context, table *catalog.TableInfo, child Executor) *Insert {
	return &Insert{ctx: ctx, table: table, child: child}
}

func (i *Insert) OutputSchema() *types.Schema { return countSchema() }

func (i *Insert) Init() error {
	if ok, err := i.ctx.Locks.LockTable(i.ctx.Txn, concurrency.IntentionExclusive, i.table.OID); !ok {
		return fmt.Errorf("execution: insert lock table %d: %w", i.table.OID, err)
	}
	i.done = false
	return i.child.Init()
}

func (i *Insert) Next() (*types.Tuple, types.RID, bool, error) {
	if i.done {
		return nil, types.RID{}, false, nil
	}
	i.done = true

	var count int64
	for {
		tuple, _, ok, err := i.child.Next()
		if err != nil {
			return nil, types.RID{}, false, err
		}
		if !ok {
			break
		}
		rid, err := i.table.Heap.InsertTuple(tuple)
		if err != nil {
			return nil, types.RID{}, false, fmt.Errorf("execution: insert into table %d: %w", i.table.OID, err)
		}
		i.ctx.Txn.AppendWrite(concurrency.WriteRecord{Kind: concurrency.RecordInsert, TableOID: i.table.OID, RID: rid})
		for _, idx := range i.ctx.Catalog.GetTableIndexes(i.table.OID) {
			if key, ok := idx.ExtractKey(tuple, i.table.Schema); ok {
				if _, err := idx.Tree.Insert(key, rid); err != nil {
					return nil, types.RID{}, false, fmt.Errorf("execution: insert index %q entry: %w", idx.Name, err)
				}
			}
		}
		count++
	}
	return types.NewTuple(types.NewInteger(count)), types.RID{}, true, nil
}
