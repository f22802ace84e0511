// Package execution implements the pull-based (Volcano-style) executor
// operator pipeline of spec.md §4.5: every operator is an Init/Next/
// OutputSchema state machine pulling from its children one tuple at a
// time. Grounded on query_executor/executor.go's per-statement
// Execute*/VM driver shape, re-expressed as the capability interface
// spec.md's Design Notes section recommends instead of the teacher's
// single large OpCode switch over a stack machine; the join-matching
// algorithms of query_executor/joins.go (mergeSortInnerJoin/
// mergeSortOuterJoin) become NestedLoopJoin's and HashJoin's per-row
// matching logic here, re-expressed over pull iterators instead of
// whole-table []map[string]interface{} payloads.
package execution

import (
	"storagecore/catalog"
	"storagecore/concurrency"
	"storagecore/logging"
	"storagecore/types"
)

var log = logging.For("execution")

// Executor is the capability interface every operator implements:
// Init (idempotent reset, may materialize its input), Next (pulls one
// row at a time, (nil, zero RID, false, nil) at exhaustion), and
// OutputSchema (the columns Next's tuples are shaped to).
type Executor interface {
	Init() error
	Next() (*types.Tuple, types.RID, bool, error)
	OutputSchema() *types.Schema
}

// Context carries the per-query collaborators every operator that
// touches storage or locking needs: the running transaction, the lock
// manager, and the catalog (for index lookups on the insert/delete/
// update write paths).
type Context struct {
	Txn     *concurrency.Transaction
	Locks   *concurrency.LockManager
	Catalog *catalog.Catalog
}

// countSchema is the one-column (count INTEGER) output schema shared
// by Insert, Delete, and Update.
func countSchema() *types.Schema {
	return types.NewSchema(types.Column{Name: "count", Type: types.TypeInteger})
}

// combineSchemas concatenates two schemas' columns, the shape
// NestedLoopJoin and HashJoin produce for their matched output tuples.
func combineSchemas(left, right *types.Schema) *types.Schema {
	cols := make([]types.Column, 0, len(left.Columns)+len(right.Columns))
	cols = append(cols, left.Columns...)
	cols = append(cols, right.Columns...)
	return types.NewSchema(cols...)
}

// nullTuple builds an all-null tuple shaped to schema, used to pad
// unmatched outer rows in LEFT joins.
func nullTuple(schema *types.Schema) *types.Tuple {
	values := make([]types.Value, schema.Width())
	for i := range values {
		values[i] = types.NewNull()
	}
	return &types.Tuple{Values: values}
}
