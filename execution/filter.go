package execution

import (
	"storagecore/expression"
	"storagecore/types"
)

// Filter passes through only the child rows for which predicate
// evaluates to true (SQL WHERE). It is not one of spec.md §4.5's named
// pipeline operators — that section pushes scan predicates down into
// SeqScan/IndexScan's lock and key-range discipline — but a targeted
// Delete/Update/Select still needs a place to apply a predicate that
// isn't a key lookup, so this supplements the named set the way
// Insert/Delete/Update's children are expected to already be narrowed
// to the rows the statement cares about.
type Filter struct {
	child     Executor
	predicate expression.Expr
}

// NewFilter builds a Filter passing through child's rows where
// predicate evaluates true.
func NewFilter(child Executor, predicate expression.Expr) *Filter {
	return &Filter{child: child, predicate: predicate}
}

func (f *Filter) OutputSchema() *types.Schema { return f.child.OutputSchema() }

func (f *Filter) Init() error { return f.child.Init() }

func (f *Filter) Next() (*types.Tuple, types.RID, bool, error) {
	schema := f.child.OutputSchema()
	for {
		tuple, rid, ok, err := f.child.Next()
		if err != nil || !ok {
			return nil, types.RID{}, false, err
		}
		result := f.predicate.Evaluate(tuple, schema)
		if result.Type == types.TypeBoolean && result.Boolean {
			return tuple, rid, true, nil
		}
	}
}
