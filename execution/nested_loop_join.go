package execution

import (
	"storagecore/expression"
	"storagecore/types"
)

// JoinType is INNER or LEFT, the only two spec.md §4.5 names for
// NestedLoopJoin and HashJoin.
type JoinType int

const (
	InnerJoin JoinType = iota
	LeftJoin
)

// NestedLoopJoin is the standard outer/inner loop over two child
// iterators: for each outer (left) tuple, scan every inner (right)
// tuple, re-Init()ing the inner child each time the outer advances.
// For LEFT, an outer tuple that never matched an inner one is emitted
// padded with nulls for the right schema's columns. Grounded on
// query_executor/joins.go's mergeSortInnerJoin/mergeSortOuterJoin
// matching logic, re-expressed as a pull iterator pair instead of a
// sort-merge over materialized []map[string]interface{} slices.
type NestedLoopJoin struct {
	left, right  Executor
	predicate    expression.Expr
	joinType     JoinType
	outputSchema *types.Schema

	leftTuple   *types.Tuple
	matchedLeft bool
}

// NewNestedLoopJoin builds a join of left and right filtered by
// predicate (evaluated against the concatenated left+right tuple).
func NewNestedLoopJoin(left, right Executor, predicate expression.Expr, joinType JoinType) *NestedLoopJoin {
	return &NestedLoopJoin{
		left:         left,
		right:        right,
		predicate:    predicate,
		joinType:     joinType,
		outputSchema: combineSchemas(left.OutputSchema(), right.OutputSchema()),
	}
}

func (j *NestedLoopJoin) OutputSchema() *types.Schema { return j.outputSchema }

func (j *NestedLoopJoin) Init() error {
	if err := j.left.Init(); err != nil {
		return err
	}
	if err := j.right.Init(); err != nil {
		return err
	}
	return j.advanceOuter()
}

// advanceOuter pulls the next left tuple and re-Init()s the inner
// child so it scans from the beginning again.
func (j *NestedLoopJoin) advanceOuter() error {
	if err := j.right.Init(); err != nil {
		return err
	}
	tuple, _, ok, err := j.left.Next()
	if err != nil {
		return err
	}
	if !ok {
		j.leftTuple = nil
		return nil
	}
	j.leftTuple = tuple
	j.matchedLeft = false
	return nil
}

func (j *NestedLoopJoin) Next() (*types.Tuple, types.RID, bool, error) {
	for j.leftTuple != nil {
		rightTuple, _, ok, err := j.right.Next()
		if err != nil {
			return nil, types.RID{}, false, err
		}
		if !ok {
			if j.joinType == LeftJoin && !j.matchedLeft {
				out := j.leftTuple.Concat(nullTuple(j.right.OutputSchema()))
				if err := j.advanceOuter(); err != nil {
					return nil, types.RID{}, false, err
				}
				return out, types.RID{}, true, nil
			}
			if err := j.advanceOuter(); err != nil {
				return nil, types.RID{}, false, err
			}
			continue
		}

		combined := j.leftTuple.Concat(rightTuple)
		result := j.predicate.Evaluate(combined, j.outputSchema)
		if result.Type == types.TypeBoolean && result.Boolean {
			j.matchedLeft = true
			return combined, types.RID{}, true, nil
		}
	}
	return nil, types.RID{}, false, nil
}
