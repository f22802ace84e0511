package execution

import (
	"strings"

	"storagecore/expression"
	"storagecore/types"
)

// HashJoin builds an in-memory multi-map over the right child keyed by
// rightKeys, then probes it with each left tuple's leftKeys, emitting
// every matched pair. Equality is types.CompareEquals' "CmpTrue"
// semantics: a null key value never matches anything, including
// another null, so rows with a null key are never bucketed on the
// build side and never probe a match on the left side. For LEFT, a
// left tuple with no matches is emitted padded with right-schema
// nulls. Grounded on query_executor/joins.go's mergeSortInnerJoin
// matching shape, re-expressed as a hash build/probe instead of a
// sort-merge, per spec.md §4.5's HashJoin description.
type HashJoin struct {
	left, right          Executor
	leftKeys, rightKeys  []expression.Expr
	joinType             JoinType
	outputSchema         *types.Schema

	buildTable map[string][]*types.Tuple

	leftTuple   *types.Tuple
	matches     []*types.Tuple
	matchIdx    int
	matchedLeft bool
}

// NewHashJoin builds a hash join of left and right. leftKeys[i] and
// rightKeys[i] are compared pairwise; all pairs must be equal for a
// row to match.
func NewHashJoin(left, right Executor, leftKeys, rightKeys []expression.Expr, joinType JoinType) *HashJoin {
	return &HashJoin{
		left:         left,
		right:        right,
		leftKeys:     leftKeys,
		rightKeys:    rightKeys,
		joinType:     joinType,
		outputSchema: combineSchemas(left.OutputSchema(), right.OutputSchema()),
	}
}

func (h *HashJoin) OutputSchema() *types.Schema { return h.outputSchema }

func hashKey(exprs []expression.Expr, tuple *types.Tuple, schema *types.Schema) (string, bool) {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		v := e.Evaluate(tuple, schema)
		if v.Type == types.TypeNull {
			return "", false
		}
		parts[i] = v.HashKey()
	}
	return strings.Join(parts, "\x00"), true
}

func (h *HashJoin) Init() error {
	if err := h.left.Init(); err != nil {
		return err
	}
	if err := h.right.Init(); err != nil {
		return err
	}

	h.buildTable = make(map[string][]*types.Tuple)
	rightSchema := h.right.OutputSchema()
	for {
		tuple, _, ok, err := h.right.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if key, ok := hashKey(h.rightKeys, tuple, rightSchema); ok {
			h.buildTable[key] = append(h.buildTable[key], tuple)
		}
	}

	return h.advanceOuter()
}

func (h *HashJoin) advanceOuter() error {
	tuple, _, ok, err := h.left.Next()
	if err != nil {
		return err
	}
	if !ok {
		h.leftTuple = nil
		h.matches = nil
		h.matchIdx = 0
		return nil
	}
	h.leftTuple = tuple
	h.matchIdx = 0
	h.matchedLeft = false
	if key, ok := hashKey(h.leftKeys, tuple, h.left.OutputSchema()); ok {
		h.matches = h.buildTable[key]
	} else {
		h.matches = nil
	}
	return nil
}

func (h *HashJoin) Next() (*types.Tuple, types.RID, bool, error) {
	for h.leftTuple != nil {
		if h.matchIdx < len(h.matches) {
			match := h.matches[h.matchIdx]
			h.matchIdx++
			h.matchedLeft = true
			return h.leftTuple.Concat(match), types.RID{}, true, nil
		}
		if h.joinType == LeftJoin && !h.matchedLeft {
			out := h.leftTuple.Concat(nullTuple(h.right.OutputSchema()))
			if err := h.advanceOuter(); err != nil {
				return nil, types.RID{}, false, err
			}
			return out, types.RID{}, true, nil
		}
		if err := h.advanceOuter(); err != nil {
			return nil, types.RID{}, false, err
		}
	}
	return nil, types.RID{}, false, nil
}
