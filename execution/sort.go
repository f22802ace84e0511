package execution

import (
	"sort"

	"storagecore/expression"
	"storagecore/types"
)

// SortDirection is ascending or descending. OrderDefault is ascending,
// per spec.md §4.5's "DEFAULT sorts ascending".
type SortDirection int

const (
	OrderDefault SortDirection = iota
	OrderAsc
	OrderDesc
)

// SortKey is one entry of an ORDER BY list: sort by Expr, breaking ties
// with the next key in the list.
type SortKey struct {
	Expr      expression.Expr
	Direction SortDirection
}

// Sort fully materializes its child, stable-sorts by the ordered list
// of keys, and replays the rows in order. Grounded on
// query_executor/joins.go's sortRowsByColumn (sort.Slice over
// compareValues), generalized from a single column to an ordered key
// list and lifted to a pull iterator.
type Sort struct {
	child Executor
	keys  []SortKey

	rows []*types.Tuple
	idx  int
}

// NewSort builds a Sort ordering child's rows by keys.
func NewSort(child Executor, keys []SortKey) *Sort {
	return &Sort{child: child, keys: keys}
}

func (s *Sort) OutputSchema() *types.Schema { return s.child.OutputSchema() }

func (s *Sort) Init() error {
	if err := s.child.Init(); err != nil {
		return err
	}
	s.rows = nil
	for {
		tuple, _, ok, err := s.child.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		s.rows = append(s.rows, tuple)
	}
	sortRows(s.rows, s.keys, s.child.OutputSchema())
	s.idx = 0
	return nil
}

// sortRows stable-sorts rows by keys, evaluated against schema.
func sortRows(rows []*types.Tuple, keys []SortKey, schema *types.Schema) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, k := range keys {
			left := k.Expr.Evaluate(rows[i], schema)
			right := k.Expr.Evaluate(rows[j], schema)
			cmp := expression.CompareValues(left, right)
			if cmp == 0 {
				continue
			}
			if k.Direction == OrderDesc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func (s *Sort) Next() (*types.Tuple, types.RID, bool, error) {
	if s.idx >= len(s.rows) {
		return nil, types.RID{}, false, nil
	}
	tuple := s.rows[s.idx]
	s.idx++
	return tuple, types.RID{}, true, nil
}
