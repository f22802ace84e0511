package execution

import (
	"strings"

	"storagecore/expression"
	"storagecore/types"
)

// AggFunc is one of spec.md §4.5's five aggregate functions.
type AggFunc int

const (
	AggCountStar AggFunc = iota
	AggCount
	AggSum
	AggMin
	AggMax
)

// AggregateExpr is one aggregate column: Func applied to Arg (Arg is
// ignored for COUNT_STAR).
type AggregateExpr struct {
	Func AggFunc
	Arg  expression.Expr
}

type aggState struct {
	groupValues []types.Value
	values      []types.Value
	seen        []bool
}

// Aggregation groups its child's rows by groupBy, computing
// aggregates over each group with a hash table keyed by the group-by
// expressions' values, per spec.md §4.5. When groupBy is empty and the
// child produces no rows at all, it emits a single row of each
// aggregate's initial value (0 for COUNT_STAR/COUNT/SUM, null for
// MIN/MAX) iff outputSchema's width equals len(aggregates) — i.e. there
// is no group-by column to have omitted a row for.
type Aggregation struct {
	child        Executor
	groupBy      []expression.Expr
	aggregates   []AggregateExpr
	outputSchema *types.Schema

	groups map[string]*aggState
	order  []string
	idx    int
}

// NewAggregation builds an Aggregation grouping child's rows by
// groupBy and computing aggregates over each group. outputSchema is
// the caller-supplied shape of (group-by columns..., aggregate
// columns...).
func NewAggregation(child Executor, groupBy []expression.Expr, aggregates []AggregateExpr, outputSchema *types.Schema) *Aggregation {
	return &Aggregation{child: child, groupBy: groupBy, aggregates: aggregates, outputSchema: outputSchema}
}

func (a *Aggregation) OutputSchema() *types.Schema { return a.outputSchema }

func newAggState(aggregates []AggregateExpr, groupValues []types.Value) *aggState {
	values := make([]types.Value, len(aggregates))
	for i, agg := range aggregates {
		switch agg.Func {
		case AggCountStar, AggCount, AggSum:
			values[i] = types.NewInteger(0)
		default:
			values[i] = types.NewNull()
		}
	}
	return &aggState{groupValues: groupValues, values: values, seen: make([]bool, len(aggregates))}
}

func groupKey(values []types.Value) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = v.HashKey()
	}
	return strings.Join(parts, "\x00")
}

func (a *Aggregation) applyRow(st *aggState, tuple *types.Tuple, schema *types.Schema) {
	for i, agg := range a.aggregates {
		switch agg.Func {
		case AggCountStar:
			st.values[i] = types.NewInteger(st.values[i].Integer + 1)
		case AggCount:
			if v := agg.Arg.Evaluate(tuple, schema); v.Type != types.TypeNull {
				st.values[i] = types.NewInteger(st.values[i].Integer + 1)
			}
		case AggSum:
			if v := agg.Arg.Evaluate(tuple, schema); v.Type == types.TypeInteger {
				st.values[i] = types.NewInteger(st.values[i].Integer + v.Integer)
			}
		case AggMin:
			v := agg.Arg.Evaluate(tuple, schema)
			if v.Type != types.TypeNull && (!st.seen[i] || expression.CompareValues(v, st.values[i]) < 0) {
				st.values[i] = v
				st.seen[i] = true
			}
		case AggMax:
			v := agg.Arg.Evaluate(tuple, schema)
			if v.Type != types.TypeNull && (!st.seen[i] || expression.CompareValues(v, st.values[i]) > 0) {
				st.values[i] = v
				st.seen[i] = true
			}
		}
	}
}

func (a *Aggregation) Init() error {
	if err := a.child.Init(); err != nil {
		return err
	}
	a.groups = make(map[string]*aggState)
	a.order = nil

	childSchema := a.child.OutputSchema()
	var rowCount int
	for {
		tuple, _, ok, err := a.child.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		rowCount++

		groupValues := make([]types.Value, len(a.groupBy))
		for i, e := range a.groupBy {
			groupValues[i] = e.Evaluate(tuple, childSchema)
		}
		key := groupKey(groupValues)
		st, ok := a.groups[key]
		if !ok {
			st = newAggState(a.aggregates, groupValues)
			a.groups[key] = st
			a.order = append(a.order, key)
		}
		a.applyRow(st, tuple, childSchema)
	}

	if len(a.groupBy) == 0 && rowCount == 0 && a.outputSchema.Width() == len(a.aggregates) {
		st := newAggState(a.aggregates, nil)
		key := groupKey(nil)
		a.groups[key] = st
		a.order = append(a.order, key)
	}

	a.idx = 0
	return nil
}

func (a *Aggregation) Next() (*types.Tuple, types.RID, bool, error) {
	if a.idx >= len(a.order) {
		return nil, types.RID{}, false, nil
	}
	st := a.groups[a.order[a.idx]]
	a.idx++
	values := make([]types.Value, 0, len(st.groupValues)+len(st.values))
	values = append(values, st.groupValues...)
	values = append(values, st.values...)
	return &types.Tuple{Values: values}, types.RID{}, true, nil
}
