package execution

import (
	"testing"

	"storagecore/expression"
	"storagecore/types"
)

func TestSortOrdersAscendingByDefault(t *testing.T) {
	child := newValuesExec(usersSchema(),
		types.NewTuple(types.NewInteger(3), types.NewVarchar("c")),
		types.NewTuple(types.NewInteger(1), types.NewVarchar("a")),
		types.NewTuple(types.NewInteger(2), types.NewVarchar("b")),
	)
	s := NewSort(child, []SortKey{{Expr: expression.ColumnRef{Name: "id"}, Direction: OrderDefault}})
	rows := drain(t, s)
	for i, want := range []int64{1, 2, 3} {
		if rows[i].GetValue(0).Integer != want {
			t.Fatalf("row %d: expected id %d, got %d", i, want, rows[i].GetValue(0).Integer)
		}
	}
}

func TestSortDescending(t *testing.T) {
	child := newValuesExec(usersSchema(),
		types.NewTuple(types.NewInteger(1), types.NewVarchar("a")),
		types.NewTuple(types.NewInteger(3), types.NewVarchar("c")),
		types.NewTuple(types.NewInteger(2), types.NewVarchar("b")),
	)
	s := NewSort(child, []SortKey{{Expr: expression.ColumnRef{Name: "id"}, Direction: OrderDesc}})
	rows := drain(t, s)
	for i, want := range []int64{3, 2, 1} {
		if rows[i].GetValue(0).Integer != want {
			t.Fatalf("row %d: expected id %d, got %d", i, want, rows[i].GetValue(0).Integer)
		}
	}
}

func TestTopNMatchesSortThenLimit(t *testing.T) {
	rowsIn := []*types.Tuple{
		types.NewTuple(types.NewInteger(5), types.NewVarchar("e")),
		types.NewTuple(types.NewInteger(1), types.NewVarchar("a")),
		types.NewTuple(types.NewInteger(4), types.NewVarchar("d")),
		types.NewTuple(types.NewInteger(2), types.NewVarchar("b")),
		types.NewTuple(types.NewInteger(3), types.NewVarchar("c")),
	}
	keys := []SortKey{{Expr: expression.ColumnRef{Name: "id"}, Direction: OrderDefault}}

	sorted := drain(t, NewLimit(NewSort(newValuesExec(usersSchema(), rowsIn...), keys), 3))

	topN := drain(t, NewTopN(newValuesExec(usersSchema(), rowsIn...), 3, keys))

	if len(sorted) != len(topN) {
		t.Fatalf("expected equal lengths, got %d vs %d", len(sorted), len(topN))
	}
	for i := range sorted {
		if sorted[i].GetValue(0).Integer != topN[i].GetValue(0).Integer {
			t.Fatalf("row %d mismatch: sort+limit=%d topN=%d", i, sorted[i].GetValue(0).Integer, topN[i].GetValue(0).Integer)
		}
	}
}

func TestTopNZeroWhenNIsZero(t *testing.T) {
	child := newValuesExec(usersSchema(), types.NewTuple(types.NewInteger(1), types.NewVarchar("a")))
	keys := []SortKey{{Expr: expression.ColumnRef{Name: "id"}}}
	rows := drain(t, NewTopN(child, 0, keys))
	if len(rows) != 0 {
		t.Fatalf("expected 0 rows for n=0, got %d", len(rows))
	}
}
