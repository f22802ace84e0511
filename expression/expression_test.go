package expression

import (
	"testing"

	"storagecore/types"
)

func rowSchema() *types.Schema {
	return types.NewSchema(
		types.Column{Name: "id", Type: types.TypeInteger},
		types.Column{Name: "name", Type: types.TypeVarchar},
	)
}

func TestColumnRefResolvesByName(t *testing.T) {
	schema := rowSchema()
	tuple := types.NewTuple(types.NewInteger(42), types.NewVarchar("bob"))

	got := ColumnRef{Name: "name"}.Evaluate(tuple, schema)
	if got.Str != "bob" {
		t.Fatalf("expected 'bob', got %+v", got)
	}
	missing := ColumnRef{Name: "nope"}.Evaluate(tuple, schema)
	if missing.Type != types.TypeNull {
		t.Fatalf("expected null for unknown column, got %+v", missing)
	}
}

func TestComparisonEvaluatesOperators(t *testing.T) {
	schema := rowSchema()
	tuple := types.NewTuple(types.NewInteger(10), types.NewVarchar("x"))

	cases := []struct {
		op   CompareOp
		rhs  int64
		want bool
	}{
		{OpEq, 10, true},
		{OpEq, 11, false},
		{OpLt, 11, true},
		{OpLe, 10, true},
		{OpGt, 9, true},
		{OpGe, 10, true},
		{OpNe, 5, true},
	}
	for _, c := range cases {
		expr := Comparison{Left: ColumnRef{Name: "id"}, Op: c.op, Right: Literal{Value: types.NewInteger(c.rhs)}}
		got := expr.Evaluate(tuple, schema)
		if got.Boolean != c.want {
			t.Fatalf("op=%v rhs=%d: expected %v, got %v", c.op, c.rhs, c.want, got.Boolean)
		}
	}
}

func TestComparisonWithNullIsNull(t *testing.T) {
	schema := rowSchema()
	tuple := types.NewTuple(types.NewInteger(10), types.NewVarchar("x"))
	expr := Comparison{Left: ColumnRef{Name: "id"}, Op: OpEq, Right: Literal{Value: types.NewNull()}}
	got := expr.Evaluate(tuple, schema)
	if got.Type != types.TypeNull {
		t.Fatalf("expected null result, got %+v", got)
	}
}

func TestArithOpEvaluatesIntegerMath(t *testing.T) {
	schema := rowSchema()
	tuple := types.NewTuple(types.NewInteger(10), types.NewVarchar("x"))

	add := ArithOp{Left: ColumnRef{Name: "id"}, Op: ArithAdd, Right: Literal{Value: types.NewInteger(5)}}
	if got := add.Evaluate(tuple, schema); got.Integer != 15 {
		t.Fatalf("expected 15, got %v", got.Integer)
	}

	div := ArithOp{Left: Literal{Value: types.NewInteger(10)}, Op: ArithDiv, Right: Literal{Value: types.NewInteger(0)}}
	if got := div.Evaluate(tuple, schema); got.Type != types.TypeNull {
		t.Fatalf("expected null for division by zero, got %+v", got)
	}
}

func TestCompareValuesOrdering(t *testing.T) {
	if CompareValues(types.NewInteger(1), types.NewInteger(2)) >= 0 {
		t.Fatal("expected 1 < 2")
	}
	if CompareValues(types.NewVarchar("a"), types.NewVarchar("b")) >= 0 {
		t.Fatal("expected 'a' < 'b'")
	}
	if CompareValues(types.NewBoolean(false), types.NewBoolean(true)) >= 0 {
		t.Fatal("expected false < true")
	}
	if CompareValues(types.NewInteger(5), types.NewInteger(5)) != 0 {
		t.Fatal("expected 5 == 5")
	}
}
