package expression

import (
	"testing"

	"storagecore/types"
)

func TestAndEvaluatesConjunction(t *testing.T) {
	schema := rowSchema()
	tuple := types.NewTuple(types.NewInteger(10), types.NewVarchar("x"))

	trueCmp := Comparison{Left: ColumnRef{Name: "id"}, Op: OpEq, Right: Literal{Value: types.NewInteger(10)}}
	falseCmp := Comparison{Left: ColumnRef{Name: "id"}, Op: OpEq, Right: Literal{Value: types.NewInteger(11)}}

	if got := (And{Left: trueCmp, Right: trueCmp}).Evaluate(tuple, schema); !got.Boolean {
		t.Fatalf("expected true AND true to be true, got %+v", got)
	}
	if got := (And{Left: trueCmp, Right: falseCmp}).Evaluate(tuple, schema); got.Boolean {
		t.Fatalf("expected true AND false to be false, got %+v", got)
	}

	nullCmp := Comparison{Left: ColumnRef{Name: "id"}, Op: OpEq, Right: Literal{Value: types.NewNull()}}
	if got := (And{Left: trueCmp, Right: nullCmp}).Evaluate(tuple, schema); got.Type != types.TypeNull {
		t.Fatalf("expected AND with a null comparison operand to be null, got %+v", got)
	}
}
