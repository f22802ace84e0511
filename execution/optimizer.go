package execution

import "storagecore/expression"

// equalityPair is one top-level "col = col" conjunct of a predicate.
type equalityPair struct {
	Left, Right expression.Expr
}

// flattenEqualities walks pred's top-level AND tree, collecting each
// leaf as an equality pair. It fails (ok=false) if any leaf is not a
// plain OpEq comparison, so a predicate with an OR, a range comparison,
// or anything else the rule doesn't recognize leaves the join
// unrewritten.
func flattenEqualities(pred expression.Expr) ([]equalityPair, bool) {
	switch e := pred.(type) {
	case expression.And:
		left, ok := flattenEqualities(e.Left)
		if !ok {
			return nil, false
		}
		right, ok := flattenEqualities(e.Right)
		if !ok {
			return nil, false
		}
		return append(left, right...), true
	case expression.Comparison:
		if e.Op != expression.OpEq {
			return nil, false
		}
		return []equalityPair{{Left: e.Left, Right: e.Right}}, true
	default:
		return nil, false
	}
}

// NLJAsHashJoin rewrites nlj into an equivalent HashJoin when its
// predicate is a single "col = col" equality, or a conjunction of such
// equalities with exactly one column from each side per conjunct, per
// spec.md §4.5's optimizer rule. It returns ok=false, nlj unchanged,
// when the predicate isn't in that shape (e.g. it mixes a range
// comparison, references a literal, or compares two columns from the
// same side).
func NLJAsHashJoin(nlj *NestedLoopJoin) (Executor, bool) {
	pairs, ok := flattenEqualities(nlj.predicate)
	if !ok || len(pairs) == 0 {
		return nlj, false
	}

	leftSchema := nlj.left.OutputSchema()
	rightSchema := nlj.right.OutputSchema()

	leftKeys := make([]expression.Expr, 0, len(pairs))
	rightKeys := make([]expression.Expr, 0, len(pairs))
	for _, p := range pairs {
		lcol, lok := p.Left.(expression.ColumnRef)
		rcol, rok := p.Right.(expression.ColumnRef)
		if !lok || !rok {
			return nlj, false
		}
		switch {
		case leftSchema.ColumnIndex(lcol.Name) >= 0 && rightSchema.ColumnIndex(rcol.Name) >= 0:
			leftKeys = append(leftKeys, lcol)
			rightKeys = append(rightKeys, rcol)
		case leftSchema.ColumnIndex(rcol.Name) >= 0 && rightSchema.ColumnIndex(lcol.Name) >= 0:
			leftKeys = append(leftKeys, rcol)
			rightKeys = append(rightKeys, lcol)
		default:
			return nlj, false
		}
	}

	return NewHashJoin(nlj.left, nlj.right, leftKeys, rightKeys, nlj.joinType), true
}

// SortLimitAsTopN rewrites lim into a TopN when its sole child is a
// Sort, per spec.md §4.5's optimizer rule: Limit(n) <- Sort(keys) <-
// child becomes TopN(n, keys) <- child. It returns ok=false, lim
// unchanged, when lim's child isn't a *Sort.
func SortLimitAsTopN(lim *Limit) (Executor, bool) {
	sortNode, ok := lim.child.(*Sort)
	if !ok {
		return lim, false
	}
	return NewTopN(sortNode.child, lim.n, sortNode.keys), true
}
