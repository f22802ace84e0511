package execution

import "storagecore/types"

// Limit caps its child's output at n rows. It exists mainly as the
// SortLimitAsTopN optimizer rule's input shape (a Limit directly over
// a Sort); queries without a matching Sort child still execute it as a
// plain row-count cap.
type Limit struct {
	child Executor
	n     int
	count int
}

// NewLimit builds a Limit emitting at most n of child's rows.
func NewLimit(child Executor, n int) *Limit {
	return &Limit{child: child, n: n}
}

func (l *Limit) OutputSchema() *types.Schema { return l.child.OutputSchema() }

func (l *Limit) Init() error {
	l.count = 0
	return l.child.Init()
}

func (l *Limit) Next() (*types.Tuple, types.RID, bool, error) {
	if l.count >= l.n {
		return nil, types.RID{}, false, nil
	}
	tuple, rid, ok, err := l.child.Next()
	if err != nil || !ok {
		return nil, types.RID{}, false, err
	}
	l.count++
	return tuple, rid, true, nil
}
