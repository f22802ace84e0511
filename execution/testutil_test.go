package execution

import (
	"os"
	"path/filepath"
	"testing"

	"storagecore/catalog"
	"storagecore/concurrency"
	"storagecore/config"
	"storagecore/storage/buffer"
	"storagecore/storage/disk"
	"storagecore/types"
)

type testEnv struct {
	pool *buffer.Pool
	cat  *catalog.Catalog
	tm   *concurrency.TransactionManager
	lm   *concurrency.LockManager
}

func newTestEnv(t *testing.T) (*testEnv, func()) {
	t.Helper()
	dir, err := os.MkdirTemp("", "storagecore_execution_test")
	if err != nil {
		t.Fatalf("mkdtemp: %v", err)
	}
	cfg := config.DefaultConfig()
	cfg.BufferPoolSize = 64
	dm, err := disk.NewFileManager(filepath.Join(dir, "pool.db"), cfg)
	if err != nil {
		t.Fatalf("new disk manager: %v", err)
	}
	pool := buffer.NewPool(cfg, dm)
	cat, err := catalog.NewCatalog(pool)
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	tm := concurrency.NewTransactionManager()
	lm := concurrency.NewLockManager(tm, cfg.DeadlockDetectionInterval)
	tm.SetLockManager(lm)

	env := &testEnv{pool: pool, cat: cat, tm: tm, lm: lm}
	cleanup := func() {
		lm.Close()
		cat.Close()
		dm.Close()
		os.RemoveAll(dir)
	}
	return env, cleanup
}

func (e *testEnv) newContext(t *testing.T, level concurrency.IsolationLevel) *Context {
	t.Helper()
	txn := e.tm.Begin(level)
	return &Context{Txn: txn, Locks: e.lm, Catalog: e.cat}
}

func (e *testEnv) commit(t *testing.T, ctx *Context) {
	t.Helper()
	if err := e.tm.Commit(ctx.Txn); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

// valuesExec is a fixed-row Executor standing in for a planner's
// source/projection stage in tests — a VALUES-list literal feed.
type valuesExec struct {
	schema *types.Schema
	rows   []*types.Tuple
	idx    int
}

func newValuesExec(schema *types.Schema, rows ...*types.Tuple) *valuesExec {
	return &valuesExec{schema: schema, rows: rows}
}

func (v *valuesExec) OutputSchema() *types.Schema { return v.schema }

func (v *valuesExec) Init() error {
	v.idx = 0
	return nil
}

func (v *valuesExec) Next() (*types.Tuple, types.RID, bool, error) {
	if v.idx >= len(v.rows) {
		return nil, types.RID{}, false, nil
	}
	t := v.rows[v.idx]
	v.idx++
	return t, types.RID{}, true, nil
}

func drain(t *testing.T, ex Executor) []*types.Tuple {
	t.Helper()
	if err := ex.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	var out []*types.Tuple
	for {
		tuple, _, ok, err := ex.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if !ok {
			break
		}
		out = append(out, tuple)
	}
	return out
}

func usersSchema() *types.Schema {
	return types.NewSchema(
		types.Column{Name: "id", Type: types.TypeInteger},
		types.Column{Name: "name", Type: types.TypeVarchar},
	)
}
