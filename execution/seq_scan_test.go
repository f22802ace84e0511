package execution

import (
	"testing"

	"storagecore/concurrency"
	"storagecore/types"
)

func TestInsertThenSeqScanReadsAllRows(t *testing.T) {
	env, cleanup := newTestEnv(t)
	defer cleanup()

	schema := usersSchema()
	ti, err := env.cat.CreateTable("users", schema)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}

	insertCtx := env.newContext(t, concurrency.ReadCommitted)
	src := newValuesExec(schema,
		types.NewTuple(types.NewInteger(1), types.NewVarchar("alice")),
		types.NewTuple(types.NewInteger(2), types.NewVarchar("bob")),
	)
	ins := NewInsert(insertCtx, ti, src)
	rows := drain(t, ins)
	if len(rows) != 1 || rows[0].GetValue(0).Integer != 2 {
		t.Fatalf("expected insert to report count=2, got %+v", rows)
	}
	env.commit(t, insertCtx)

	scanCtx := env.newContext(t, concurrency.ReadCommitted)
	scan := NewSeqScan(scanCtx, ti, false)
	got := drain(t, scan)
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[0].GetValue(1).Str != "alice" || got[1].GetValue(1).Str != "bob" {
		t.Fatalf("expected insertion order alice,bob, got %+v, %+v", got[0], got[1])
	}
	env.commit(t, scanCtx)
}

func TestSeqScanReadUncommittedSkipsRowLocks(t *testing.T) {
	env, cleanup := newTestEnv(t)
	defer cleanup()

	schema := usersSchema()
	ti, err := env.cat.CreateTable("users", schema)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}

	insertCtx := env.newContext(t, concurrency.ReadCommitted)
	ins := NewInsert(insertCtx, ti, newValuesExec(schema, types.NewTuple(types.NewInteger(1), types.NewVarchar("a"))))
	drain(t, ins)
	env.commit(t, insertCtx)

	// A second, uncommitted writer holds X on the row; READ_UNCOMMITTED
	// must still be able to scan it without taking a conflicting S lock.
	writer := env.newContext(t, concurrency.ReadCommitted)
	if ok, err := env.lm.LockTable(writer.Txn, concurrency.IntentionExclusive, ti.OID); !ok {
		t.Fatalf("lock table: %v", err)
	}
	firstRID := types.RID{PageID: ti.Heap.FirstPageID(), Slot: 0}
	if ok, err := env.lm.LockRow(writer.Txn, concurrency.Exclusive, ti.OID, firstRID); !ok {
		t.Fatalf("lock row: %v", err)
	}

	readerCtx := env.newContext(t, concurrency.ReadUncommitted)
	scan := NewSeqScan(readerCtx, ti, false)
	got := drain(t, scan)
	if len(got) != 1 {
		t.Fatalf("expected to read the row despite the writer's X lock, got %d rows", len(got))
	}

	env.commit(t, writer)
	env.commit(t, readerCtx)
}
