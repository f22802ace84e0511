package heap

import (
	"os"
	"path/filepath"
	"testing"

	"storagecore/config"
	"storagecore/storage/buffer"
	"storagecore/storage/disk"
	"storagecore/types"
)

func newTestPool(t *testing.T, frames int) (*buffer.Pool, func()) {
	t.Helper()
	dir, err := os.MkdirTemp("", "storagecore_heap_test")
	if err != nil {
		t.Fatalf("mkdtemp: %v", err)
	}
	cfg := config.DefaultConfig()
	cfg.BufferPoolSize = frames
	dm, err := disk.NewFileManager(filepath.Join(dir, "pool.db"), cfg)
	if err != nil {
		t.Fatalf("new disk manager: %v", err)
	}
	pool := buffer.NewPool(cfg, dm)
	return pool, func() {
		dm.Close()
		os.RemoveAll(dir)
	}
}

var testSchema = types.NewSchema(
	types.Column{Name: "id", Type: types.TypeInteger},
	types.Column{Name: "name", Type: types.TypeVarchar},
)

func TestInsertGetRoundTrip(t *testing.T) {
	pool, cleanup := newTestPool(t, 8)
	defer cleanup()

	th, err := NewTableHeap(pool)
	if err != nil {
		t.Fatalf("new table heap: %v", err)
	}

	rid, err := th.InsertTuple(types.NewTuple(types.NewInteger(1), types.NewVarchar("alice")))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := th.GetTuple(rid, testSchema)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.GetValue(0).Integer != 1 || got.GetValue(1).Str != "alice" {
		t.Fatalf("unexpected tuple: %+v", got)
	}
}

func TestDeleteTombstonesAndGetFails(t *testing.T) {
	pool, cleanup := newTestPool(t, 8)
	defer cleanup()

	th, _ := NewTableHeap(pool)
	rid, _ := th.InsertTuple(types.NewTuple(types.NewInteger(1), types.NewVarchar("bob")))

	if err := th.DeleteTuple(rid); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := th.GetTuple(rid, testSchema); err == nil {
		t.Fatal("expected get on deleted rid to fail")
	}
}

func TestUpdateInPlaceKeepsRID(t *testing.T) {
	pool, cleanup := newTestPool(t, 8)
	defer cleanup()

	th, _ := NewTableHeap(pool)
	rid, _ := th.InsertTuple(types.NewTuple(types.NewInteger(1), types.NewVarchar("same-len")))

	newRID, err := th.UpdateTuple(rid, types.NewTuple(types.NewInteger(2), types.NewVarchar("same-len")))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if newRID != rid {
		t.Fatalf("expected in-place update to keep rid %v, got %v", rid, newRID)
	}

	got, err := th.GetTuple(rid, testSchema)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.GetValue(0).Integer != 2 {
		t.Fatalf("expected updated value 2, got %v", got.GetValue(0).Integer)
	}
}

func TestUpdateGrowMovesToNewRID(t *testing.T) {
	pool, cleanup := newTestPool(t, 8)
	defer cleanup()

	th, _ := NewTableHeap(pool)
	rid, _ := th.InsertTuple(types.NewTuple(types.NewInteger(1), types.NewVarchar("x")))

	newRID, err := th.UpdateTuple(rid, types.NewTuple(types.NewInteger(1), types.NewVarchar("a much longer replacement string")))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if newRID == rid {
		t.Fatal("expected growing update to move to a new rid")
	}
	if _, err := th.GetTuple(rid, testSchema); err == nil {
		t.Fatal("expected original rid to be tombstoned after move")
	}
	got, err := th.GetTuple(newRID, testSchema)
	if err != nil {
		t.Fatalf("get at new rid: %v", err)
	}
	if got.GetValue(1).Str != "a much longer replacement string" {
		t.Fatalf("unexpected tuple at new rid: %+v", got)
	}
}

func TestScanYieldsLiveTuplesInOrder(t *testing.T) {
	pool, cleanup := newTestPool(t, 8)
	defer cleanup()

	th, _ := NewTableHeap(pool)
	var rids []types.RID
	for i := int64(0); i < 5; i++ {
		rid, _ := th.InsertTuple(types.NewTuple(types.NewInteger(i), types.NewVarchar("row")))
		rids = append(rids, rid)
	}
	if err := th.DeleteTuple(rids[2]); err != nil {
		t.Fatalf("delete: %v", err)
	}

	it := th.Scan(testSchema)
	defer it.Close()
	var seen []int64
	for it.Valid() {
		tup, err := it.Tuple()
		if err != nil {
			t.Fatalf("tuple: %v", err)
		}
		seen = append(seen, tup.GetValue(0).Integer)
		it.Next()
	}
	want := []int64{0, 1, 3, 4}
	if len(seen) != len(want) {
		t.Fatalf("expected %v, got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, seen)
		}
	}
}

func TestUndoInsertTombstonesRow(t *testing.T) {
	pool, cleanup := newTestPool(t, 8)
	defer cleanup()

	th, _ := NewTableHeap(pool)
	rid, _ := th.InsertTuple(types.NewTuple(types.NewInteger(1), types.NewVarchar("tmp")))

	if err := th.UndoInsert(rid); err != nil {
		t.Fatalf("undo insert: %v", err)
	}
	if _, err := th.GetTuple(rid, testSchema); err == nil {
		t.Fatal("expected undone insert's rid to read as deleted")
	}
}

func TestUndoDeleteRevivesRow(t *testing.T) {
	pool, cleanup := newTestPool(t, 8)
	defer cleanup()

	th, _ := NewTableHeap(pool)
	before := types.NewTuple(types.NewInteger(7), types.NewVarchar("keep-me"))
	rid, _ := th.InsertTuple(before)

	if err := th.DeleteTuple(rid); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := th.UndoDelete(rid, before); err != nil {
		t.Fatalf("undo delete: %v", err)
	}

	got, err := th.GetTuple(rid, testSchema)
	if err != nil {
		t.Fatalf("get after undo: %v", err)
	}
	if got.GetValue(0).Integer != 7 || got.GetValue(1).Str != "keep-me" {
		t.Fatalf("unexpected revived tuple: %+v", got)
	}
}

func TestOpenTableHeapFindsLastPage(t *testing.T) {
	pool, cleanup := newTestPool(t, 8)
	defer cleanup()

	th, _ := NewTableHeap(pool)
	for i := 0; i < 3; i++ {
		th.InsertTuple(types.NewTuple(types.NewInteger(int64(i)), types.NewVarchar("row")))
	}

	reopened, err := OpenTableHeap(pool, th.FirstPageID())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.lastPageID != th.lastPageID {
		t.Fatalf("expected reopened heap to find last page %d, got %d", th.lastPageID, reopened.lastPageID)
	}
}
