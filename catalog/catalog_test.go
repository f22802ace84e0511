package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"storagecore/config"
	"storagecore/storage/buffer"
	"storagecore/storage/disk"
	"storagecore/types"
)

func newTestCatalog(t *testing.T) (*Catalog, func()) {
	t.Helper()
	dir, err := os.MkdirTemp("", "storagecore_catalog_test")
	if err != nil {
		t.Fatalf("mkdtemp: %v", err)
	}
	cfg := config.DefaultConfig()
	cfg.BufferPoolSize = 16
	dm, err := disk.NewFileManager(filepath.Join(dir, "pool.db"), cfg)
	if err != nil {
		t.Fatalf("new disk manager: %v", err)
	}
	pool := buffer.NewPool(cfg, dm)
	cat, err := NewCatalog(pool)
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	return cat, func() {
		dm.Close()
		os.RemoveAll(dir)
	}
}

func usersSchema() *types.Schema {
	return types.NewSchema(
		types.Column{Name: "id", Type: types.TypeInteger},
		types.Column{Name: "name", Type: types.TypeVarchar},
	)
}

func TestCreateTableThenGetByOIDAndName(t *testing.T) {
	cat, cleanup := newTestCatalog(t)
	defer cleanup()

	ti, err := cat.CreateTable("users", usersSchema())
	if err != nil {
		t.Fatalf("create table: %v", err)
	}

	byOID, ok := cat.GetTable(ti.OID)
	if !ok || byOID.Name != "users" {
		t.Fatalf("expected to find table by oid, got %+v ok=%v", byOID, ok)
	}
	byName, ok := cat.GetTableByName("users")
	if !ok || byName.OID != ti.OID {
		t.Fatalf("expected to find table by name, got %+v ok=%v", byName, ok)
	}
}

func TestCreateDuplicateTableFails(t *testing.T) {
	cat, cleanup := newTestCatalog(t)
	defer cleanup()

	if _, err := cat.CreateTable("users", usersSchema()); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := cat.CreateTable("users", usersSchema()); err == nil {
		t.Fatal("expected duplicate table creation to fail")
	}
}

func TestGetTableSchemaPopulatesCacheAndMatches(t *testing.T) {
	cat, cleanup := newTestCatalog(t)
	defer cleanup()

	schema := usersSchema()
	if _, err := cat.CreateTable("users", schema); err != nil {
		t.Fatalf("create table: %v", err)
	}

	got, err := cat.GetTableSchema("users")
	if err != nil {
		t.Fatalf("get schema: %v", err)
	}
	if got.Width() != schema.Width() {
		t.Fatalf("expected schema width %d, got %d", schema.Width(), got.Width())
	}
	if _, err := cat.GetTableSchema("missing"); err == nil {
		t.Fatal("expected schema lookup for unknown table to fail")
	}
}

func TestCreateIndexRejectsUnknownColumn(t *testing.T) {
	cat, cleanup := newTestCatalog(t)
	defer cleanup()

	if _, err := cat.CreateTable("users", usersSchema()); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := cat.CreateIndex("users", "idx_missing", "nope", 4, 4); err == nil {
		t.Fatal("expected index creation on unknown column to fail")
	}
}

func TestCreateIndexAndLookupByTable(t *testing.T) {
	cat, cleanup := newTestCatalog(t)
	defer cleanup()

	ti, err := cat.CreateTable("users", usersSchema())
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	ii, err := cat.CreateIndex("users", "idx_id", "id", 4, 4)
	if err != nil {
		t.Fatalf("create index: %v", err)
	}

	indexes := cat.GetTableIndexes(ti.OID)
	if len(indexes) != 1 || indexes[0].OID != ii.OID {
		t.Fatalf("expected one index for table, got %+v", indexes)
	}
	byOID, ok := cat.GetIndex(ii.OID)
	if !ok || byOID.KeyColumn != "id" {
		t.Fatalf("expected to find index by oid, got %+v ok=%v", byOID, ok)
	}
}

func TestUndoInsertDispatchesToOwningHeap(t *testing.T) {
	cat, cleanup := newTestCatalog(t)
	defer cleanup()

	ti, err := cat.CreateTable("users", usersSchema())
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	rid, err := ti.Heap.InsertTuple(types.NewTuple(types.NewInteger(1), types.NewVarchar("a")))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := cat.UndoInsert(ti.OID, rid); err != nil {
		t.Fatalf("undo insert: %v", err)
	}
	if _, err := ti.Heap.GetTuple(rid, ti.Schema); err == nil {
		t.Fatal("expected undone insert to be tombstoned")
	}

	if err := cat.UndoInsert(types.TableOID(999), rid); err == nil {
		t.Fatal("expected undo on unknown table oid to fail")
	}
}
