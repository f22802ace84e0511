// Demo program: boots the storage core against a fresh database file,
// creates one table with an index, inserts three rows and reads them
// back sorted by age through the executor pipeline directly (there is no
// SQL front end in this core — see DESIGN.md's cmd/storagecore entry).
// Run: go run ./cmd/storagecore
package main

import (
	"fmt"
	"log"
	"os"

	"storagecore/catalog"
	"storagecore/concurrency"
	"storagecore/config"
	"storagecore/execution"
	"storagecore/expression"
	"storagecore/logging"
	"storagecore/storage/buffer"
	"storagecore/storage/disk"
	"storagecore/types"
)

var demoLog = logging.For("storagecore")

const dbFile = "storagecore.db"

func main() {
	cfg := config.DefaultConfig()

	dm, err := disk.NewFileManager(dbFile, cfg)
	if err != nil {
		log.Fatalf("open disk manager: %v", err)
	}
	defer dm.Close()

	pool := buffer.NewPool(cfg, dm)
	cat, err := catalog.NewCatalog(pool)
	if err != nil {
		log.Fatalf("new catalog: %v", err)
	}
	defer cat.Close()

	tm := concurrency.NewTransactionManager()
	lm := concurrency.NewLockManager(tm, cfg.DeadlockDetectionInterval)
	tm.SetLockManager(lm)
	defer lm.Close()

	demoLog.Info("storage core booted, seeding demo tables")

	studentsSchema := types.NewSchema(
		types.Column{Name: "id", Type: types.TypeInteger},
		types.Column{Name: "name", Type: types.TypeVarchar},
		types.Column{Name: "age", Type: types.TypeInteger},
	)
	students, err := cat.CreateTable("students", studentsSchema)
	if err != nil {
		log.Fatalf("create table students: %v", err)
	}
	if _, err := cat.CreateIndex("students", "students_pkey", "id", 64, 64); err != nil {
		log.Fatalf("create index students_pkey: %v", err)
	}

	txn := tm.Begin(concurrency.ReadCommitted)
	ctx := &execution.Context{Txn: txn, Locks: lm, Catalog: cat}

	seed := []*types.Tuple{
		types.NewTuple(types.NewInteger(1), types.NewVarchar("Alice"), types.NewInteger(20)),
		types.NewTuple(types.NewInteger(2), types.NewVarchar("Bob"), types.NewInteger(21)),
		types.NewTuple(types.NewInteger(3), types.NewVarchar("Carol"), types.NewInteger(19)),
	}
	ins := execution.NewInsert(ctx, students, newLiteralFeed(studentsSchema, seed))
	if _, _, _, err := runToCompletion(ins); err != nil {
		log.Fatalf("seed students: %v", err)
	}
	if err := tm.Commit(txn); err != nil {
		log.Fatalf("commit seed: %v", err)
	}

	fmt.Println("--- SELECT * FROM students ORDER BY age ---")
	readTxn := tm.Begin(concurrency.ReadCommitted)
	readCtx := &execution.Context{Txn: readTxn, Locks: lm, Catalog: cat}
	scan := execution.NewSeqScan(readCtx, students, false)
	sorted := execution.NewSort(scan, []execution.SortKey{
		{Expr: expression.ColumnRef{Name: "age"}, Direction: execution.OrderAsc},
	})
	if err := sorted.Init(); err != nil {
		log.Fatalf("init sort: %v", err)
	}
	for {
		tuple, _, ok, err := sorted.Next()
		if err != nil {
			log.Fatalf("scan students: %v", err)
		}
		if !ok {
			break
		}
		fmt.Printf("  id=%d name=%s age=%d\n", tuple.GetValue(0).Integer, tuple.GetValue(1).Str, tuple.GetValue(2).Integer)
	}
	if err := tm.Commit(readTxn); err != nil {
		log.Fatalf("commit read: %v", err)
	}

	fmt.Println("\nDone. Inspect:", dbFile)
	os.Exit(0)
}

// literalFeed stands in for a VALUES-list source stage, the same shape
// a planner's literal-row node would take feeding Insert/Update.
type literalFeed struct {
	schema *types.Schema
	rows   []*types.Tuple
	idx    int
}

func newLiteralFeed(schema *types.Schema, rows []*types.Tuple) *literalFeed {
	return &literalFeed{schema: schema, rows: rows}
}

func (f *literalFeed) OutputSchema() *types.Schema { return f.schema }

func (f *literalFeed) Init() error {
	f.idx = 0
	return nil
}

func (f *literalFeed) Next() (*types.Tuple, types.RID, bool, error) {
	if f.idx >= len(f.rows) {
		return nil, types.RID{}, false, nil
	}
	t := f.rows[f.idx]
	f.idx++
	return t, types.RID{}, true, nil
}

// runToCompletion runs Init and then a single Next on ex, returning that
// one tuple (Insert/Delete/Update emit exactly one count row).
func runToCompletion(ex execution.Executor) (*types.Tuple, types.RID, bool, error) {
	if err := ex.Init(); err != nil {
		return nil, types.RID{}, false, err
	}
	return ex.Next()
}
