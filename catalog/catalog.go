// Package catalog maintains table and index metadata: schema, the heap
// storing a table's rows, and the B+ tree indexes built over it.
// Grounded on storage_engine/catalog/main.go's CatalogManager
// (RegisterNewTable/GetTableSchema/table-to-file mapping), generalized
// from that package's disk-persisted JSON schema files to an in-memory
// registry (this core has no catalog persistence format of its own —
// spec.md treats the catalog as a read-only external collaborator) and
// from its plain map memoization to a cost-accounted ristretto cache.
package catalog

import (
	"fmt"
	"sync"

	ristretto "github.com/dgraph-io/ristretto/v2"

	bplus "storagecore/index/bplustree"
	"storagecore/logging"
	"storagecore/storage/buffer"
	"storagecore/storage/heap"
	"storagecore/types"
)

var log = logging.For("catalog")

// TableInfo is everything the executors need to operate over one
// table: its schema and the heap holding its rows.
type TableInfo struct {
	OID    types.TableOID
	Name   string
	Schema *types.Schema
	Heap   *heap.TableHeap
}

// IndexInfo is one B+ tree index over a table's key column.
type IndexInfo struct {
	OID       types.IndexOID
	Name      string
	TableOID  types.TableOID
	KeyColumn string
	Tree      *bplus.Tree
}

// Catalog is the in-memory table/index registry. It also implements
// concurrency.Undoer, dispatching each undo call to the owning table's
// heap by oid — letting storage/heap stay ignorant of multi-table
// routing and concurrency stay ignorant of the heap/catalog packages
// entirely (it only calls the interface).
type Catalog struct {
	mu sync.RWMutex

	pool *buffer.Pool

	nextTableOID types.TableOID
	nextIndexOID types.IndexOID

	tablesByOID    map[types.TableOID]*TableInfo
	tablesByName   map[string]types.TableOID
	indexesByOID   map[types.IndexOID]*IndexInfo
	indexesByTable map[types.TableOID][]types.IndexOID

	schemaCache *ristretto.Cache[string, *types.Schema]
}

// NewCatalog builds an empty catalog backed by pool for table-heap and
// index-page allocation.
func NewCatalog(pool *buffer.Pool) (*Catalog, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, *types.Schema]{
		NumCounters: 1e4,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: creating schema cache: %w", err)
	}
	return &Catalog{
		pool:           pool,
		tablesByOID:    make(map[types.TableOID]*TableInfo),
		tablesByName:   make(map[string]types.TableOID),
		indexesByOID:   make(map[types.IndexOID]*IndexInfo),
		indexesByTable: make(map[types.TableOID][]types.IndexOID),
		schemaCache:    cache,
	}, nil
}

// CreateTable registers a new table with a freshly allocated heap.
func (c *Catalog) CreateTable(name string, schema *types.Schema) (*TableInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.tablesByName[name]; exists {
		return nil, fmt.Errorf("catalog: table %q already exists", name)
	}

	th, err := heap.NewTableHeap(c.pool)
	if err != nil {
		return nil, fmt.Errorf("catalog: allocating heap for table %q: %w", name, err)
	}

	c.nextTableOID++
	oid := c.nextTableOID
	ti := &TableInfo{OID: oid, Name: name, Schema: schema, Heap: th}
	c.tablesByOID[oid] = ti
	c.tablesByName[name] = oid
	c.cacheSchema(name, schema)

	log.WithField("table", name).WithField("oid", oid).Debug("table created")
	return ti, nil
}

// Close releases the schema cache's background goroutines.
func (c *Catalog) Close() {
	c.schemaCache.Close()
}

func (c *Catalog) cacheSchema(name string, schema *types.Schema) {
	c.schemaCache.Set(name, schema, int64(schema.Width())+1)
	c.schemaCache.Wait()
}

// GetTable looks up a table by oid.
func (c *Catalog) GetTable(oid types.TableOID) (*TableInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ti, ok := c.tablesByOID[oid]
	return ti, ok
}

// GetTableByName looks up a table by name.
func (c *Catalog) GetTableByName(name string) (*TableInfo, bool) {
	c.mu.RLock()
	oid, ok := c.tablesByName[name]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return c.GetTable(oid)
}

// GetTableSchema returns name's schema, checking the ristretto cache
// before falling back to the canonical registry — generalizing
// CatalogManager.GetTableSchema's "fast path: return from memory, else
// load from disk" shape to this core's in-memory-only catalog.
func (c *Catalog) GetTableSchema(name string) (*types.Schema, error) {
	if schema, ok := c.schemaCache.Get(name); ok {
		return schema, nil
	}
	ti, ok := c.GetTableByName(name)
	if !ok {
		return nil, fmt.Errorf("catalog: table %q does not exist", name)
	}
	c.cacheSchema(name, ti.Schema)
	return ti.Schema, nil
}

// CreateIndex builds a new B+ tree index over tableName's keyColumn.
func (c *Catalog) CreateIndex(tableName, indexName, keyColumn string, leafMaxSize, internalMaxSize int) (*IndexInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tableOID, ok := c.tablesByName[tableName]
	if !ok {
		return nil, fmt.Errorf("catalog: table %q does not exist", tableName)
	}
	ti := c.tablesByOID[tableOID]
	if ti.Schema.ColumnIndex(keyColumn) < 0 {
		return nil, fmt.Errorf("catalog: table %q has no column %q", tableName, keyColumn)
	}

	tree, err := bplus.NewTree(c.pool, leafMaxSize, internalMaxSize)
	if err != nil {
		return nil, fmt.Errorf("catalog: allocating index %q: %w", indexName, err)
	}

	c.nextIndexOID++
	oid := c.nextIndexOID
	ii := &IndexInfo{OID: oid, Name: indexName, TableOID: tableOID, KeyColumn: keyColumn, Tree: tree}
	c.indexesByOID[oid] = ii
	c.indexesByTable[tableOID] = append(c.indexesByTable[tableOID], oid)

	log.WithField("index", indexName).WithField("table", tableName).Debug("index created")
	return ii, nil
}

// ExtractKey pulls ii's key column's integer value out of tuple,
// reporting false if the column is missing or not an integer (this
// core's B+ tree indexes only ever key on integer columns).
func (ii *IndexInfo) ExtractKey(tuple *types.Tuple, schema *types.Schema) (int64, bool) {
	idx := schema.ColumnIndex(ii.KeyColumn)
	if idx < 0 {
		return 0, false
	}
	v := tuple.GetValue(idx)
	if v.Type != types.TypeInteger {
		return 0, false
	}
	return v.Integer, true
}

// GetIndex looks up an index by oid.
func (c *Catalog) GetIndex(oid types.IndexOID) (*IndexInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ii, ok := c.indexesByOID[oid]
	return ii, ok
}

// GetTableIndexes returns every index built over oid.
func (c *Catalog) GetTableIndexes(oid types.TableOID) []*IndexInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	oids := c.indexesByTable[oid]
	out := make([]*IndexInfo, 0, len(oids))
	for _, ioid := range oids {
		out = append(out, c.indexesByOID[ioid])
	}
	return out
}

// --- concurrency.Undoer (satisfied structurally; catalog does not
// import the concurrency package to avoid a needless dependency edge)

// UndoInsert compensates an insert into oid's heap at rid.
func (c *Catalog) UndoInsert(oid types.TableOID, rid types.RID) error {
	ti, ok := c.GetTable(oid)
	if !ok {
		return fmt.Errorf("catalog: undo insert: table %d not found", oid)
	}
	return ti.Heap.UndoInsert(rid)
}

// UndoDelete compensates a delete from oid's heap at rid.
func (c *Catalog) UndoDelete(oid types.TableOID, rid types.RID, before *types.Tuple) error {
	ti, ok := c.GetTable(oid)
	if !ok {
		return fmt.Errorf("catalog: undo delete: table %d not found", oid)
	}
	return ti.Heap.UndoDelete(rid, before)
}

// UndoUpdate compensates an update to oid's heap at rid.
func (c *Catalog) UndoUpdate(oid types.TableOID, rid types.RID, before *types.Tuple) error {
	ti, ok := c.GetTable(oid)
	if !ok {
		return fmt.Errorf("catalog: undo update: table %d not found", oid)
	}
	return ti.Heap.UndoUpdate(rid, before)
}
