package buffer

import (
	"os"
	"path/filepath"
	"testing"

	"storagecore/config"
	"storagecore/storage/disk"
	"storagecore/types"
)

func newTestPool(t *testing.T, frames int) (*Pool, func()) {
	t.Helper()
	dir := filepath.Join(os.TempDir(), "storagecore_bp_test")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(dir, "pool.db")
	cfg := config.DefaultConfig()
	cfg.BufferPoolSize = frames
	dm, err := disk.NewFileManager(path, cfg)
	if err != nil {
		t.Fatalf("new disk manager: %v", err)
	}
	pool := NewPool(cfg, dm)
	return pool, func() {
		dm.Close()
		os.RemoveAll(dir)
	}
}

func TestNewPageFetchPageRoundTrip(t *testing.T) {
	pool, cleanup := newTestPool(t, 4)
	defer cleanup()

	id, pg, ok := pool.NewPage()
	if !ok {
		t.Fatal("expected NewPage to succeed")
	}
	copy(pg.Data(), []byte("hello-page"))
	pool.UnpinPage(id, true)

	fetched, ok := pool.FetchPage(id)
	if !ok {
		t.Fatal("expected FetchPage to succeed")
	}
	if string(fetched.Data()[:10]) != "hello-page" {
		t.Fatalf("unexpected page contents: %q", fetched.Data()[:10])
	}
	pool.UnpinPage(id, false)
}

func TestFlushPageThenFetchReturnsSameBytes(t *testing.T) {
	pool, cleanup := newTestPool(t, 4)
	defer cleanup()

	id, pg, _ := pool.NewPage()
	copy(pg.Data(), []byte("durable"))
	if !pool.FlushPage(id) {
		t.Fatal("expected flush to succeed")
	}
	pool.UnpinPage(id, false)

	// Force an eviction so the next fetch must read the flushed bytes
	// back from disk rather than from the still-resident frame.
	for i := 0; i < 4; i++ {
		extraID, _, ok := pool.NewPage()
		if !ok {
			t.Fatalf("expected filler NewPage %d to succeed", i)
		}
		pool.UnpinPage(extraID, false)
	}

	fetched, ok := pool.FetchPage(id)
	if !ok {
		t.Fatal("expected fetch to succeed")
	}
	if string(fetched.Data()[:7]) != "durable" {
		t.Fatalf("unexpected bytes after flush: %q", fetched.Data()[:7])
	}
	pool.UnpinPage(id, false)
}

func TestDeletePageIsIdempotent(t *testing.T) {
	pool, cleanup := newTestPool(t, 4)
	defer cleanup()

	if !pool.DeletePage(types.PageID(999)) {
		t.Fatal("expected DeletePage on absent page to return true")
	}

	id, _, _ := pool.NewPage()
	pool.UnpinPage(id, false)
	if !pool.DeletePage(id) {
		t.Fatal("expected DeletePage to succeed when unpinned")
	}
	if !pool.DeletePage(id) {
		t.Fatal("expected second DeletePage to be idempotent")
	}
}

func TestDeletePinnedPageFails(t *testing.T) {
	pool, cleanup := newTestPool(t, 4)
	defer cleanup()

	id, _, _ := pool.NewPage() // still pinned (pin count 1)
	if pool.DeletePage(id) {
		t.Fatal("expected DeletePage on pinned page to fail")
	}
}

// TestEvictionUnderPressure reproduces spec.md §8 scenario 1.
func TestEvictionUnderPressure(t *testing.T) {
	pool, cleanup := newTestPool(t, 3)
	defer cleanup()

	ids := make([]types.PageID, 0, 5)
	for i := 0; i < 3; i++ {
		id, _, ok := pool.NewPage()
		if !ok {
			t.Fatalf("expected NewPage %d to succeed", i)
		}
		ids = append(ids, id)
	}
	for _, id := range ids {
		pool.UnpinPage(id, false)
	}

	// Pool is full but every frame is now evictable. A 4th NewPage must
	// succeed by evicting one of the three (history-insufficient, tied
	// at +inf distance, so the earliest-touched — ids[0] — goes first).
	id4, _, ok := pool.NewPage()
	if !ok {
		t.Fatal("expected 4th NewPage to evict a frame and succeed")
	}
	if _, resident := pool.pageTable[ids[0]]; resident {
		t.Fatalf("expected page %d to have been evicted", ids[0])
	}
	pool.UnpinPage(id4, false)

	id5, _, ok := pool.NewPage()
	if !ok {
		t.Fatal("expected 5th NewPage to evict a frame and succeed")
	}
	if _, resident := pool.pageTable[ids[1]]; resident {
		t.Fatalf("expected page %d to have been evicted", ids[1])
	}
	pool.UnpinPage(id5, false)
}
