// Package disk implements the external disk manager collaborator of
// spec.md §6: ReadPage/WritePage against a single backing file,
// addressed by fixed-size page offsets. Grounded on
// storage_engine/disk_manager/main.go's ReadAt/WriteAt-at-offset
// approach, simplified to one file since the multi-file, multi-fileID
// catalog layer is out of this core's scope.
package disk

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"storagecore/config"
	"storagecore/logging"
	"storagecore/types"
)

var log = logging.For("disk")

// Manager is the sole caller-facing surface the buffer pool talks to.
type Manager interface {
	ReadPage(id types.PageID, buf []byte) error
	WritePage(id types.PageID, buf []byte) error
	AllocatePage() types.PageID
	DeallocatePage(id types.PageID)
}

// FileManager is a Manager backed by a single OS file, pages packed
// back-to-back at id*PageSize.
type FileManager struct {
	mu       sync.Mutex
	file     *os.File
	pageSize int
	nextID   int32
	freed    map[types.PageID]bool
}

// NewFileManager opens (creating if absent) the backing file at path.
func NewFileManager(path string, cfg *config.Config) (*FileManager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("disk manager: open %s: %w", path, err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("disk manager: stat %s: %w", path, err)
	}
	next := int32(stat.Size() / int64(cfg.PageSize))
	return &FileManager{
		file:     f,
		pageSize: cfg.PageSize,
		nextID:   next,
		freed:    make(map[types.PageID]bool),
	}, nil
}

// ReadPage fills buf (len == PageSize) with the bytes of page id, zero
// filling any portion beyond the current end of file.
func (m *FileManager) ReadPage(id types.PageID, buf []byte) error {
	if len(buf) != m.pageSize {
		return fmt.Errorf("disk manager: read buffer size %d != page size %d", len(buf), m.pageSize)
	}
	offset := int64(id) * int64(m.pageSize)
	n, err := m.file.ReadAt(buf, offset)
	if err != nil && n == 0 {
		// Reading a never-written page: treat as all-zero, matching the
		// buffer pool's NewPage zero-fill contract.
		for i := range buf {
			buf[i] = 0
		}
		return nil
	}
	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}
	return nil
}

// WritePage writes buf unconditionally to page id's offset.
func (m *FileManager) WritePage(id types.PageID, buf []byte) error {
	if len(buf) != m.pageSize {
		return fmt.Errorf("disk manager: write buffer size %d != page size %d", len(buf), m.pageSize)
	}
	offset := int64(id) * int64(m.pageSize)
	if _, err := m.file.WriteAt(buf, offset); err != nil {
		return fmt.Errorf("disk manager: write page %d: %w", id, err)
	}
	return nil
}

// AllocatePage reserves the next page id, reusing a freed one if
// available.
func (m *FileManager) AllocatePage() types.PageID {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, free := range m.freed {
		if free {
			delete(m.freed, id)
			return id
		}
	}
	id := types.PageID(atomic.AddInt32(&m.nextID, 1) - 1)
	log.WithField("page_id", id).Debug("allocated page")
	return id
}

// DeallocatePage marks id as free for reuse by a future AllocatePage.
func (m *FileManager) DeallocatePage(id types.PageID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.freed[id] = true
}

// Close releases the backing file handle.
func (m *FileManager) Close() error {
	return m.file.Close()
}
