// Package pagefile implements a page.Manager over a single os.File, one of
// Size bytes per block, extended as pages are allocated.
// Grounded on the teacher's pkg/diskann/disk_graph.go DiskGraph: an
// os.File-backed store with a sync.RWMutex guarding access and a
// read-modify-write cycle per node, generalized here from a variable-length
// node record to the fixed-size slotted page this module's tape/page
// packages already assume.
package pagefile

import (
	"fmt"
	"os"
	"sync"

	"github.com/pgvectorscale/tsv/pkg/vamana/page"
)

// Manager is a file-backed page.Manager suitable for a standalone CLI or
// example that has no surrounding host database to supply one. It keeps
// every fetched page cached in memory, keyed by block number, so that a
// Tape's long-held current page (mutated in place between rotations,
// see page/tape.go's Write) stays visible to any other Read/Modify call
// against the same block rather than being shadowed by a stale on-disk
// copy. This mirrors the pinned-buffer discipline a real host's buffer
// manager provides; Commit and NewPage both write straight through to the
// file. A cached page changed in place reaches the file only when it is
// next committed, so until then a reopen sees the older copy.
type Manager struct {
	mu       sync.Mutex
	f        *os.File
	blockCnt uint32
	cache    map[uint32]*page.Page
}

// Open creates or reopens a page file at path. An existing file's size must
// be an exact multiple of page.Size.
func Open(path string) (*Manager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("pagefile: open %s: %w", path, err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("pagefile: stat %s: %w", path, err)
	}
	if stat.Size()%page.Size != 0 {
		f.Close()
		return nil, fmt.Errorf("pagefile: %s size %d is not a multiple of page size %d", path, stat.Size(), page.Size)
	}
	return &Manager{f: f, blockCnt: uint32(stat.Size() / page.Size), cache: make(map[uint32]*page.Page)}, nil
}

// BlockCount reports how many pages currently exist in the file.
func (m *Manager) BlockCount() (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blockCnt, nil
}

// Close releases the backing file. Cached pages are not written back;
// anything not yet committed is lost.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.f.Close()
}

func (m *Manager) NewPage(t page.Type) (uint32, *page.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	block := m.blockCnt
	p := page.New(t)
	if _, err := m.f.WriteAt(p.Bytes(), int64(block)*page.Size); err != nil {
		return 0, nil, fmt.Errorf("pagefile: write new page %d: %w", block, err)
	}
	m.blockCnt++
	m.cache[block] = p
	return block, p, nil
}

func (m *Manager) Modify(block uint32) (*page.Page, error) {
	return m.fetch(block)
}

func (m *Manager) Read(block uint32) (*page.Page, error) {
	return m.fetch(block)
}

func (m *Manager) fetch(block uint32) (*page.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if block >= m.blockCnt {
		return nil, fmt.Errorf("pagefile: block %d out of range (have %d)", block, m.blockCnt)
	}
	if p, ok := m.cache[block]; ok {
		return p, nil
	}
	buf := make([]byte, page.Size)
	if _, err := m.f.ReadAt(buf, int64(block)*page.Size); err != nil {
		return nil, fmt.Errorf("pagefile: read block %d: %w", block, err)
	}
	p := page.Wrap(buf)
	m.cache[block] = p
	return p, nil
}

func (m *Manager) Commit(block uint32, p *page.Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[block] = p
	if _, err := m.f.WriteAt(p.Bytes(), int64(block)*page.Size); err != nil {
		return fmt.Errorf("pagefile: commit block %d: %w", block, err)
	}
	return nil
}

func (m *Manager) Release(block uint32, p *page.Page) {
	// Read-only pages are never dirty; nothing to flush.
}
