package pagesource

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// Memory is an in-memory Database made of equally sized pages.
type Memory struct {
	mu       sync.Mutex
	pageSize int
	pages    [][]byte

	// FailAt makes Pages and Page fail when they reach this page number.
	FailAt int

	// FailRestore makes RestoreFrom fail without touching the pages.
	FailRestore bool

	restores int
}

// NewMemory returns an empty Memory database with the given page size.
func NewMemory(pageSize int) *Memory {
	return &Memory{pageSize: pageSize}
}

// PageSize returns the configured page size.
func (m *Memory) PageSize() int {
	return m.pageSize
}

// Set stores data as page pgno, growing the database with zero pages if
// needed. data shorter than the page size is zero padded.
func (m *Memory) Set(pgno int, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for len(m.pages) < pgno {
		m.pages = append(m.pages, make([]byte, m.pageSize))
	}
	page := make([]byte, m.pageSize)
	copy(page, data)
	m.pages[pgno-1] = page
}

// Truncate drops every page after n.
func (m *Memory) Truncate(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n < len(m.pages) {
		m.pages = m.pages[:n]
	}
}

// Snapshot returns a copy of all pages.
func (m *Memory) Snapshot() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([][]byte, len(m.pages))
	for i, p := range m.pages {
		out[i] = append([]byte(nil), p...)
	}
	return out
}

// Restores returns how many times RestoreFrom succeeded.
func (m *Memory) Restores() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.restores
}

// PageCount implements Source.
func (m *Memory) PageCount(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pages), nil
}

// Pages implements Source.
func (m *Memory) Pages(ctx context.Context, fn PageFunc) error {
	pages := m.Snapshot()
	for i, page := range pages {
		pgno := i + 1
		if err := ctx.Err(); err != nil {
			return err
		}
		if m.FailAt != 0 && pgno == m.FailAt {
			return fmt.Errorf("read page %d: injected failure", pgno)
		}
		if err := fn(pgno, page); err != nil {
			return err
		}
	}
	return nil
}

// Page implements Source.
func (m *Memory) Page(_ context.Context, pgno int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailAt != 0 && pgno == m.FailAt {
		return nil, fmt.Errorf("read page %d: injected failure", pgno)
	}
	if pgno < 1 || pgno > len(m.pages) {
		return nil, ErrNoPage
	}
	return append([]byte(nil), m.pages[pgno-1]...), nil
}

// RestoreFrom implements Restorer by loading imagePath as whole pages.
// A trailing partial page is rejected.
func (m *Memory) RestoreFrom(_ context.Context, imagePath string) error {
	if m.FailRestore {
		return fmt.Errorf("restore from %s: injected failure", imagePath)
	}
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	if len(data)%m.pageSize != 0 {
		return fmt.Errorf("image size %d is not a multiple of page size %d", len(data), m.pageSize)
	}

	pages := make([][]byte, 0, len(data)/m.pageSize)
	for off := 0; off < len(data); off += m.pageSize {
		pages = append(pages, append([]byte(nil), data[off:off+m.pageSize]...))
	}

	m.mu.Lock()
	m.pages = pages
	m.restores++
	m.mu.Unlock()
	return nil
}
