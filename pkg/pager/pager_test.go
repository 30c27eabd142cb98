// pkg/pager/pager_test.go
package pager

import (
	"path/filepath"
	"testing"
)

func TestPagerCreate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	p, err := Open(path, Options{PageSize: 4096})
	if err != nil {
		t.Fatalf("failed to open pager: %v", err)
	}
	defer p.Close()

	if p.PageSize() != 4096 {
		t.Errorf("expected page size 4096, got %d", p.PageSize())
	}
	if p.PageCount() != 1 {
		t.Errorf("expected page count 1 (header page only) on a fresh database, got %d", p.PageCount())
	}
}

func TestPagerAllocatePage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	p, err := Open(path, Options{PageSize: 4096})
	if err != nil {
		t.Fatalf("failed to open pager: %v", err)
	}
	defer p.Close()

	// Page 1 is the header page; the first allocation is page 2.
	page, err := p.AllocatePage(AllocModeAny())
	if err != nil {
		t.Fatalf("failed to allocate page: %v", err)
	}
	if page.ID() != 2 {
		t.Errorf("expected page number 2, got %d", page.ID())
	}
	page.Unpin()

	page2, err := p.AllocatePage(AllocModeAny())
	if err != nil {
		t.Fatalf("failed to allocate second page: %v", err)
	}
	if page2.ID() != 3 {
		t.Errorf("expected page number 3, got %d", page2.ID())
	}
	page2.Unpin()
}

func TestPagerCommitSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	p, err := Open(path, Options{PageSize: 4096})
	if err != nil {
		t.Fatalf("failed to open pager: %v", err)
	}

	if err := p.BeginWriteTx(); err != nil {
		t.Fatalf("begin_write_tx failed: %v", err)
	}
	page, err := p.AllocatePage(AllocModeAny())
	if err != nil {
		t.Fatalf("failed to allocate page: %v", err)
	}
	pageNo := page.ID()
	copy(page.Contents().Data()[10:], []byte("test data"))
	page.Unpin()

	if err := p.CommitDirtyPages(); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	p2, err := Open(path, Options{PageSize: 4096})
	if err != nil {
		t.Fatalf("failed to reopen: %v", err)
	}
	defer p2.Close()

	page2, err := p2.ReadPage(pageNo)
	if err != nil {
		t.Fatalf("failed to read page after reopen: %v", err)
	}
	defer page2.Unpin()

	if string(page2.Contents().Data()[10:19]) != "test data" {
		t.Errorf("data not persisted correctly across a commit + reopen")
	}
}

func TestPagerHeaderPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	p, err := Open(path, Options{PageSize: 4096})
	if err != nil {
		t.Fatalf("failed to open pager: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	p2, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("failed to reopen: %v", err)
	}
	defer p2.Close()

	if p2.PageSize() != 4096 {
		t.Errorf("page size not persisted, got %d", p2.PageSize())
	}
}

func TestPagerLRUCacheEvictsAndReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	// Small cache size to force eviction.
	p, err := Open(path, Options{PageSize: 4096, CacheSize: 5})
	if err != nil {
		t.Fatalf("failed to open pager: %v", err)
	}
	defer p.Close()

	// Dirty pages cannot be evicted, so each page is committed on its own
	// to keep the dirty set within the 5-page cache.
	pageNos := make([]uint32, 10)
	for i := 0; i < 10; i++ {
		if err := p.BeginWriteTx(); err != nil {
			t.Fatalf("begin_write_tx failed: %v", err)
		}
		page, err := p.AllocatePage(AllocModeAny())
		if err != nil {
			t.Fatalf("failed to allocate page %d: %v", i, err)
		}
		pageNos[i] = page.ID()
		page.Contents().Data()[0] = byte(i)
		page.Unpin()

		if err := p.CommitDirtyPages(); err != nil {
			t.Fatalf("commit failed: %v", err)
		}
	}

	// Access pages in reverse order - forces evictions and reloads through
	// the WAL / storage path rather than the cache.
	for i := 9; i >= 0; i-- {
		page, err := p.ReadPage(pageNos[i])
		if err != nil {
			t.Fatalf("failed to get page %d: %v", i, err)
		}
		if page.Contents().Data()[0] != byte(i) {
			t.Errorf("page %d has wrong data: expected %d, got %d", i, i, page.Contents().Data()[0])
		}
		page.Unpin()
	}
}
