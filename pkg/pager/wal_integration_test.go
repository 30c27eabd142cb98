// pkg/pager/wal_integration_test.go
package pager

import (
	"path/filepath"
	"testing"
)

func TestPagerWALBeginTransaction(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	p, err := Open(dbPath, Options{PageSize: 4096})
	if err != nil {
		t.Fatalf("failed to open pager: %v", err)
	}
	defer p.Close()

	if err := p.BeginWriteTx(); err != nil {
		t.Fatalf("BeginWriteTx failed: %v", err)
	}
	if !p.inTransaction {
		t.Error("expected to be in transaction")
	}

	p.Rollback()
}

func TestPagerWALCommit(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	p, err := Open(dbPath, Options{PageSize: 4096})
	if err != nil {
		t.Fatalf("failed to open pager: %v", err)
	}
	defer p.Close()

	if err := p.BeginWriteTx(); err != nil {
		t.Fatalf("BeginWriteTx failed: %v", err)
	}

	page, err := p.AllocatePage(AllocModeAny())
	if err != nil {
		t.Fatalf("AllocatePage failed: %v", err)
	}
	page.Contents().Data()[0] = 42
	page.Unpin()

	if err := p.CommitDirtyPages(); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	if p.inTransaction {
		t.Error("should not be in transaction after commit")
	}

	if p.WalFrameCount() == 0 {
		t.Error("expected committed frames in the WAL")
	}
}

func TestPagerWALRollback(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	p, err := Open(dbPath, Options{PageSize: 4096})
	if err != nil {
		t.Fatalf("failed to open pager: %v", err)
	}
	defer p.Close()

	if err := p.BeginWriteTx(); err != nil {
		t.Fatalf("BeginWriteTx failed: %v", err)
	}
	initialPage, err := p.AllocatePage(AllocModeAny())
	if err != nil {
		t.Fatalf("AllocatePage failed: %v", err)
	}
	initialPageNo := initialPage.ID()
	initialPage.Contents().Data()[0] = 10
	initialPage.Unpin()
	if err := p.CommitDirtyPages(); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	if err := p.BeginWriteTx(); err != nil {
		t.Fatalf("BeginWriteTx failed: %v", err)
	}

	page, err := p.ReadPage(initialPageNo)
	if err != nil {
		t.Fatalf("ReadPage failed: %v", err)
	}
	p.markDirty(page)
	page.Contents().Data()[0] = 99
	page.Unpin()

	p.Rollback()

	page2, err := p.ReadPage(initialPageNo)
	if err != nil {
		t.Fatalf("ReadPage after rollback failed: %v", err)
	}
	defer page2.Unpin()

	if page2.Contents().Data()[0] != 10 {
		t.Errorf("expected value 10 after rollback, got %d", page2.Contents().Data()[0])
	}
}

func TestPagerWALRecovery(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	p, err := Open(dbPath, Options{PageSize: 4096})
	if err != nil {
		t.Fatalf("failed to open pager: %v", err)
	}

	if err := p.BeginWriteTx(); err != nil {
		t.Fatalf("BeginWriteTx failed: %v", err)
	}
	page, err := p.AllocatePage(AllocModeAny())
	if err != nil {
		t.Fatalf("AllocatePage failed: %v", err)
	}
	pageNo := page.ID()
	page.Contents().Data()[0] = 77
	page.Unpin()

	if err := p.CommitDirtyPages(); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	// Simulate crash recovery: close without an explicit checkpoint.
	if err := p.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	p2, err := Open(dbPath, Options{PageSize: 4096})
	if err != nil {
		t.Fatalf("failed to reopen pager: %v", err)
	}
	defer p2.Close()

	page2, err := p2.ReadPage(pageNo)
	if err != nil {
		t.Fatalf("ReadPage after recovery failed: %v", err)
	}
	defer page2.Unpin()

	if page2.Contents().Data()[0] != 77 {
		t.Errorf("expected value 77 after recovery, got %d", page2.Contents().Data()[0])
	}
}
