// pkg/pager/pager_memory_test.go
package pager

import (
	"testing"
)

func TestOpenMemoryMode(t *testing.T) {
	p, err := Open(":memory:", Options{PageSize: 4096, CacheSize: 100})
	if err != nil {
		t.Fatalf("Failed to open in-memory pager: %v", err)
	}
	defer p.Close()

	if p.PageSize() != 4096 {
		t.Errorf("Expected page size 4096, got %d", p.PageSize())
	}

	page, err := p.AllocatePage(AllocModeAny())
	if err != nil {
		t.Fatalf("Failed to allocate page: %v", err)
	}

	testString := "Test data for in-memory page"
	copy(page.Contents().Data(), []byte(testString))
	pageNo := page.ID()
	page.Unpin()

	retrievedPage, err := p.ReadPage(pageNo)
	if err != nil {
		t.Fatalf("Failed to get page: %v", err)
	}
	defer retrievedPage.Unpin()

	got := string(retrievedPage.Contents().Data()[:len(testString)])
	if got != testString {
		t.Errorf("Data not persisted correctly: expected %q, got %q", testString, got)
	}
}

func TestInMemoryPagerNoWAL(t *testing.T) {
	p, err := Open(":memory:", Options{PageSize: 4096, CacheSize: 100})
	if err != nil {
		t.Fatalf("Failed to open pager: %v", err)
	}
	defer p.Close()

	if p.WalFrameCount() != 0 || p.GetMaxFrameInWal() != 0 {
		t.Error("in-memory pager should report no WAL frames")
	}
}

func TestInMemoryPagerTransactions(t *testing.T) {
	p, err := Open(":memory:", Options{PageSize: 4096, CacheSize: 100})
	if err != nil {
		t.Fatalf("Failed to open pager: %v", err)
	}
	defer p.Close()

	if err := p.BeginWriteTx(); err != nil {
		t.Fatalf("Failed to begin transaction: %v", err)
	}

	page, err := p.AllocatePage(AllocModeAny())
	if err != nil {
		t.Fatalf("Failed to allocate page: %v", err)
	}
	copy(page.Contents().Data(), []byte("Transaction data"))
	pageNo := page.ID()
	page.Unpin()

	if err := p.CommitDirtyPages(); err != nil {
		t.Fatalf("Failed to commit transaction: %v", err)
	}

	page, err = p.ReadPage(pageNo)
	if err != nil {
		t.Fatalf("Failed to get page after commit: %v", err)
	}
	defer page.Unpin()

	if string(page.Contents().Data()[:16]) != "Transaction data" {
		t.Errorf("Data not persisted after commit")
	}
}

func TestInMemoryPagerRollback(t *testing.T) {
	p, err := Open(":memory:", Options{PageSize: 4096, CacheSize: 100})
	if err != nil {
		t.Fatalf("Failed to open pager: %v", err)
	}
	defer p.Close()

	// Allocate and settle a page outside any transaction.
	page, err := p.AllocatePage(AllocModeAny())
	if err != nil {
		t.Fatalf("Failed to allocate page: %v", err)
	}
	copy(page.Contents().Data(), []byte("Initial data"))
	pageNo := page.ID()
	page.Unpin()

	if err := p.BeginWriteTx(); err != nil {
		t.Fatalf("Failed to begin transaction: %v", err)
	}

	page, err = p.ReadPage(pageNo)
	if err != nil {
		t.Fatalf("Failed to get page: %v", err)
	}
	p.markDirty(page)
	copy(page.Contents().Data(), []byte("Modified data"))
	page.Unpin()

	p.Rollback()

	page, err = p.ReadPage(pageNo)
	if err != nil {
		t.Fatalf("Failed to get page after rollback: %v", err)
	}
	defer page.Unpin()

	if string(page.Contents().Data()[:12]) != "Initial data" {
		t.Errorf("Data not restored after rollback, got: %s", string(page.Contents().Data()[:12]))
	}
}

func TestInMemoryPagerMultiplePages(t *testing.T) {
	p, err := Open(":memory:", Options{PageSize: 4096, CacheSize: 100})
	if err != nil {
		t.Fatalf("Failed to open pager: %v", err)
	}
	defer p.Close()

	pageNos := make([]uint32, 10)
	for i := 0; i < 10; i++ {
		page, err := p.AllocatePage(AllocModeAny())
		if err != nil {
			t.Fatalf("Failed to allocate page %d: %v", i, err)
		}
		data := []byte("Page data " + string(rune('A'+i)))
		copy(page.Contents().Data(), data)
		pageNos[i] = page.ID()
		page.Unpin()
	}

	for i, pageNo := range pageNos {
		page, err := p.ReadPage(pageNo)
		if err != nil {
			t.Fatalf("Failed to get page %d: %v", i, err)
		}
		expected := "Page data " + string(rune('A'+i))
		if string(page.Contents().Data()[:len(expected)]) != expected {
			t.Errorf("Page %d has wrong data: expected %q, got %q",
				i, expected, string(page.Contents().Data()[:len(expected)]))
		}
		page.Unpin()
	}

	if p.PageCount() != uint32(11) { // 1 header page + 10 data pages
		t.Errorf("Expected 11 pages, got %d", p.PageCount())
	}
}
