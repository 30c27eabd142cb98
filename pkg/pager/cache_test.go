// pkg/pager/cache_test.go
package pager

import (
	"errors"
	"testing"
)

func newTestCachePage(id uint32) *Page {
	pg := NewPage(id)
	pg.SetContents(&PageContent{})
	pg.SetLoaded()
	return pg
}

func TestPageCache_InsertAndGet(t *testing.T) {
	c := NewPageCache(4)
	pg := newTestCachePage(1)

	if err := c.Insert(1, pg); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	got, ok := c.Get(1)
	if !ok {
		t.Fatal("expected page 1 to be cached")
	}
	if got.ID() != 1 {
		t.Errorf("expected page id 1, got %d", got.ID())
	}
	if c.Len() != 1 {
		t.Errorf("expected len 1, got %d", c.Len())
	}
}

func TestPageCache_InsertKeyExists(t *testing.T) {
	c := NewPageCache(4)
	if err := c.Insert(1, newTestCachePage(1)); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := c.Insert(1, newTestCachePage(1)); !errors.Is(err, ErrCacheKeyExists) {
		t.Errorf("expected ErrCacheKeyExists, got %v", err)
	}
}

func TestPageCache_InsertIgnoreExistingReplaces(t *testing.T) {
	c := NewPageCache(4)
	first := newTestCachePage(1)
	if err := c.Insert(1, first); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	second := newTestCachePage(1)
	if err := c.InsertIgnoreExisting(1, second); err != nil {
		t.Fatalf("insert ignore existing failed: %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("expected len 1 after replace, got %d", c.Len())
	}
	got, _ := c.Get(1)
	if got != second {
		t.Error("expected replaced entry to be the second page")
	}
}

func TestPageCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewPageCache(2)
	p1, p2 := newTestCachePage(1), newTestCachePage(2)
	if err := c.Insert(1, p1); err != nil {
		t.Fatalf("insert 1 failed: %v", err)
	}
	if err := c.Insert(2, p2); err != nil {
		t.Fatalf("insert 2 failed: %v", err)
	}

	// Touch page 1 so page 2 becomes the LRU victim.
	if _, ok := c.Get(1); !ok {
		t.Fatal("expected page 1 present")
	}

	p3 := newTestCachePage(3)
	if err := c.Insert(3, p3); err != nil {
		t.Fatalf("insert 3 failed: %v", err)
	}

	if _, ok := c.Get(2); ok {
		t.Error("expected page 2 to have been evicted")
	}
	if _, ok := c.Get(1); !ok {
		t.Error("expected page 1 to remain cached")
	}
	if _, ok := c.Get(3); !ok {
		t.Error("expected page 3 to be cached")
	}
}

func TestPageCache_EvictionSkipsPinnedAndDirty(t *testing.T) {
	c := NewPageCache(2)
	pinned := newTestCachePage(1)
	pinned.Pin()
	dirty := newTestCachePage(2)
	dirty.SetDirty()

	if err := c.Insert(1, pinned); err != nil {
		t.Fatalf("insert pinned failed: %v", err)
	}
	if err := c.Insert(2, dirty); err != nil {
		t.Fatalf("insert dirty failed: %v", err)
	}

	if err := c.Insert(3, newTestCachePage(3)); !errors.Is(err, ErrCacheFull) {
		t.Errorf("expected ErrCacheFull when every entry is pinned or dirty, got %v", err)
	}
}

func TestPageCache_ClearFailsOnPinnedPage(t *testing.T) {
	c := NewPageCache(4)
	pinned := newTestCachePage(1)
	pinned.Pin()
	unpinned := newTestCachePage(2)

	if err := c.Insert(1, pinned); err != nil {
		t.Fatalf("insert pinned failed: %v", err)
	}
	if err := c.Insert(2, unpinned); err != nil {
		t.Fatalf("insert unpinned failed: %v", err)
	}

	if err := c.Clear(); !errors.Is(err, ErrCachePinned) {
		t.Fatalf("expected ErrCachePinned, got %v", err)
	}

	// All-or-nothing: the unpinned entry must still be present too.
	if c.Len() != 2 {
		t.Errorf("expected cache untouched (len 2) after failed clear, got %d", c.Len())
	}
	if _, ok := c.Get(1); !ok {
		t.Error("expected pinned page to remain cached after failed clear")
	}
	if _, ok := c.Get(2); !ok {
		t.Error("expected unpinned page to remain cached after failed clear")
	}
}

func TestPageCache_ClearSucceedsWithNoPins(t *testing.T) {
	c := NewPageCache(4)
	if err := c.Insert(1, newTestCachePage(1)); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := c.Insert(2, newTestCachePage(2)); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	if err := c.Clear(); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("expected empty cache after clear, got len %d", c.Len())
	}
}

func TestPageCache_ClearRunsEvictCallback(t *testing.T) {
	c := NewPageCache(4)
	var evicted []PageCacheKey
	c.SetEvictCallback(func(k PageCacheKey) { evicted = append(evicted, k) })

	if err := c.Insert(1, newTestCachePage(1)); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := c.Clear(); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if len(evicted) != 1 || evicted[0] != 1 {
		t.Errorf("expected evict callback for key 1, got %v", evicted)
	}
}

func TestPageCache_Resize(t *testing.T) {
	c := NewPageCache(4)
	for i := uint32(1); i <= 4; i++ {
		if err := c.Insert(i, newTestCachePage(i)); err != nil {
			t.Fatalf("insert %d failed: %v", i, err)
		}
	}

	remaining := c.Resize(2)
	if remaining != 0 {
		t.Errorf("expected all excess pages evictable, got %d remaining", remaining)
	}
	if c.Len() != 2 {
		t.Errorf("expected len 2 after resize, got %d", c.Len())
	}
}

func TestPageCache_ResizeCannotEvictPinned(t *testing.T) {
	c := NewPageCache(4)
	for i := uint32(1); i <= 4; i++ {
		pg := newTestCachePage(i)
		if i <= 2 {
			pg.Pin()
		}
		if err := c.Insert(i, pg); err != nil {
			t.Fatalf("insert %d failed: %v", i, err)
		}
	}

	remaining := c.Resize(1)
	if remaining != 1 {
		t.Errorf("expected 1 unevictable (pinned) page left over capacity, got %d", remaining)
	}
	if c.Len() != 2 {
		t.Errorf("expected the 2 pinned pages to remain, got len %d", c.Len())
	}
}

func TestPageCache_Remove(t *testing.T) {
	c := NewPageCache(4)
	if err := c.Insert(1, newTestCachePage(1)); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	c.Remove(1)
	if _, ok := c.Get(1); ok {
		t.Error("expected page 1 to be removed")
	}
	if c.Len() != 0 {
		t.Errorf("expected empty cache after remove, got len %d", c.Len())
	}
}

func TestPageCache_UnsetDirtyAllPages(t *testing.T) {
	c := NewPageCache(4)
	p1, p2 := newTestCachePage(1), newTestCachePage(2)
	p1.SetDirty()
	p2.SetDirty()
	if err := c.Insert(1, p1); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := c.Insert(2, p2); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	c.UnsetDirtyAllPages()

	if p1.IsDirty() || p2.IsDirty() {
		t.Error("expected every page to be clean after UnsetDirtyAllPages")
	}
}

func TestPageCache_ForEachDirty(t *testing.T) {
	c := NewPageCache(4)
	clean := newTestCachePage(1)
	dirty := newTestCachePage(2)
	dirty.SetDirty()
	if err := c.Insert(1, clean); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := c.Insert(2, dirty); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	var seen []uint32
	c.ForEachDirty(func(pg *Page) { seen = append(seen, pg.ID()) })

	if len(seen) != 1 || seen[0] != 2 {
		t.Errorf("expected only page 2 reported dirty, got %v", seen)
	}
}
