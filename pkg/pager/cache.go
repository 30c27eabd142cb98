// pkg/pager/cache.go
package pager

import (
	"container/list"
	"errors"
	"sync"
)

// PageCacheKey identifies a cached page. It is the 1-indexed page id.
type PageCacheKey = uint32

var (
	// ErrCacheFull is returned by Insert when the cache is at capacity and
	// no unpinned, clean page is available to evict.
	ErrCacheFull = errors.New("pager: page cache full")
	// ErrCacheKeyExists is returned by Insert when the key is already present.
	ErrCacheKeyExists = errors.New("pager: page cache key already present")
	// ErrCachePinned is returned by Clear when at least one cached page is
	// pinned. Clear is all-or-nothing: it never evicts some pages and
	// leaves the pinned ones behind, since a partial clear would still
	// desynchronize whatever coarse invalidation the caller was relying on.
	ErrCachePinned = errors.New("pager: page cache clear: pinned page present")
)

type cacheEntry struct {
	page    *Page
	element *list.Element
}

// PageCache is a bounded, pinnable LRU cache of *Page keyed by page id.
// Eviction always skips pinned or dirty pages; grounded on the teacher's
// container/list-based LRU in pkg/pager/pager.go.
type PageCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[PageCacheKey]*cacheEntry
	lru      *list.List // front = most recently used
	onEvict  func(PageCacheKey)
}

// NewPageCache creates a cache bounded to capacity pages.
func NewPageCache(capacity int) *PageCache {
	return &PageCache{
		capacity: capacity,
		entries:  make(map[PageCacheKey]*cacheEntry),
		lru:      list.New(),
	}
}

// SetEvictCallback registers fn to be called with the key of every page
// removed from the cache, whether by LRU eviction, Remove, or Clear. Used
// by a Pager with a memory budget to release tracked bytes.
func (c *PageCache) SetEvictCallback(fn func(PageCacheKey)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvict = fn
}

// Get returns the cached page for key, promoting it to most-recently-used.
func (c *PageCache) Get(key PageCacheKey) (*Page, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.lru.MoveToFront(e.element)
	return e.page, true
}

// Insert adds page under key. Returns ErrCacheKeyExists if the key is
// already present, or ErrCacheFull if the cache is at capacity and no
// evictable (unpinned, clean) victim exists.
func (c *PageCache) Insert(key PageCacheKey, page *Page) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; exists {
		return ErrCacheKeyExists
	}
	return c.insertLocked(key, page)
}

// InsertIgnoreExisting adds page under key, silently replacing any existing
// entry for that key instead of erroring.
func (c *PageCache) InsertIgnoreExisting(key PageCacheKey, page *Page) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, exists := c.entries[key]; exists {
		c.lru.Remove(e.element)
		delete(c.entries, key)
	}
	return c.insertLocked(key, page)
}

func (c *PageCache) insertLocked(key PageCacheKey, page *Page) error {
	for len(c.entries) >= c.capacity && c.capacity > 0 {
		if !c.evictOneLocked() {
			return ErrCacheFull
		}
	}
	elem := c.lru.PushFront(key)
	c.entries[key] = &cacheEntry{page: page, element: elem}
	return nil
}

// evictOneLocked removes the least-recently-used unpinned, clean page.
// Reports whether it evicted anything.
func (c *PageCache) evictOneLocked() bool {
	for elem := c.lru.Back(); elem != nil; elem = elem.Prev() {
		key := elem.Value.(PageCacheKey)
		entry := c.entries[key]
		if entry.page.IsPinned() || entry.page.IsDirty() {
			continue
		}
		c.lru.Remove(elem)
		delete(c.entries, key)
		entry.page.ClearLoaded()
		if c.onEvict != nil {
			c.onEvict(key)
		}
		return true
	}
	return false
}

// Remove drops key from the cache unconditionally and fires the eviction
// callback; unlike eviction and Clear, it leaves the page's buffer loaded.
func (c *PageCache) Remove(key PageCacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return
	}
	c.lru.Remove(e.element)
	delete(c.entries, key)
	if c.onEvict != nil {
		c.onEvict(key)
	}
}

// Resize changes the cache's capacity, evicting down to fit if shrinking.
// Returns the number of pages it could not evict (still pinned or dirty).
func (c *PageCache) Resize(capacity int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capacity = capacity
	remaining := 0
	for len(c.entries) > c.capacity {
		if !c.evictOneLocked() {
			remaining = len(c.entries) - c.capacity
			break
		}
	}
	return remaining
}

// Clear drops every entry, releasing buffers, but refuses if any page is
// still pinned: no pinned page may be evicted, so a pin anywhere makes the
// whole clear fail without touching any entry (used by the coarse
// cache-invalidation path on begin_read_tx / commit).
func (c *PageCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if e.page.IsPinned() {
			return ErrCachePinned
		}
	}
	for key, e := range c.entries {
		e.page.ClearLoaded()
		if c.onEvict != nil {
			c.onEvict(key)
		}
	}
	c.entries = make(map[PageCacheKey]*cacheEntry)
	c.lru = list.New()
	return nil
}

// UnsetDirtyAllPages clears the DIRTY flag on every cached page, without
// evicting or clearing their contents. Used after a successful flush.
func (c *PageCache) UnsetDirtyAllPages() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		e.page.ClearDirty()
	}
}

// Len reports the number of cached pages.
func (c *PageCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// ForEachDirty invokes fn for every currently dirty cached page, in no
// particular order. fn must not mutate the cache.
func (c *PageCache) ForEachDirty(fn func(*Page)) {
	c.mu.Lock()
	entries := make([]*Page, 0, len(c.entries))
	for _, e := range c.entries {
		if e.page.IsDirty() {
			entries = append(entries, e.page)
		}
	}
	c.mu.Unlock()
	for _, p := range entries {
		fn(p)
	}
}
