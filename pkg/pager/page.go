// pkg/pager/page.go
package pager

import "sync/atomic"

// PageType identifies the type of data stored in a page's content body.
// The pager itself only ever writes TableLeaf (for the page-1 schema root);
// every other value is interpreted by the (out-of-scope) btree layer.
type PageType byte

const (
	PageTypeUnknown       PageType = 0x00
	PageTypeIndexInterior PageType = 0x02
	PageTypeTableInterior PageType = 0x05
	PageTypeIndexLeaf     PageType = 0x0a
	PageTypeTableLeaf     PageType = 0x0d
	PageTypeOverflow      PageType = 0x20
	PageTypeFreeList      PageType = 0x30
)

// Page flag bits, matching original_source/core/storage/pager.rs.
const (
	flagUptodate uint32 = 1 << iota
	flagLocked
	flagError
	flagDirty
	flagLoaded
)

// PageContent wraps a page-sized byte buffer together with the byte offset
// at which the btree content body begins: 100 for page 1 (past the
// database header), 0 for every other page.
type PageContent struct {
	Offset int
	buf    []byte
	pool   *BufferPool
}

// AsSlice returns the full underlying buffer, header bytes included.
func (c *PageContent) AsSlice() []byte {
	return c.buf
}

// Data returns the content region, i.e. the buffer past Offset.
func (c *PageContent) Data() []byte {
	return c.buf[c.Offset:]
}

// PageType reads the single-byte btree page type at the start of the
// content region.
func (c *PageContent) PageType() PageType {
	if len(c.buf) <= c.Offset {
		return PageTypeUnknown
	}
	return PageType(c.buf[c.Offset])
}

// ReadU32 reads a big-endian uint32 at offset within the content region.
func (c *PageContent) ReadU32(offset int) uint32 {
	d := c.Data()
	return uint32(d[offset])<<24 | uint32(d[offset+1])<<16 | uint32(d[offset+2])<<8 | uint32(d[offset+3])
}

// WriteU32 writes a big-endian uint32 at offset within the content region.
func (c *PageContent) WriteU32(offset int, v uint32) {
	d := c.Data()
	d[offset] = byte(v >> 24)
	d[offset+1] = byte(v >> 16)
	d[offset+2] = byte(v >> 8)
	d[offset+3] = byte(v)
}

// release returns the underlying buffer to its pool. Safe to call once.
func (c *PageContent) release() {
	if c.pool != nil && c.buf != nil {
		c.pool.Put(c.buf)
		c.buf = nil
	}
}

// Page is an in-memory cache slot for one database page, 1-indexed.
//
// Concurrency: the page cache is the single owner of mutation rights for a
// page's contents; the LOCKED flag marks a page whose I/O is still in
// flight, and the single-writer transaction discipline otherwise prevents
// concurrent mutation. There is deliberately no per-page mutex.
type Page struct {
	id       uint32
	flags    atomic.Uint32
	pinCount atomic.Int32
	contents *PageContent
}

// NewPage creates an unloaded page for the given 1-indexed page id.
func NewPage(id uint32) *Page {
	return &Page{id: id}
}

func (p *Page) ID() uint32 { return p.id }

func (p *Page) Contents() *PageContent { return p.contents }

func (p *Page) SetContents(c *PageContent) { p.contents = c }

func (p *Page) IsUptodate() bool { return p.flags.Load()&flagUptodate != 0 }
func (p *Page) SetUptodate()     { p.flags.Or(flagUptodate) }
func (p *Page) ClearUptodate()   { p.flags.And(^flagUptodate) }

func (p *Page) IsLocked() bool { return p.flags.Load()&flagLocked != 0 }
func (p *Page) SetLocked()     { p.flags.Or(flagLocked) }
func (p *Page) ClearLocked()   { p.flags.And(^flagLocked) }

func (p *Page) IsError() bool { return p.flags.Load()&flagError != 0 }
func (p *Page) SetError()     { p.flags.Or(flagError) }
func (p *Page) ClearError()   { p.flags.And(^flagError) }

func (p *Page) IsDirty() bool { return p.flags.Load()&flagDirty != 0 }
func (p *Page) SetDirty()     { p.flags.Or(flagDirty) }
func (p *Page) ClearDirty()   { p.flags.And(^flagDirty) }

func (p *Page) IsLoaded() bool { return p.flags.Load()&flagLoaded != 0 }
func (p *Page) SetLoaded()     { p.flags.Or(flagLoaded) }
func (p *Page) ClearLoaded() {
	p.flags.And(^flagLoaded)
	if p.contents != nil {
		p.contents.release()
		p.contents = nil
	}
}

// Pin increments the reference count, preventing eviction.
func (p *Page) Pin() { p.pinCount.Add(1) }

// Unpin decrements the reference count. Panics on double-unpin: a
// double-unpin means a caller dropped a reference it never held, which is
// a bug in the caller, not a recoverable runtime condition.
func (p *Page) Unpin() {
	if !p.TryUnpin() {
		panic("pager: attempted to unpin a page that was not pinned")
	}
}

// TryUnpin decrements the pin count if positive and reports whether it did.
// Saturates at zero.
func (p *Page) TryUnpin() bool {
	for {
		cur := p.pinCount.Load()
		if cur <= 0 {
			return false
		}
		if p.pinCount.CompareAndSwap(cur, cur-1) {
			return true
		}
	}
}

func (p *Page) IsPinned() bool { return p.pinCount.Load() > 0 }

// newAllocatedContent creates a zeroed, owned PageContent for a freshly
// allocated page, drawing its buffer from pool.
func newAllocatedContent(pool *BufferPool, offset int) *PageContent {
	buf := pool.Get()
	clear(buf)
	return &PageContent{Offset: offset, buf: buf, pool: pool}
}
