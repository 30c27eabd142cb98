// pkg/pager/bufferpool.go
package pager

import "sync"

// BufferPool hands out page-sized byte buffers and takes them back, so the
// cache can evict and reload pages without round-tripping through the
// allocator on every miss. Grounded on the Buffer/BufferPool abstraction
// original_source/core/storage/pager.rs builds on top of (referenced there,
// defined in a sibling module not included in the retrieved slice); this is
// an original adaptation rather than a direct translation.
type BufferPool struct {
	pageSize int
	pool     sync.Pool
}

// NewBufferPool creates a pool that hands out buffers of exactly pageSize
// bytes.
func NewBufferPool(pageSize int) *BufferPool {
	bp := &BufferPool{pageSize: pageSize}
	bp.pool.New = func() any {
		return make([]byte, bp.pageSize)
	}
	return bp
}

// Get returns a page-sized buffer, zeroed only if it happens to be fresh;
// callers that require a zeroed buffer must clear it themselves.
func (bp *BufferPool) Get() []byte {
	return bp.pool.Get().([]byte)
}

// Put returns buf to the pool. buf must have been obtained from Get and
// must not be referenced again afterward.
func (bp *BufferPool) Put(buf []byte) {
	if len(buf) != bp.pageSize {
		return
	}
	bp.pool.Put(buf)
}

// PageSize reports the fixed buffer size this pool was created with.
func (bp *BufferPool) PageSize() int {
	return bp.pageSize
}
