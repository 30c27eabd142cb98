// pkg/pager/freelist.go
package pager

import "encoding/binary"

// FreelistTrunkPage represents a trunk page in the freelist.
// The freelist uses a linked list of trunk pages, where each trunk page
// contains pointers to leaf pages (free pages that can be allocated).
//
// Trunk Page Format:
//   Offset 0: 4-byte page number of next trunk (0 if last trunk)
//   Offset 4: 4-byte count of leaf pages in this trunk
//   Offset 8: Array of 4-byte leaf page numbers
//
// This design follows SQLite's freelist structure.
type FreelistTrunkPage struct {
	// NextTrunk is the page number of the next trunk page, or 0 if this is the last
	NextTrunk uint32

	// LeafPages contains the page numbers of free pages
	LeafPages []uint32
}

// MaxLeavesPerTrunk returns the maximum number of leaf pages that fit in a
// trunk page, given the usable space (page size minus reserved bytes) of
// that page. Formula: usable_space/4 - 2, equivalently (usable_space-8)/4,
// where 8 is the trunk header size (next + count). Callers must pass
// usable space, not raw page size, so a nonzero reserved-bytes header
// field is respected.
func MaxLeavesPerTrunk(usableSpace int) int {
	return (usableSpace - 8) / 4
}

// Encode writes the trunk page to the given byte slice in big-endian format.
func (t *FreelistTrunkPage) Encode(data []byte) {
	// Write next trunk pointer at offset 0
	binary.BigEndian.PutUint32(data[0:4], t.NextTrunk)

	// Write leaf count at offset 4
	binary.BigEndian.PutUint32(data[4:8], uint32(len(t.LeafPages)))

	// Write leaf page numbers starting at offset 8
	for i, leaf := range t.LeafPages {
		offset := 8 + i*4
		binary.BigEndian.PutUint32(data[offset:offset+4], leaf)
	}
}

// DecodeFreelistTrunkPage decodes a trunk page from raw bytes.
func DecodeFreelistTrunkPage(data []byte) *FreelistTrunkPage {
	nextTrunk := binary.BigEndian.Uint32(data[0:4])
	leafCount := binary.BigEndian.Uint32(data[4:8])

	leaves := make([]uint32, leafCount)
	for i := uint32(0); i < leafCount; i++ {
		offset := 8 + i*4
		leaves[i] = binary.BigEndian.Uint32(data[offset : offset+4])
	}

	return &FreelistTrunkPage{
		NextTrunk: nextTrunk,
		LeafPages: leaves,
	}
}

// IsFull returns true if this trunk page cannot hold any more leaf pages,
// given the page's usable space (see MaxLeavesPerTrunk).
func (t *FreelistTrunkPage) IsFull(usableSpace int) bool {
	return len(t.LeafPages) >= MaxLeavesPerTrunk(usableSpace)
}

// AddLeaf adds a leaf page to this trunk.
func (t *FreelistTrunkPage) AddLeaf(pageNo uint32) {
	t.LeafPages = append(t.LeafPages, pageNo)
}

// PopLeaf removes and returns the last leaf page from this trunk.
// Returns false if the trunk has no leaves.
func (t *FreelistTrunkPage) PopLeaf() (uint32, bool) {
	if len(t.LeafPages) == 0 {
		return 0, false
	}

	last := t.LeafPages[len(t.LeafPages)-1]
	t.LeafPages = t.LeafPages[:len(t.LeafPages)-1]
	return last, true
}

// IsEmpty returns true if this trunk has no leaf pages.
func (t *FreelistTrunkPage) IsEmpty() bool {
	return len(t.LeafPages) == 0
}

// LeafCount returns the number of leaf pages in this trunk.
func (t *FreelistTrunkPage) LeafCount() int {
	return len(t.LeafPages)
}

// FreePage drives the free-page FSM: load the head trunk (if any), append
// pageNo as a leaf or start a new trunk when the head trunk is full, then
// persist the updated freelist head/count in the header. Page cache access
// is synchronous in this implementation (mmap reads never block), so every
// state below is entered and left within the same call; FreePageState is
// still threaded through and logged so the trunk/leaf control flow pager.rs
// expresses as a suspendable state machine stays visible to a reader, and
// so a future storage backend that does suspend here has the shape ready.
func (p *Pager) FreePage(pageNo uint32) error {
	if pageNo < 2 {
		return ErrInvalidPageNo
	}

	hdr, err := p.readHeaderFields()
	if err != nil {
		return err
	}

	state := FreePageLoadingTrunk
	p.logger.Trace().Uint32("page", pageNo).Str("state", "free_page_loading_trunk").Msg("free_page")
	var trunk *FreelistTrunkPage
	var trunkPage *Page

	if hdr.FreeListHead != 0 {
		trunkPage, err = p.readPageSync(hdr.FreeListHead)
		if err != nil {
			return err
		}
		trunk = DecodeFreelistTrunkPage(trunkPage.Contents().Data())
	}

	state = FreePageWritingTrunk
	p.logger.Trace().Uint32("page", pageNo).Str("state", "free_page_writing_trunk").Msg("free_page")
	if trunk != nil && !trunk.IsFull(p.UsableSpace()) {
		trunk.AddLeaf(pageNo)
		trunk.Encode(trunkPage.Contents().Data())
		p.markDirty(trunkPage)
	} else {
		newTrunkPage, err := p.readPageSync(pageNo)
		if err != nil {
			return err
		}
		newTrunk := &FreelistTrunkPage{NextTrunk: hdr.FreeListHead}
		newTrunk.Encode(newTrunkPage.Contents().Data())
		p.markDirty(newTrunkPage)
		hdr.FreeListHead = pageNo
	}

	hdr.FreeListCount++
	if err := p.writeHeaderFields(hdr); err != nil {
		return err
	}
	state = FreePageDone
	p.logger.Trace().Uint32("page", pageNo).Int("state", int(state)).Msg("free_page: done")
	if p.metrics != nil {
		p.metrics.FreelistDepth.Set(float64(hdr.FreeListCount))
	}
	return nil
}

// allocateFromFreelist pops a page from the freelist's head trunk,
// promoting the next trunk when the head trunk runs dry. Returns 0, false
// if the freelist is empty.
func (p *Pager) allocateFromFreelist() (uint32, bool, error) {
	hdr, err := p.readHeaderFields()
	if err != nil {
		return 0, false, err
	}
	if hdr.FreeListHead == 0 {
		return 0, false, nil
	}

	trunkPage, err := p.readPageSync(hdr.FreeListHead)
	if err != nil {
		return 0, false, err
	}
	trunk := DecodeFreelistTrunkPage(trunkPage.Contents().Data())

	if leaf, ok := trunk.PopLeaf(); ok {
		trunk.Encode(trunkPage.Contents().Data())
		p.markDirty(trunkPage)
		hdr.FreeListCount--
		if err := p.writeHeaderFields(hdr); err != nil {
			return 0, false, err
		}
		if p.metrics != nil {
			p.metrics.FreelistDepth.Set(float64(hdr.FreeListCount))
		}
		return leaf, true, nil
	}

	// Trunk itself is exhausted of leaves; reclaim the trunk page and
	// promote NextTrunk.
	reclaimed := hdr.FreeListHead
	hdr.FreeListHead = trunk.NextTrunk
	hdr.FreeListCount--
	if err := p.writeHeaderFields(hdr); err != nil {
		return 0, false, err
	}
	if p.metrics != nil {
		p.metrics.FreelistDepth.Set(float64(hdr.FreeListCount))
	}
	return reclaimed, true, nil
}
