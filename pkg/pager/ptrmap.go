// pkg/pager/ptrmap.go
package pager

import "encoding/binary"

// PtrmapType identifies what kind of page a pointer-map entry describes,
// mirroring the PtrmapType enum in original_source/core/storage/pager.rs.
type PtrmapType byte

const (
	PtrmapTypeRootPage   PtrmapType = 1
	PtrmapTypeFreePage   PtrmapType = 2
	PtrmapTypeOverflow1  PtrmapType = 3
	PtrmapTypeOverflow2  PtrmapType = 4
	PtrmapTypeBtreeNode  PtrmapType = 5
)

// ptrmapEntrySize is the wire size of one entry: 1 type byte + 4-byte
// big-endian parent page number.
const ptrmapEntrySize = 5

// FirstPtrmapPage is the page number of the first pointer-map page. Page 1
// (the header page) is never a ptrmap page.
const FirstPtrmapPage uint32 = 2

// PtrmapEntry is one pointer-map record: the type of page being tracked and
// the page number of its parent (the page that owns the pointer to it).
type PtrmapEntry struct {
	Type   PtrmapType
	Parent uint32
}

// Encode writes e into a 5-byte buffer.
func (e PtrmapEntry) Encode() [ptrmapEntrySize]byte {
	var buf [ptrmapEntrySize]byte
	buf[0] = byte(e.Type)
	binary.BigEndian.PutUint32(buf[1:], e.Parent)
	return buf
}

// DecodePtrmapEntry reads a 5-byte buffer into a PtrmapEntry.
func DecodePtrmapEntry(buf []byte) PtrmapEntry {
	return PtrmapEntry{
		Type:   PtrmapType(buf[0]),
		Parent: binary.BigEndian.Uint32(buf[1:5]),
	}
}

// EntriesPerPtrmapPage returns how many ptrmap entries fit in one page of
// the given size.
func EntriesPerPtrmapPage(pageSize int) int {
	return pageSize / ptrmapEntrySize
}

// PtrmapPageCycleLength returns the number of database pages tracked per
// ptrmap page, including the ptrmap page itself: one ptrmap page followed
// by EntriesPerPtrmapPage(pageSize) data pages.
func PtrmapPageCycleLength(pageSize int) int {
	return EntriesPerPtrmapPage(pageSize) + 1
}

// IsPtrmapPage reports whether page is itself a pointer-map page.
func IsPtrmapPage(page uint32, pageSize int) bool {
	if page < FirstPtrmapPage {
		return false
	}
	cycle := uint32(PtrmapPageCycleLength(pageSize))
	return (page-FirstPtrmapPage)%cycle == 0
}

// GetPtrmapPageNoForDbPage returns the page number of the ptrmap page that
// tracks page. If page is itself a ptrmap page, it tracks itself (so
// iteration code can detect and skip it), matching SQLite's ptrmapPageno.
func GetPtrmapPageNoForDbPage(page uint32, pageSize int) uint32 {
	if page < FirstPtrmapPage {
		return 0
	}
	cycle := uint32(PtrmapPageCycleLength(pageSize))
	group := (page - FirstPtrmapPage) / cycle
	return group*cycle + FirstPtrmapPage
}

// GetPtrmapOffsetInPage returns the byte offset within ptrmapPage's content
// region at which page's entry is stored.
func GetPtrmapOffsetInPage(page, ptrmapPage uint32) int {
	return ptrmapEntrySize * int(page-ptrmapPage-1)
}

// PtrmapGet reads the pointer-map entry for page, reading the owning
// ptrmap page through the pager's normal cache/read path.
func (p *Pager) PtrmapGet(page uint32) (PtrmapEntry, error) {
	if p.autoVacuum == AutoVacuumNone {
		return PtrmapEntry{}, newInternalError("ptrmap_get called with autovacuum disabled")
	}
	ptrmapPage := GetPtrmapPageNoForDbPage(page, p.pageSize)
	if ptrmapPage == 0 {
		return PtrmapEntry{}, ErrInvalidPageNo
	}
	pg, err := p.readPageSync(ptrmapPage)
	if err != nil {
		return PtrmapEntry{}, err
	}
	offset := GetPtrmapOffsetInPage(page, ptrmapPage)
	data := pg.Contents().Data()
	if offset+ptrmapEntrySize > len(data) {
		return PtrmapEntry{}, &CorruptError{PageNo: ptrmapPage, Reason: "ptrmap offset out of bounds"}
	}
	return DecodePtrmapEntry(data[offset : offset+ptrmapEntrySize]), nil
}

// PtrmapPut writes entry for page into its owning ptrmap page, marking
// that page dirty.
func (p *Pager) PtrmapPut(page uint32, entry PtrmapEntry) error {
	if p.autoVacuum == AutoVacuumNone {
		return newInternalError("ptrmap_put called with autovacuum disabled")
	}
	ptrmapPage := GetPtrmapPageNoForDbPage(page, p.pageSize)
	if ptrmapPage == 0 {
		return ErrInvalidPageNo
	}
	pg, err := p.readPageSync(ptrmapPage)
	if err != nil {
		return err
	}
	offset := GetPtrmapOffsetInPage(page, ptrmapPage)
	data := pg.Contents().Data()
	if offset+ptrmapEntrySize > len(data) {
		return &CorruptError{PageNo: ptrmapPage, Reason: "ptrmap offset out of bounds"}
	}
	enc := entry.Encode()
	copy(data[offset:offset+ptrmapEntrySize], enc[:])
	p.markDirty(pg)
	return nil
}
