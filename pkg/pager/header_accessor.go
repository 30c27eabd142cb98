// pkg/pager/header_accessor.go
package pager

import "turpager/pkg/dbfile"

// readHeaderFields decodes the 100-byte database header living in page 1's
// buffer (bytes 0..100, ahead of the TableLeaf content region).
func (p *Pager) readHeaderFields() (*dbfile.Header, error) {
	pg, err := p.readPageSync(1)
	if err != nil {
		return nil, err
	}
	return dbfile.DecodeHeader(pg.Contents().AsSlice()[:dbfile.HeaderSize])
}

// writeHeaderFields re-encodes hdr into page 1's header bytes and marks the
// page dirty.
func (p *Pager) writeHeaderFields(hdr *dbfile.Header) error {
	pg, err := p.readPageSync(1)
	if err != nil {
		return err
	}
	copy(pg.Contents().AsSlice()[:dbfile.HeaderSize], hdr.Encode())
	p.markDirty(pg)
	return nil
}
