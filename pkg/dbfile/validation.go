// pkg/dbfile/validation.go
// File format validation for database opening.
package dbfile

import (
	"errors"
	"os"
)

// Current supported version
const (
	CurrentFormatVersion = 1
	MaxSupportedVersion  = 1
)

// Validation errors.
var (
	ErrInvalidFormatVersion = errors.New("invalid format version")
	ErrUnsupportedVersion   = errors.New("unsupported database format version")
	ErrInvalidPageCount     = errors.New("invalid page count")
)

// ValidatePageSize checks if the page size is valid.
// Valid page sizes are powers of 2 between 512 and 32768 (the largest a
// uint16 holds); SQLite's encoding of 65536 as 1 is not accepted.
func ValidatePageSize(pageSize uint16) error {
	// Must be at least 512
	if pageSize < 512 {
		return ErrInvalidPageSize
	}

	// Must be a power of 2
	if !isPowerOfTwo(pageSize) {
		return ErrInvalidPageSize
	}

	return nil
}

// ValidateHeader validates all header fields.
func ValidateHeader(h *Header) error {
	// Validate page size
	if err := ValidatePageSize(h.PageSize); err != nil {
		return err
	}

	// Validate format versions
	if h.FormatWriteVersion == 0 {
		return ErrInvalidFormatVersion
	}
	if h.FormatReadVersion == 0 {
		return ErrInvalidFormatVersion
	}

	// Check if we can read this version
	if h.FormatReadVersion > MaxSupportedVersion {
		return ErrUnsupportedVersion
	}

	// Validate page count (must be at least 1)
	if h.PageCount == 0 {
		return ErrInvalidPageCount
	}

	return nil
}

// isPowerOfTwo returns true if n is a power of 2.
func isPowerOfTwo(n uint16) bool {
	return n > 0 && (n&(n-1)) == 0
}

// OpenOptions configures Open. A nil *OpenOptions uses the defaults.
type OpenOptions struct{}

// Open reads and validates the header of the database file at path,
// without mapping the rest of the file. It exists so callers (and tests)
// can check a file's format before handing it to the pager.
func Open(path string, opts *OpenOptions) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data := make([]byte, HeaderSize)
	if _, err := f.ReadAt(data, 0); err != nil {
		return nil, err
	}

	h, err := DecodeHeader(data)
	if err != nil {
		return nil, err
	}
	if err := ValidateHeader(h); err != nil {
		return nil, err
	}
	return h, nil
}
