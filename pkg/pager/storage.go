// pkg/pager/storage.go
package pager

import (
	"errors"
	"io"
)

// ErrOutOfRange is returned by ReadAt/WriteAt when the requested range
// falls outside the storage's current extent.
var ErrOutOfRange = errors.New("pager: storage access out of range")

// DatabaseStorage defines the interface for page-level storage backends.
// This abstraction allows the pager to work with different storage
// implementations (file-based via mmap, in-memory, etc.), and is the
// target of the cooperative IO queue in io_backend.go.
type DatabaseStorage interface {
	// Size returns the current size of the storage in bytes.
	Size() int64

	// ReadAt copies len(p) bytes starting at offset into p.
	ReadAt(p []byte, offset int64) (int, error)

	// WriteAt writes p starting at offset.
	WriteAt(p []byte, offset int64) (int, error)

	// Sync flushes any pending writes to the underlying storage.
	// For in-memory storage, this is a no-op.
	Sync() error

	// Grow extends the storage to the specified size.
	// If newSize is less than or equal to current size, this is a no-op.
	Grow(newSize int64) error

	// Close releases any resources associated with the storage.
	Close() error
}

// MemoryStorage implements DatabaseStorage using an in-memory byte slice.
// This is used for the :memory: database mode where no disk I/O is
// performed, and for tests.
type MemoryStorage struct {
	data []byte
	size int64
}

// NewMemoryStorage creates a new in-memory storage with the specified
// initial size.
func NewMemoryStorage(initialSize int64) (*MemoryStorage, error) {
	if initialSize <= 0 {
		initialSize = 4096 // Default to one page
	}

	return &MemoryStorage{
		data: make([]byte, initialSize),
		size: initialSize,
	}, nil
}

// Size returns the current size of the storage in bytes.
func (m *MemoryStorage) Size() int64 {
	return m.size
}

// ReadAt copies len(p) bytes starting at offset into p.
func (m *MemoryStorage) ReadAt(p []byte, offset int64) (int, error) {
	if offset < 0 || offset+int64(len(p)) > int64(len(m.data)) {
		return 0, ErrOutOfRange
	}
	n := copy(p, m.data[offset:offset+int64(len(p))])
	return n, nil
}

// WriteAt writes p starting at offset, growing the backing slice only if
// Grow was called first; out-of-range writes fail rather than silently
// extending storage.
func (m *MemoryStorage) WriteAt(p []byte, offset int64) (int, error) {
	if offset < 0 || offset+int64(len(p)) > int64(len(m.data)) {
		return 0, ErrOutOfRange
	}
	n := copy(m.data[offset:offset+int64(len(p))], p)
	return n, nil
}

// Sync is a no-op for in-memory storage since there's no disk to flush to.
func (m *MemoryStorage) Sync() error {
	return nil
}

// Grow extends the storage to the specified size.
// If newSize is less than or equal to current size, this is a no-op.
// Existing data is preserved.
func (m *MemoryStorage) Grow(newSize int64) error {
	if newSize <= m.size {
		return nil
	}

	// Allocate new buffer and copy existing data
	newData := make([]byte, newSize)
	copy(newData, m.data)

	m.data = newData
	m.size = newSize
	return nil
}

// Close releases the memory storage.
// After Close, the storage should not be used.
func (m *MemoryStorage) Close() error {
	m.data = nil
	m.size = 0
	return nil
}

// MmapStorage adapts the platform MmapFile (mmap.go/mmap_unix.go/
// mmap_windows.go, from the teacher, unmodified) to the DatabaseStorage
// contract expected by the FSMs in pager.go.
type MmapStorage struct {
	f *MmapFile
}

// OpenMmapStorage opens or creates path as a memory-mapped database file.
func OpenMmapStorage(path string, initialSize int64) (*MmapStorage, error) {
	f, err := OpenMmapFile(path, initialSize)
	if err != nil {
		return nil, err
	}
	return &MmapStorage{f: f}, nil
}

func (m *MmapStorage) Size() int64 { return m.f.Size() }

func (m *MmapStorage) ReadAt(p []byte, offset int64) (int, error) {
	s := m.f.Slice(int(offset), len(p))
	if s == nil {
		return 0, ErrOutOfRange
	}
	return copy(p, s), nil
}

func (m *MmapStorage) WriteAt(p []byte, offset int64) (int, error) {
	s := m.f.Slice(int(offset), len(p))
	if s == nil {
		return 0, ErrOutOfRange
	}
	return copy(s, p), nil
}

func (m *MmapStorage) Sync() error            { return m.f.Sync() }
func (m *MmapStorage) Grow(newSize int64) error { return m.f.Grow(newSize) }
func (m *MmapStorage) Close() error            { return m.f.Close() }

var _ DatabaseStorage = (*MemoryStorage)(nil)
var _ DatabaseStorage = (*MmapStorage)(nil)
var _ io.Closer = (*MmapStorage)(nil)
