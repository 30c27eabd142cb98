// Package wal implements the write-ahead log that backs the pager's commit
// and checkpoint state machines.
//
// # WAL FILE FORMAT
//
// A WAL file consists of a header followed by zero or more "frames".
// Each frame records the revised content of a single page from the
// database file. All changes to the database are recorded by writing
// frames into the WAL. Transactions commit when a frame is written that
// contains a commit marker (a non-zero db-size field).
//
// The WAL header is 32 bytes in size and consists of the following
// little-endian values:
//
//	0-3:   Magic number (0x377f0682)
//	4-7:   File format version (3007000)
//	8-11:  Database page size
//	12-15: Checkpoint sequence number
//	16-19: Salt-1 (random, incremented with each checkpoint)
//	20-23: Salt-2 (random, changed with each checkpoint)
//	24-27: Checksum-1 (first part of header checksum)
//	28-31: Checksum-2 (second part of header checksum)
//
// Each frame consists of a 24-byte frame-header followed by page-size bytes
// of page data:
//
//	0-3:   Page number
//	4-7:   For commit records, the size of the database in pages after commit.
//	       For all other records, zero.
//	8-11:  Salt-1 (copied from header)
//	12-15: Salt-2 (copied from header)
//	16-19: Checksum-1
//	20-23: Checksum-2
package wal

import (
	"encoding/binary"
	"errors"
	"math/rand"
	"os"
	"sync"
)

const (
	HeaderSize      = 32
	FrameHeaderSize = 24
	MagicNumber     = 0x377f0682
	Version         = 3007000
)

var (
	ErrInvalidMagic   = errors.New("wal: invalid magic number")
	ErrInvalidVersion = errors.New("wal: invalid version")
	ErrChecksumFailed = errors.New("wal: checksum verification failed")
	ErrFrameNotFound  = errors.New("wal: frame not found")
	ErrPageNotFound   = errors.New("wal: page not found in wal")
	ErrNoWriter       = errors.New("wal: append_frame called outside a write transaction")
	ErrWriterActive   = errors.New("wal: a write transaction is already in progress")
)

// Frame is one decoded WAL record.
type Frame struct {
	Index    uint64 // 1-based frame index
	PageNo   uint32
	DbSize   uint32 // non-zero only on the commit frame of a transaction
	Data     []byte
	IsCommit bool
}

// CheckpointMode selects how aggressively a checkpoint reclaims WAL space.
// Only Passive is implemented: it copies every frame it can without
// blocking on readers that might still need older frames, matching
// spec.md's scope (Restart/Truncate modes are Non-goals).
type CheckpointMode int

const (
	CheckpointPassive CheckpointMode = iota
)

// CheckpointResult reports how much of the WAL a checkpoint moved.
type CheckpointResult struct {
	FramesCheckpointed int
	MaxFrame           uint64
	// Backfilled is how many distinct pages were written to the database
	// file: one per page, from that page's latest frame, so it is smaller
	// than FramesCheckpointed whenever a page has more than one frame.
	Backfilled int
}

// Options configures a WAL instance.
type Options struct {
	PageSize int
}

// WAL is a write-ahead log file plus its in-memory append/checkpoint state.
//
// Concurrency model: a single in-flight writer at a time (the writerActive
// flag, under mu), tracked via an explicit counter so append_frame can be
// called incrementally across many pages before finish_append_frames_commit
// performs the one fsync the whole batch needs. Readers hold mu only for
// the duration of one lookup; find_frame only ever sees frames that were
// committed (counted in frameCount) at or below the reader's snapshot.
type WAL struct {
	mu       sync.RWMutex
	file     *os.File
	pageSize int
	salt1    uint32
	salt2    uint32
	ckptSeq  uint32

	checksum1 uint32
	checksum2 uint32

	frameCount uint64 // number of valid, durable frames

	writerActive   bool
	inFlightFrames int // frames appended since the writer began, not yet fsynced
}

// Open opens an existing WAL file at path, or creates one if it does not
// exist.
func Open(path string, opts Options) (*WAL, error) {
	pageSize := opts.PageSize
	if pageSize == 0 {
		pageSize = 4096
	}

	file, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		if os.IsNotExist(err) {
			return createWAL(path, pageSize)
		}
		return nil, err
	}

	w := &WAL{file: file, pageSize: pageSize}
	if err := w.readHeader(); err != nil {
		file.Close()
		return createWAL(path, pageSize)
	}
	return w, nil
}

func createWAL(path string, pageSize int) (*WAL, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}

	w := &WAL{
		file:     file,
		pageSize: pageSize,
		salt1:    rand.Uint32(),
		salt2:    rand.Uint32(),
		ckptSeq:  1,
	}
	if err := w.writeHeaderLocked(); err != nil {
		file.Close()
		return nil, err
	}
	if err := w.file.Sync(); err != nil {
		file.Close()
		return nil, err
	}
	return w, nil
}

func (w *WAL) writeHeaderLocked() error {
	header := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], MagicNumber)
	binary.LittleEndian.PutUint32(header[4:8], Version)
	binary.LittleEndian.PutUint32(header[8:12], uint32(w.pageSize))
	binary.LittleEndian.PutUint32(header[12:16], w.ckptSeq)
	binary.LittleEndian.PutUint32(header[16:20], w.salt1)
	binary.LittleEndian.PutUint32(header[20:24], w.salt2)

	w.checksum1, w.checksum2 = walChecksum(header[0:24], 0, 0)
	binary.LittleEndian.PutUint32(header[24:28], w.checksum1)
	binary.LittleEndian.PutUint32(header[28:32], w.checksum2)

	_, err := w.file.WriteAt(header, 0)
	return err
}

func (w *WAL) readHeader() error {
	header := make([]byte, HeaderSize)
	n, err := w.file.ReadAt(header, 0)
	if err != nil || n < HeaderSize {
		if err == nil {
			err = ErrInvalidMagic
		}
		return err
	}

	if binary.LittleEndian.Uint32(header[0:4]) != MagicNumber {
		return ErrInvalidMagic
	}
	if binary.LittleEndian.Uint32(header[4:8]) != Version {
		return ErrInvalidVersion
	}

	w.pageSize = int(binary.LittleEndian.Uint32(header[8:12]))
	w.ckptSeq = binary.LittleEndian.Uint32(header[12:16])
	w.salt1 = binary.LittleEndian.Uint32(header[16:20])
	w.salt2 = binary.LittleEndian.Uint32(header[20:24])

	storedCksum1 := binary.LittleEndian.Uint32(header[24:28])
	storedCksum2 := binary.LittleEndian.Uint32(header[28:32])
	computedCksum1, computedCksum2 := walChecksum(header[0:24], 0, 0)
	if storedCksum1 != computedCksum1 || storedCksum2 != computedCksum2 {
		return ErrChecksumFailed
	}
	w.checksum1, w.checksum2 = storedCksum1, storedCksum2
	w.frameCount = uint64(w.countValidFrames())
	return nil
}

func (w *WAL) countValidFrames() uint32 {
	info, err := w.file.Stat()
	if err != nil {
		return 0
	}
	frameSize := int64(FrameHeaderSize) + int64(w.pageSize)
	contentSize := info.Size() - int64(HeaderSize)
	if contentSize <= 0 {
		return 0
	}
	maxFrames := uint32(contentSize / frameSize)

	validFrames := uint32(0)
	cksum1, cksum2 := w.checksum1, w.checksum2

	for i := uint32(0); i < maxFrames; i++ {
		frameOffset := int64(HeaderSize) + int64(i)*frameSize

		frameHeader := make([]byte, FrameHeaderSize)
		if _, err := w.file.ReadAt(frameHeader, frameOffset); err != nil {
			break
		}
		if binary.LittleEndian.Uint32(frameHeader[8:12]) != w.salt1 ||
			binary.LittleEndian.Uint32(frameHeader[12:16]) != w.salt2 {
			break
		}

		pageData := make([]byte, w.pageSize)
		if _, err := w.file.ReadAt(pageData, frameOffset+FrameHeaderSize); err != nil {
			break
		}

		checksumData := make([]byte, 8+w.pageSize)
		copy(checksumData[0:8], frameHeader[0:8])
		copy(checksumData[8:], pageData)
		cksum1, cksum2 = walChecksum(checksumData, cksum1, cksum2)

		if cksum1 != binary.LittleEndian.Uint32(frameHeader[16:20]) ||
			cksum2 != binary.LittleEndian.Uint32(frameHeader[20:24]) {
			break
		}
		validFrames++
	}

	w.checksum1, w.checksum2 = cksum1, cksum2
	return validFrames
}

// walChecksum computes the fibonacci-weighted checksum SQLite's WAL format
// uses, continuing from running state (s0, s1).
func walChecksum(data []byte, s0, s1 uint32) (uint32, uint32) {
	for len(data)%4 != 0 {
		data = append(data, 0)
	}
	for i := 0; i < len(data); i += 8 {
		var x0, x1 uint32
		x0 = binary.LittleEndian.Uint32(data[i : i+4])
		if i+4 < len(data) {
			x1 = binary.LittleEndian.Uint32(data[i+4 : i+8])
		}
		s0 += x0 + s1
		s1 += x1 + s0
	}
	return s0, s1
}

func (w *WAL) PageSize() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.pageSize
}

// FrameCount returns the number of durable (fsynced) frames.
func (w *WAL) FrameCount() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.frameCount
}

// GetMaxFrameInWal returns the highest frame index visible to new readers,
// i.e. the durable frame count.
func (w *WAL) GetMaxFrameInWal() uint64 {
	return w.FrameCount()
}

// BeginReadTx takes a read-transaction snapshot: the current max frame
// index. Reads performed under this transaction must never see frames
// appended after this point.
func (w *WAL) BeginReadTx() uint64 {
	return w.GetMaxFrameInWal()
}

// EndReadTx is a no-op placeholder for symmetry with BeginReadTx; kept so
// callers have a single matched begin/end pair to reason about even though
// this WAL's single-writer model needs no per-reader bookkeeping.
func (w *WAL) EndReadTx(uint64) {}

// BeginWriteTx marks the start of a write transaction's frame-append
// sequence. Returns ErrWriterActive if one is already open.
func (w *WAL) BeginWriteTx() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.writerActive {
		return ErrWriterActive
	}
	w.writerActive = true
	w.inFlightFrames = 0
	return nil
}

// FindFrame returns the highest frame index at or below maxFrame that
// holds pageNo's content, for snapshot-consistent reads. ok is false if no
// such frame exists (the page must then come from the database file).
func (w *WAL) FindFrame(pageNo uint32, maxFrame uint64) (index uint64, ok bool, err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	limit := w.frameCount
	if maxFrame < limit {
		limit = maxFrame
	}
	frameSize := int64(FrameHeaderSize) + int64(w.pageSize)
	for i := limit; i >= 1; i-- {
		frameOffset := int64(HeaderSize) + int64(i-1)*frameSize
		buf := make([]byte, 4)
		if _, rerr := w.file.ReadAt(buf, frameOffset); rerr != nil {
			return 0, false, rerr
		}
		if binary.LittleEndian.Uint32(buf) == pageNo {
			return i, true, nil
		}
	}
	return 0, false, nil
}

// ReadFrameRaw reads frame index's page payload into buf (which must be
// exactly PageSize() bytes).
func (w *WAL) ReadFrameRaw(index uint64, buf []byte) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if index < 1 || index > w.frameCount {
		return ErrFrameNotFound
	}
	frameSize := int64(FrameHeaderSize) + int64(w.pageSize)
	frameOffset := int64(HeaderSize) + int64(index-1)*frameSize
	_, err := w.file.ReadAt(buf, frameOffset+FrameHeaderSize)
	return err
}

// AppendFrame writes one frame for pageNo with the given content, marking
// it as a commit frame (dbSizeAfterCommit > 0) when this is the last frame
// of a transaction. It does not fsync: call FinishAppendFramesCommit once
// per transaction to make the whole batch durable. Must be called between
// BeginWriteTx and FinishAppendFramesCommit.
func (w *WAL) AppendFrame(pageNo uint32, data []byte, dbSizeAfterCommit uint32) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.writerActive {
		return 0, ErrNoWriter
	}
	if len(data) != w.pageSize {
		return 0, errors.New("wal: page data size mismatch")
	}

	index := w.frameCount + uint64(w.inFlightFrames) + 1
	frameSize := int64(FrameHeaderSize) + int64(w.pageSize)
	frameOffset := int64(HeaderSize) + int64(index-1)*frameSize

	frameHeader := make([]byte, FrameHeaderSize)
	binary.LittleEndian.PutUint32(frameHeader[0:4], pageNo)
	binary.LittleEndian.PutUint32(frameHeader[4:8], dbSizeAfterCommit)
	binary.LittleEndian.PutUint32(frameHeader[8:12], w.salt1)
	binary.LittleEndian.PutUint32(frameHeader[12:16], w.salt2)

	checksumData := make([]byte, 8+len(data))
	copy(checksumData[0:8], frameHeader[0:8])
	copy(checksumData[8:], data)
	w.checksum1, w.checksum2 = walChecksum(checksumData, w.checksum1, w.checksum2)
	binary.LittleEndian.PutUint32(frameHeader[16:20], w.checksum1)
	binary.LittleEndian.PutUint32(frameHeader[20:24], w.checksum2)

	if _, err := w.file.WriteAt(frameHeader, frameOffset); err != nil {
		return 0, err
	}
	if _, err := w.file.WriteAt(data, frameOffset+FrameHeaderSize); err != nil {
		return 0, err
	}

	w.inFlightFrames++
	return index, nil
}

// WriteFrameRaw writes pageNo's data into the WAL at the explicit frame
// index, bypassing the transactional append counter in AppendFrame. It is
// used by the frame ingress protocol (replica / logical apply), where
// frame numbers are dictated by the incoming stream rather than assigned
// locally. It does not fsync: the caller of the ingress protocol owns the
// commit-time sync. If index advances the durable frame count, frameCount
// is updated so FindFrame/ReadFrameRaw see the new frame immediately.
func (w *WAL) WriteFrameRaw(index uint64, pageNo uint32, data []byte, dbSizeIfCommit uint32) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(data) != w.pageSize {
		return errors.New("wal: page data size mismatch")
	}

	frameSize := int64(FrameHeaderSize) + int64(w.pageSize)
	frameOffset := int64(HeaderSize) + int64(index-1)*frameSize

	frameHeader := make([]byte, FrameHeaderSize)
	binary.LittleEndian.PutUint32(frameHeader[0:4], pageNo)
	binary.LittleEndian.PutUint32(frameHeader[4:8], dbSizeIfCommit)
	binary.LittleEndian.PutUint32(frameHeader[8:12], w.salt1)
	binary.LittleEndian.PutUint32(frameHeader[12:16], w.salt2)

	checksumData := make([]byte, 8+len(data))
	copy(checksumData[0:8], frameHeader[0:8])
	copy(checksumData[8:], data)
	w.checksum1, w.checksum2 = walChecksum(checksumData, w.checksum1, w.checksum2)
	binary.LittleEndian.PutUint32(frameHeader[16:20], w.checksum1)
	binary.LittleEndian.PutUint32(frameHeader[20:24], w.checksum2)

	if _, err := w.file.WriteAt(frameHeader, frameOffset); err != nil {
		return err
	}
	if _, err := w.file.WriteAt(data, frameOffset+FrameHeaderSize); err != nil {
		return err
	}

	if index > w.frameCount {
		w.frameCount = index
	}
	return nil
}

// FinishAppendFramesCommit fsyncs the WAL file, making every frame
// appended since BeginWriteTx durable, then closes out the write
// transaction. The commit must not be considered visible to new readers
// until this returns successfully — this is the strict "WAL fsync before
// commit is signaled" ordering requirement.
func (w *WAL) FinishAppendFramesCommit() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.writerActive {
		return ErrNoWriter
	}
	if err := w.file.Sync(); err != nil {
		return err
	}
	w.frameCount += uint64(w.inFlightFrames)
	w.inFlightFrames = 0
	w.writerActive = false
	return nil
}

// RollbackWriteTx discards any frames appended since BeginWriteTx without
// making them visible: it simply drops the in-flight counter, since
// AppendFrame never advances frameCount until FinishAppendFramesCommit.
func (w *WAL) RollbackWriteTx() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.inFlightFrames = 0
	w.writerActive = false
}

// ShouldCheckpoint reports whether the WAL holds at least thresholdFrames
// durable frames, the simple frame-count-based trigger the commit path
// polls after every transaction.
func (w *WAL) ShouldCheckpoint(thresholdFrames int) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return int(w.frameCount) >= thresholdFrames
}

// checkpointStorage is the minimal surface Checkpoint needs from the
// database file; satisfied by pager.DatabaseStorage without importing it
// (avoiding an import cycle between pkg/wal and pkg/pager).
type checkpointStorage interface {
	WriteAt(p []byte, offset int64) (int, error)
	Sync() error
}

// Checkpoint copies every distinct page's latest WAL frame into storage,
// fsyncs storage strictly after the copy (never before), then resets the
// WAL. Only CheckpointPassive is implemented.
func (w *WAL) Checkpoint(storage checkpointStorage, mode CheckpointMode) (CheckpointResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.frameCount == 0 {
		return CheckpointResult{}, nil
	}

	frameSize := int64(FrameHeaderSize) + int64(w.pageSize)
	latestFrameForPage := make(map[uint32]uint64)
	for i := uint64(1); i <= w.frameCount; i++ {
		frameOffset := int64(HeaderSize) + int64(i-1)*frameSize
		buf := make([]byte, 4)
		if _, err := w.file.ReadAt(buf, frameOffset); err != nil {
			return CheckpointResult{}, err
		}
		latestFrameForPage[binary.LittleEndian.Uint32(buf)] = i
	}

	for pageNo, idx := range latestFrameForPage {
		frameOffset := int64(HeaderSize) + int64(idx-1)*frameSize
		pageData := make([]byte, w.pageSize)
		if _, err := w.file.ReadAt(pageData, frameOffset+FrameHeaderSize); err != nil {
			return CheckpointResult{}, err
		}
		dbOffset := int64(pageNo-1) * int64(w.pageSize)
		if _, err := storage.WriteAt(pageData, dbOffset); err != nil {
			return CheckpointResult{}, err
		}
	}

	if err := storage.Sync(); err != nil {
		return CheckpointResult{}, err
	}

	result := CheckpointResult{
		FramesCheckpointed: int(w.frameCount),
		MaxFrame:           w.frameCount,
		Backfilled:         len(latestFrameForPage),
	}

	if err := w.resetLocked(); err != nil {
		return result, err
	}
	return result, nil
}

func (w *WAL) resetLocked() error {
	w.ckptSeq++
	w.salt1++
	w.salt2 = rand.Uint32()
	w.frameCount = 0

	if err := w.writeHeaderLocked(); err != nil {
		return err
	}
	if err := w.file.Truncate(HeaderSize); err != nil {
		return err
	}
	return w.file.Sync()
}

// Close closes the WAL file, syncing first.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}
