// pkg/pager/fsm_state.go
package pager

import "sync/atomic"

// DbState tracks whether the first page of a freshly opened database file
// has been allocated and initialized yet. Guards against two writers
// racing to initialize page 1 concurrently.
type DbState int32

const (
	DbUninitialized DbState = iota
	DbInitializing
	DbInitialized
)

// AtomicDbState guards first-page allocation within one Pager. Each Pager
// holds its own, so separate Pagers on the same file do not share it.
type AtomicDbState struct {
	v atomic.Int32
}

func (s *AtomicDbState) Load() DbState { return DbState(s.v.Load()) }
func (s *AtomicDbState) Store(d DbState) { s.v.Store(int32(d)) }

// CompareAndSwap atomically transitions the state from old to new,
// reporting whether it did.
func (s *AtomicDbState) CompareAndSwap(old, new DbState) bool {
	return s.v.CompareAndSwap(int32(old), int32(new))
}

// AutoVacuumMode selects how free pages past the end of the used region
// are reclaimed.
type AutoVacuumMode int

const (
	AutoVacuumNone AutoVacuumMode = iota
	AutoVacuumFull
	AutoVacuumIncremental
)

// BtreePageAllocMode constrains which physical page id BtreeCreate may
// return, mirroring pager.rs's allocation-mode parameter to allocate_page.
type BtreePageAllocMode struct {
	// Kind is one of "any", "exact", "le".
	Kind  string
	Page  uint32 // meaningful for Exact and Le
}

func AllocModeAny() BtreePageAllocMode { return BtreePageAllocMode{Kind: "any"} }
func AllocModeExact(page uint32) BtreePageAllocMode {
	return BtreePageAllocMode{Kind: "exact", Page: page}
}
func AllocModeLe(page uint32) BtreePageAllocMode {
	return BtreePageAllocMode{Kind: "le", Page: page}
}

// CommitState names the stages of Pager.CommitDirtyPages. CommitDirtyPages
// runs them in one synchronous call and logs each stage by name; it does
// not store a CommitState value.
type CommitState int

const (
	CommitStart CommitState = iota
	CommitFlushing
	CommitSyncingWal
	CommitMaybeCheckpoint
	CommitDone
)

// CacheFlushState drives Pager.Cacheflush, the per-page-write loop nested
// inside CommitDirtyPages.
type CacheFlushState int

const (
	CacheFlushStart CacheFlushState = iota
	CacheFlushAppendingFrame
	CacheFlushWaitingOnIO
	CacheFlushDone
)

// cacheFlushResumeState carries Pager.cacheflush's position across
// suspension points: which dirty page it is on and the Completion it is
// currently waiting on. A nil *cacheFlushResumeState means no flush is in
// progress.
type cacheFlushResumeState struct {
	pages      []*Page
	idx        int
	completion *Completion
	state      CacheFlushState
}

// CheckpointState names the stages of Pager.Checkpoint. Checkpoint runs
// them in one synchronous call and does not store a CheckpointState value.
type CheckpointState int

const (
	CheckpointStart CheckpointState = iota
	CheckpointReadingWal
	CheckpointWritingDb
	CheckpointSyncingDb
	CheckpointResettingWal
	CheckpointDone
)

// AllocatePage1State drives Pager.MaybeAllocatePage1.
type AllocatePage1State int

const (
	AllocatePage1Start AllocatePage1State = iota
	AllocatePage1Writing
	AllocatePage1Done
)

// FreePageState drives Pager.FreePage's trunk/leaf chain manipulation.
type FreePageState int

const (
	FreePageStart FreePageState = iota
	FreePageLoadingTrunk
	FreePageWritingTrunk
	FreePageDone
)

// IOResult represents the Done/IO duality: either the operation completed
// synchronously with a value, or it needs another RunOnce pump cycle
// before the caller can retry.
type IOResult[T any] struct {
	Value T
	IO    bool
}

// Done wraps a synchronously produced value.
func Done[T any](v T) IOResult[T] {
	return IOResult[T]{Value: v}
}

// NeedsIO signals the caller must pump IO.RunOnce and retry.
func NeedsIO[T any]() IOResult[T] {
	var zero T
	return IOResult[T]{Value: zero, IO: true}
}
