// pkg/pager/io_backend.go
package pager

import "sync"

// CompletionState tracks the lifecycle of one queued I/O operation.
type CompletionState int

const (
	CompletionPending CompletionState = iota
	CompletionDone
	CompletionFailed
)

// Completion is a handle to a queued I/O operation. The FSMs in pager.go
// hold onto a Completion across a Done/IO suspension point and poll it via
// RunOnce instead of blocking.
type Completion struct {
	mu    sync.Mutex
	state CompletionState
	err   error
	n     int
	run   func() (int, error)
}

// State reports the completion's current lifecycle state.
func (c *Completion) State() CompletionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Result returns the byte count and error once the completion has finished.
// Callers must check State() == CompletionDone/CompletionFailed first.
func (c *Completion) Result() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n, c.err
}

func (c *Completion) run_() {
	n, err := c.run()
	c.mu.Lock()
	c.n, c.err = n, err
	if err != nil {
		c.state = CompletionFailed
	} else {
		c.state = CompletionDone
	}
	c.mu.Unlock()
}

// IO is the cooperative I/O backend the pager FSMs drive through run_once
// instead of calling blocking syscalls directly. This is the concrete,
// in-process instance of the "external collaborator" spec.md describes by
// contract only.
type IO struct {
	mu      sync.Mutex
	pending []*Completion
}

// NewIO creates an IO backend with an empty work queue.
func NewIO() *IO {
	return &IO{}
}

// enqueue schedules fn to run on the next RunOnce call and returns a
// Completion the caller can poll.
func (io *IO) enqueue(fn func() (int, error)) *Completion {
	c := &Completion{run: fn}
	io.mu.Lock()
	io.pending = append(io.pending, c)
	io.mu.Unlock()
	return c
}

// ReadAt queues a read of len(buf) bytes at offset from storage.
func (io *IO) ReadAt(storage DatabaseStorage, buf []byte, offset int64) *Completion {
	return io.enqueue(func() (int, error) {
		return storage.ReadAt(buf, offset)
	})
}

// WriteAt queues a write of buf at offset to storage.
func (io *IO) WriteAt(storage DatabaseStorage, buf []byte, offset int64) *Completion {
	return io.enqueue(func() (int, error) {
		return storage.WriteAt(buf, offset)
	})
}

// Sync queues an fsync of storage.
func (io *IO) Sync(storage DatabaseStorage) *Completion {
	return io.enqueue(func() (int, error) {
		return 0, storage.Sync()
	})
}

// Submit queues an arbitrary unit of work that doesn't fit the
// ReadAt/WriteAt/Sync shorthands above (e.g. appending a WAL frame) and
// returns a Completion the caller polls the same way.
func (io *IO) Submit(fn func() error) *Completion {
	return io.enqueue(func() (int, error) {
		return 0, fn()
	})
}

// RunOnce drains and runs a single pending operation, reporting whether one
// was run. FSMs poll this in a loop until the Completion(s) they're
// waiting on leave CompletionPending.
func (io *IO) RunOnce() bool {
	io.mu.Lock()
	if len(io.pending) == 0 {
		io.mu.Unlock()
		return false
	}
	c := io.pending[0]
	io.pending = io.pending[1:]
	io.mu.Unlock()
	c.run_()
	return true
}

// Drain runs RunOnce until the queue is empty. Used by tests and by callers
// that want synchronous semantics despite the cooperative API.
func (io *IO) Drain() {
	for io.RunOnce() {
	}
}

// Pending reports the number of operations still queued.
func (io *IO) Pending() int {
	io.mu.Lock()
	defer io.mu.Unlock()
	return len(io.pending)
}
