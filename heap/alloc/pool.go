package alloc

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/joshuapare/heapkit/heap/arena"
	"github.com/joshuapare/heapkit/heap/verify"
	"github.com/joshuapare/heapkit/internal/format"
)

// Pool is the concurrent variant: one arena shared by many Workers. Each
// Worker caches free blocks in its own lists and allocates from them
// without locking. The pool lock only guards arena growth and the orphan
// lists that receive the caches of closed workers.
//
// Workers never coalesce, because a neighboring block may be owned by
// another worker. Free space therefore fragments over time; blocks return
// to circulation through the orphan lists when workers close.
type Pool struct {
	mu      sync.Mutex
	arena   *arena.Arena
	mem     []byte
	table   *sizeClassTable
	orphans *buckets
	workers map[*Worker]struct{}
	chunk   int
	log     *slog.Logger
	closed  atomic.Bool

	// Updated lock-free by workers; folded into Stats.
	liveBlocks atomic.Int64
	liveBytes  atomic.Int64

	stats PoolStats
}

// PoolStats holds pool-level counters. All but the live counters are
// guarded by the pool lock.
type PoolStats struct {
	Refills       uint64 // Worker misses served under the lock
	Adopted       uint64 // Refills served from the orphan lists
	Orphaned      uint64 // Blocks handed to the orphan lists by closing workers
	Extensions    uint64 // Arena growth calls
	ExtendedBytes uint64 // Bytes added by arena growth
	Workers       int    // Open workers
	LiveBlocks    int64  // Allocated blocks across all workers
	LiveBytes     int64  // Bytes in those blocks, tags included
}

// NewPool reserves the shared arena and writes the heap prefix. Realloc and
// CheckEveryOp options do not apply to workers.
func NewPool(opts *Options) (*Pool, error) {
	o := opts.resolve()

	table, err := newSizeClassTable(*o.Classes)
	if err != nil {
		return nil, err
	}
	ar, err := arena.New(o.MaxSize)
	if err != nil {
		return nil, err
	}
	if _, err := ar.Extend(format.PrefixSize); err != nil {
		_ = ar.Close()
		return nil, fmt.Errorf("%w: arena too small for heap prefix", ErrOutOfMemory)
	}
	mem := ar.Region()
	writePrefix(mem)

	pl := &Pool{
		arena:   ar,
		mem:     mem,
		table:   table,
		orphans: newBuckets(mem, table),
		workers: make(map[*Worker]struct{}),
		chunk:   o.ChunkSize,
		log:     o.Logger,
	}
	if o.InitialSize > 0 {
		p, err := pl.grow(o.InitialSize)
		if err != nil {
			_ = ar.Close()
			return nil, err
		}
		pl.orphans.insert(p, uint64(o.InitialSize))
		// Only growth after construction counts.
		pl.stats.Extensions, pl.stats.ExtendedBytes = 0, 0
	}
	return pl, nil
}

// NewWorker returns a new per-goroutine allocation context. A Worker must
// not be used by more than one goroutine at a time.
func (pl *Pool) NewWorker() (*Worker, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.closed.Load() {
		return nil, ErrClosed
	}
	w := &Worker{pool: pl, free: newBuckets(pl.mem, pl.table)}
	pl.workers[w] = struct{}{}
	pl.stats.Workers++
	return w, nil
}

// refill serves a worker miss: it adopts a fitting orphan block or grows
// the arena. The returned block is unlinked, free and formatted.
func (pl *Pool) refill(bucket int, asize uint64) (Ptr, uint64, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.closed.Load() {
		return Nil, 0, ErrClosed
	}
	pl.stats.Refills++

	if p, size := pl.orphans.findFit(bucket, asize); p != Nil {
		pl.stats.Adopted++
		pl.log.Debug("pool handoff", "op", "adopt", "need", asize, "block", size)
		return p, size, nil
	}

	n := max(int(asize), pl.chunk)
	p, err := pl.grow(n)
	if err != nil {
		return Nil, 0, err
	}
	return p, uint64(n), nil
}

// grow extends the arena by n bytes and formats the new space as one free
// block over the old epilogue. It does not merge with a free tail: the tail
// may be cached by a worker. Callers hold the lock or own the pool.
func (pl *Pool) grow(n int) (Ptr, error) {
	base, err := pl.arena.Extend(n)
	if err != nil {
		pl.log.Debug("arena growth failed", "extend", n, "brk", pl.arena.Len(), "limit", pl.arena.Limit())
		if errors.Is(err, arena.ErrOutOfMemory) {
			return Nil, fmt.Errorf("%w: extend by %d bytes", ErrOutOfMemory, n)
		}
		return Nil, err
	}
	p := Ptr(base)
	setTags(pl.mem, p, uint64(n), false)
	writeEpilogue(pl.mem, base+n)
	pl.stats.Extensions++
	pl.stats.ExtendedBytes += uint64(n)
	pl.log.Debug("arena extended", "extend", n, "brk", base+n)
	return p, nil
}

// adoptCache moves every block cached by w into the orphan lists.
func (pl *Pool) adoptCache(w *Worker) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	n := 0
	w.free.drain(func(p Ptr, size uint64) {
		pl.orphans.insert(p, size)
		n++
	})
	pl.stats.Orphaned += uint64(n)
	delete(pl.workers, w)
	pl.stats.Workers--
	if n > 0 {
		pl.log.Debug("pool handoff", "op", "orphan", "blocks", n)
	}
}

// Check validates the shared arena and every worker and orphan list. It
// must only be called while no worker is running. Adjacent free blocks are
// expected and not reported.
func (pl *Pool) Check() error {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.closed.Load() {
		return ErrClosed
	}

	data := pl.arena.Bytes()
	if err := verify.Structure(data); err != nil {
		return fromValidation(err)
	}
	free, ierr := freeBlocks(data)
	if ierr != nil {
		return ierr
	}
	seen := make(map[Ptr]struct{}, len(free))
	if ierr := checkBuckets(pl.orphans, free, seen); ierr != nil {
		return ierr
	}
	for w := range pl.workers {
		if ierr := checkBuckets(w.free, free, seen); ierr != nil {
			return ierr
		}
	}
	if ierr := checkAllListed(free, seen); ierr != nil {
		return ierr
	}
	return nil
}

// Stats returns a snapshot of the pool counters.
func (pl *Pool) Stats() PoolStats {
	pl.mu.Lock()
	st := pl.stats
	pl.mu.Unlock()
	st.LiveBlocks = pl.liveBlocks.Load()
	st.LiveBytes = pl.liveBytes.Load()
	return st
}

// HeapSize returns the current arena extent in bytes.
func (pl *Pool) HeapSize() int {
	return pl.arena.Len()
}

// Bytes returns the current arena extent. Only meaningful while quiescent.
func (pl *Pool) Bytes() []byte {
	return pl.arena.Bytes()
}

// OrphanBytes returns the total size of blocks in the orphan lists.
func (pl *Pool) OrphanBytes() uint64 {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.orphans.freeBytes()
}

// Close releases the arena. Workers must not be used afterwards.
func (pl *Pool) Close() error {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.closed.Swap(true) {
		return nil
	}
	return pl.arena.Close()
}

// Worker is a per-goroutine allocation context over a Pool. Its free lists
// are private, so Alloc and Free take no lock unless the lists miss.
type Worker struct {
	pool   *Pool
	free   *buckets
	closed bool
	stats  Stats
}

// usable reports ErrClosed once the worker or its pool is closed.
func (w *Worker) usable() error {
	if w.closed || w.pool.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Alloc returns a block with at least size payload bytes.
func (w *Worker) Alloc(size int) (Ptr, []byte, error) {
	if err := w.usable(); err != nil {
		return Nil, nil, err
	}
	switch {
	case size == 0:
		return Nil, nil, nil
	case size < 0:
		return Nil, nil, ErrBadSize
	}
	pl := w.pool
	need, ok := requestSize(size, pl.arena.Limit())
	if !ok {
		return Nil, nil, fmt.Errorf("%w: request of %d bytes exceeds arena", ErrOutOfMemory, size)
	}
	bucket := pl.table.bucketFor(need)
	asize := pl.table.ceiling(bucket, need)

	p, bsize := w.free.findFit(bucket, asize)
	if p == Nil {
		var err error
		if p, bsize, err = pl.refill(bucket, asize); err != nil {
			return Nil, nil, err
		}
		w.stats.AllocSlowPath++
	} else {
		w.stats.AllocFastPath++
	}

	placed := split(w.free, p, bsize, asize)
	if placed != bsize {
		w.stats.Splits++
	}
	setTags(pl.mem, p, placed, true)
	w.stats.Allocs++
	w.stats.noteAllocated(placed)
	pl.liveBlocks.Add(1)
	pl.liveBytes.Add(int64(placed))
	return p, payloadSlice(pl.mem, p, placed, size), nil
}

// Free marks the block free and caches it in this worker's lists, whichever
// worker allocated it. Free(Nil) and the prologue sentinel are no-ops.
func (w *Worker) Free(p Ptr) error {
	if err := w.usable(); err != nil {
		return err
	}
	if p == Nil || p == format.PrologueOffset {
		return nil
	}
	pl := w.pool
	size, allocated, err := lookup(pl.mem, pl.arena.Len(), p)
	if err != nil {
		return fmt.Errorf("%w: 0x%X", err, uint64(p))
	}
	if !allocated {
		return fmt.Errorf("%w: 0x%X", ErrDoubleFree, uint64(p))
	}
	setTags(pl.mem, p, size, false)
	w.free.insert(p, size)
	w.stats.Frees++
	w.stats.noteFreed(size)
	pl.liveBlocks.Add(-1)
	pl.liveBytes.Add(-int64(size))
	return nil
}

// Realloc moves the payload into a new block and frees the old one.
func (w *Worker) Realloc(p Ptr, size int) (Ptr, []byte, error) {
	if err := w.usable(); err != nil {
		return Nil, nil, err
	}
	if p == Nil {
		return w.Alloc(size)
	}
	if size == 0 {
		return Nil, nil, w.Free(p)
	}
	if size < 0 {
		return Nil, nil, ErrBadSize
	}
	old, err := w.Payload(p)
	if err != nil {
		return Nil, nil, err
	}
	w.stats.Reallocs++
	np, b, err := w.Alloc(size)
	if err != nil {
		return Nil, nil, err
	}
	copy(b, old)
	if err := w.Free(p); err != nil {
		return Nil, nil, err
	}
	return np, b, nil
}

// Payload returns the full usable payload of the allocated block at p.
func (w *Worker) Payload(p Ptr) ([]byte, error) {
	if err := w.usable(); err != nil {
		return nil, err
	}
	pl := w.pool
	size, allocated, err := lookup(pl.mem, pl.arena.Len(), p)
	if err != nil || !allocated {
		return nil, fmt.Errorf("%w: 0x%X", ErrBadPointer, uint64(p))
	}
	return payloadSlice(pl.mem, p, size, int(format.PayloadSize(size))), nil
}

// FreeBytes returns the total size of blocks cached by this worker.
func (w *Worker) FreeBytes() uint64 {
	return w.free.freeBytes()
}

// Stats returns a snapshot of this worker's counters.
func (w *Worker) Stats() Stats {
	return w.stats
}

// Close hands every cached free block to the pool's orphan lists. Blocks
// still allocated by this worker stay valid and may be freed by any worker.
func (w *Worker) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if w.pool.closed.Load() {
		return nil
	}
	w.pool.adoptCache(w)
	return nil
}
