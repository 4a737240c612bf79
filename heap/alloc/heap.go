package alloc

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/joshuapare/heapkit/heap/arena"
	"github.com/joshuapare/heapkit/internal/format"
)

// Heap is a single-threaded allocator over one arena with segregated,
// address-ordered free lists and immediate coalescing.
//
// A Heap is not safe for concurrent use. Wrap it with WithLock to share it,
// or use a Pool for per-goroutine workers.
type Heap struct {
	arena *arena.Arena
	mem   []byte // full reservation; never moves

	table *sizeClassTable
	free  *buckets

	chunk  int
	policy ReallocPolicy
	check  bool
	log    *slog.Logger
	closed bool

	stats Stats

	// Test hook: called with the extension size before the arena grows (nil in production)
	onExtend func(int)
}

// New creates a heap: it reserves the arena, writes the prologue and
// epilogue, and optionally pre-extends by opts.InitialSize.
func New(opts *Options) (*Heap, error) {
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

	h := &Heap{
		arena:  ar,
		mem:    mem,
		table:  table,
		free:   newBuckets(mem, table),
		chunk:  o.ChunkSize,
		policy: o.Realloc,
		check:  o.CheckEveryOp,
		log:    o.Logger,
	}

	if o.InitialSize > 0 {
		if err := h.extend(o.InitialSize); err != nil {
			_ = ar.Close()
			return nil, err
		}
		// Only growth after construction counts.
		h.stats.Extensions, h.stats.ExtendedBytes = 0, 0
	}

	h.log.Debug("heap initialized",
		"max", o.MaxSize, "initial", o.InitialSize, "chunk", o.ChunkSize, "classes", table.String())
	h.verifyOp("init")
	return h, nil
}

// Alloc returns a block with at least size payload bytes.
func (h *Heap) Alloc(size int) (Ptr, []byte, error) {
	if h.closed {
		return Nil, nil, ErrClosed
	}
	p, b, err := h.alloc(size)
	if err == nil {
		h.verifyOp("alloc")
	}
	return p, b, err
}

func (h *Heap) alloc(size int) (Ptr, []byte, error) {
	switch {
	case size == 0:
		return Nil, nil, nil
	case size < 0:
		return Nil, nil, ErrBadSize
	}
	need, ok := requestSize(size, h.arena.Limit())
	if !ok {
		return Nil, nil, fmt.Errorf("%w: request of %d bytes exceeds arena", ErrOutOfMemory, size)
	}

	bucket := h.table.bucketFor(need)
	asize := h.table.ceiling(bucket, need)

	p, bsize := h.free.findFit(bucket, asize)
	if p == Nil {
		if err := h.extendFor(asize); err != nil {
			return Nil, nil, err
		}
		p, bsize = h.free.findFit(bucket, asize)
		if p == Nil {
			return Nil, nil, &InvariantError{
				Op:      "alloc",
				Offset:  -1,
				Message: fmt.Sprintf("no fit for %d bytes after extending the arena", asize),
			}
		}
		h.stats.AllocSlowPath++
	} else {
		h.stats.AllocFastPath++
	}

	bsize = h.place(p, bsize, asize)
	h.stats.Allocs++
	h.stats.noteAllocated(bsize)
	return p, payloadSlice(h.mem, p, bsize, size), nil
}

// place carves asize bytes from the free block p of bsize bytes, which must
// already be unlinked, marks the result allocated and returns its size.
func (h *Heap) place(p Ptr, bsize, asize uint64) uint64 {
	size := split(h.free, p, bsize, asize)
	if size != bsize {
		h.stats.Splits++
	}
	setTags(h.mem, p, size, true)
	return size
}

// split shrinks the block p to asize when the remainder is worth keeping
// and inserts the remainder into b. It returns the block's final size.
//
// The remainder is kept only when it can hold a free-list node and its
// bucket is not far below the unsplit block's bucket.
func split(b *buckets, p Ptr, bsize, asize uint64) uint64 {
	rem := bsize - asize
	if rem < format.MinBlockSize {
		return bsize
	}
	if b.table.bucketFor(rem)<<2 < b.table.bucketFor(bsize) {
		return bsize
	}
	tail := p + Ptr(asize)
	setTags(b.mem, tail, rem, false)
	b.insert(tail, rem)
	return asize
}

// Free releases the block at p and coalesces it with free neighbors.
// Free(Nil) and freeing the prologue sentinel are no-ops.
func (h *Heap) Free(p Ptr) error {
	if h.closed {
		return ErrClosed
	}
	err := h.release(p)
	if err == nil {
		h.verifyOp("free")
	}
	return err
}

func (h *Heap) release(p Ptr) error {
	if p == Nil || p == format.PrologueOffset {
		return nil
	}
	size, allocated, err := lookup(h.mem, h.arena.Len(), p)
	if err != nil {
		return fmt.Errorf("%w: 0x%X", err, uint64(p))
	}
	if !allocated {
		return fmt.Errorf("%w: 0x%X", ErrDoubleFree, uint64(p))
	}

	h.stats.Frees++
	h.stats.noteFreed(size)
	setTags(h.mem, p, size, false)
	h.coalesce(p, size)
	return nil
}

// coalesce merges the free block p with any free neighbors and inserts the
// result into its bucket. The prologue and epilogue are allocated, so the
// boundary blocks need no special case.
func (h *Heap) coalesce(p Ptr, size uint64) (Ptr, uint64) {
	prevTag := format.ReadWord(h.mem, format.PrevFooterOffset(int(p)))
	nextTag := format.ReadWord(h.mem, format.HeaderOffset(format.NextOffset(int(p), size)))
	prevFree := !format.UnpackAllocated(prevTag)
	nextFree := !format.UnpackAllocated(nextTag)

	if nextFree {
		next := p + Ptr(size)
		nsize := format.UnpackSize(nextTag)
		h.free.remove(next, nsize)
		size += nsize
		h.stats.CoalesceForward++
	}
	if prevFree {
		psize := format.UnpackSize(prevTag)
		prev := p - Ptr(psize)
		h.free.remove(prev, psize)
		p = prev
		size += psize
		h.stats.CoalesceBackward++
	}
	if prevFree || nextFree {
		setTags(h.mem, p, size, false)
	}
	h.free.insert(p, size)
	return p, size
}

// tailFree returns the size of the free block that ends at the epilogue, or 0.
func (h *Heap) tailFree() uint64 {
	brk := h.arena.Len()
	tag := format.ReadWord(h.mem, brk-format.Overhead)
	if format.UnpackAllocated(tag) {
		return 0
	}
	return format.UnpackSize(tag)
}

// extendFor grows the arena so that a block of asize bytes fits at the tail.
func (h *Heap) extendFor(asize uint64) error {
	grow := h.chunk
	if tail := h.tailFree(); tail < asize {
		grow = max(int(asize-tail), h.chunk)
	}
	return h.extend(format.AlignUpInt(grow))
}

// extend grows the arena by n bytes, formats the new space as a free block
// over the old epilogue and coalesces it with a free tail.
func (h *Heap) extend(n int) error {
	if h.onExtend != nil {
		h.onExtend(n)
	}
	base, err := h.arena.Extend(n)
	if err != nil {
		h.log.Debug("arena growth failed", "extend", n, "brk", h.arena.Len(), "limit", h.arena.Limit())
		if errors.Is(err, arena.ErrOutOfMemory) {
			return fmt.Errorf("%w: extend by %d bytes", ErrOutOfMemory, n)
		}
		return err
	}

	p := Ptr(base)
	setTags(h.mem, p, uint64(n), false)
	writeEpilogue(h.mem, base+n)
	h.stats.Extensions++
	h.stats.ExtendedBytes += uint64(n)
	h.log.Debug("arena extended", "extend", n, "brk", base+n)

	h.coalesce(p, uint64(n))
	return nil
}

// Realloc resizes the block at p according to the heap's policy.
func (h *Heap) Realloc(p Ptr, size int) (Ptr, []byte, error) {
	if h.closed {
		return Nil, nil, ErrClosed
	}
	np, b, err := h.realloc(p, size)
	if err == nil {
		h.verifyOp("realloc")
	}
	return np, b, err
}

func (h *Heap) realloc(p Ptr, size int) (Ptr, []byte, error) {
	if p == Nil {
		return h.alloc(size)
	}
	if size == 0 {
		return Nil, nil, h.release(p)
	}
	if size < 0 {
		return Nil, nil, ErrBadSize
	}
	cur, allocated, err := lookup(h.mem, h.arena.Len(), p)
	if err != nil || !allocated {
		return Nil, nil, fmt.Errorf("%w: 0x%X", ErrBadPointer, uint64(p))
	}
	h.stats.Reallocs++

	if h.policy == ReallocInPlace {
		if np, b, ok := h.reallocInPlace(p, cur, size); ok {
			h.stats.ReallocsInPlace++
			return np, b, nil
		}
		// Over-allocate: a block that was resized once tends to be resized again.
		np, b, err := h.reallocCopy(p, cur, size+size>>3)
		if err != nil {
			return Nil, nil, err
		}
		return np, b[:size], nil
	}

	return h.reallocCopy(p, cur, size)
}

// reallocCopy moves the payload to a fresh block. On failure the old block
// is left untouched.
func (h *Heap) reallocCopy(p Ptr, cur uint64, size int) (Ptr, []byte, error) {
	np, b, err := h.alloc(size)
	if err != nil {
		return Nil, nil, err
	}
	old := payloadSlice(h.mem, p, cur, int(format.PayloadSize(cur)))
	copy(b, old)
	if err := h.release(p); err != nil {
		// p was validated by the caller, so this means corruption. Drop the
		// new block and leave p as it was.
		_ = h.release(np)
		return Nil, nil, err
	}
	return np, b, nil
}

// reallocInPlace resizes p without moving it when the block already fits,
// when a free right neighbor covers the deficit, or when p is the last block
// and the arena can grow by the deficit.
func (h *Heap) reallocInPlace(p Ptr, cur uint64, size int) (Ptr, []byte, bool) {
	need, ok := requestSize(size, h.arena.Limit())
	if !ok {
		return Nil, nil, false
	}
	asize := format.AlignUp(need)
	if asize <= cur {
		return p, payloadSlice(h.mem, p, cur, size), true
	}

	next := p + Ptr(cur)
	nextTag := format.ReadWord(h.mem, format.HeaderOffset(int(next)))
	nsize, nextAllocated := format.Unpack(nextTag)

	switch {
	case !nextAllocated && cur+nsize >= asize:
		h.free.remove(next, nsize)
		h.stats.noteFreed(cur)
		h.stats.CoalesceForward++
		bsize := h.place(p, cur+nsize, asize)
		h.stats.noteAllocated(bsize)
		return p, payloadSlice(h.mem, p, bsize, size), true

	case nsize == 0:
		// Right neighbor is the epilogue.
		deficit := int(asize - cur)
		if h.onExtend != nil {
			h.onExtend(deficit)
		}
		base, err := h.arena.Extend(deficit)
		if err != nil {
			h.log.Debug("arena growth failed", "extend", deficit, "brk", h.arena.Len())
			return Nil, nil, false
		}
		writeEpilogue(h.mem, base+deficit)
		setTags(h.mem, p, asize, true)
		h.stats.Extensions++
		h.stats.ExtendedBytes += uint64(deficit)
		h.stats.noteFreed(cur)
		h.stats.noteAllocated(asize)
		h.log.Debug("arena extended for realloc", "extend", deficit, "brk", base+deficit)
		return p, payloadSlice(h.mem, p, asize, size), true
	}
	return Nil, nil, false
}

// Payload returns the full usable payload of the allocated block at p.
func (h *Heap) Payload(p Ptr) ([]byte, error) {
	if h.closed {
		return nil, ErrClosed
	}
	size, allocated, err := lookup(h.mem, h.arena.Len(), p)
	if err != nil || !allocated {
		return nil, fmt.Errorf("%w: 0x%X", ErrBadPointer, uint64(p))
	}
	return payloadSlice(h.mem, p, size, int(format.PayloadSize(size))), nil
}

// UsableSize returns the payload capacity of the allocated block at p.
func (h *Heap) UsableSize(p Ptr) (int, error) {
	b, err := h.Payload(p)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

// Bytes returns the current arena extent (prefix, blocks and epilogue).
func (h *Heap) Bytes() []byte {
	return h.arena.Bytes()
}

// HeapSize returns the current arena extent in bytes.
func (h *Heap) HeapSize() int {
	return h.arena.Len()
}

// FreeBytes returns the total size of all free blocks.
func (h *Heap) FreeBytes() uint64 {
	return h.free.freeBytes()
}

// FreeBlocks returns the number of free blocks.
func (h *Heap) FreeBlocks() int {
	return h.free.freeBlocks()
}

// Policy returns the realloc policy.
func (h *Heap) Policy() ReallocPolicy {
	return h.policy
}

// Close releases the arena. Every pointer and payload slice becomes invalid.
func (h *Heap) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	h.free = newBuckets(nil, h.table)
	h.mem = nil
	return h.arena.Close()
}
