package alloc

import (
	"errors"
	"fmt"

	"github.com/joshuapare/heapkit/heap/verify"
)

// Check validates the heap: block tiling and tags, full coalescing, and the
// free lists against the blocks actually free in the arena. It returns nil
// or an *InvariantError describing the first violation.
func (h *Heap) Check() error {
	if h.closed {
		return ErrClosed
	}
	if err := h.checkHeap(); err != nil {
		return err
	}
	return nil
}

// CheckInvariants reports whether Check passes.
func (h *Heap) CheckInvariants() bool {
	return h.Check() == nil
}

// verifyOp runs the checker after a mutating call when enabled and panics
// on failure.
func (h *Heap) verifyOp(op string) {
	if !debugChecks && !h.check {
		return
	}
	if err := h.checkHeap(); err != nil {
		err.Op = op
		panic(err)
	}
}

func (h *Heap) checkHeap() *InvariantError {
	data := h.arena.Bytes()
	if err := verify.AllInvariants(data); err != nil {
		return fromValidation(err)
	}
	free, err := freeBlocks(data)
	if err != nil {
		return err
	}
	seen := make(map[Ptr]struct{}, len(free))
	if err := checkBuckets(h.free, free, seen); err != nil {
		return err
	}
	return checkAllListed(free, seen)
}

// freeBlocks maps every free block in the arena to its size.
func freeBlocks(data []byte) (map[Ptr]uint64, *InvariantError) {
	free := make(map[Ptr]uint64)
	err := verify.Walk(data, func(b verify.Block) error {
		if !b.Allocated {
			free[Ptr(b.Offset)] = b.Size
		}
		return nil
	})
	if err != nil {
		return nil, fromValidation(err)
	}
	return free, nil
}

// checkBuckets walks every list in b and validates links, ordering, bucket
// placement and membership. Each node must be a distinct free block of the
// arena; since arena blocks tile without gaps, distinct nodes cannot overlap.
func checkBuckets(b *buckets, free map[Ptr]uint64, seen map[Ptr]struct{}) *InvariantError {
	for i := range b.lists {
		l := &b.lists[i]
		var (
			prev     Ptr
			prevSize uint64
			count    int
			bytes    uint64
		)
		for cur := l.head; cur != Nil; cur = nextLink(b.mem, cur) {
			size, ok := free[cur]
			if !ok {
				return &InvariantError{Op: "check", Offset: int(cur),
					Message: fmt.Sprintf("bucket %d links a block that is not free in the arena", i)}
			}
			if _, dup := seen[cur]; dup {
				return &InvariantError{Op: "check", Offset: int(cur),
					Message: fmt.Sprintf("bucket %d: block listed more than once (cycle or cross-link)", i)}
			}
			seen[cur] = struct{}{}

			if got := prevLink(b.mem, cur); got != prev {
				return &InvariantError{Op: "check", Offset: int(cur),
					Message: fmt.Sprintf("bucket %d: prev link 0x%X, expected 0x%X", i, uint64(got), uint64(prev))}
			}
			if want := b.table.bucketFor(size); want != i {
				return &InvariantError{Op: "check", Offset: int(cur),
					Message: fmt.Sprintf("block of %d bytes in bucket %d, belongs in %d", size, i, want)}
			}
			if prev != Nil && (size < prevSize || (size == prevSize && cur < prev)) {
				return &InvariantError{Op: "check", Offset: int(cur),
					Message: fmt.Sprintf("bucket %d out of order: %d@0x%X after %d@0x%X",
						i, size, uint64(cur), prevSize, uint64(prev))}
			}

			prev, prevSize = cur, size
			count++
			bytes += size
		}
		if count != l.count || bytes != l.bytes {
			return &InvariantError{Op: "check", Offset: -1,
				Message: fmt.Sprintf("bucket %d accounting: %d blocks/%d bytes listed, %d/%d recorded",
					i, count, bytes, l.count, l.bytes)}
		}
	}
	return nil
}

// checkAllListed reports free blocks missing from every list.
func checkAllListed(free map[Ptr]uint64, seen map[Ptr]struct{}) *InvariantError {
	if len(seen) == len(free) {
		return nil
	}
	for p, size := range free {
		if _, ok := seen[p]; !ok {
			return &InvariantError{Op: "check", Offset: int(p),
				Message: fmt.Sprintf("free block of %d bytes is in no free list (%d free, %d listed)",
					size, len(free), len(seen))}
		}
	}
	return nil
}

func fromValidation(err error) *InvariantError {
	ie := &InvariantError{Op: "check", Offset: -1, Message: err.Error(), Err: err}
	var verr *verify.ValidationError
	if errors.As(err, &verr) {
		ie.Offset = verr.Offset
		ie.Message = verr.Type + ": " + verr.Message
	}
	return ie
}
