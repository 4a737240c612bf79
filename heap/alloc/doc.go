// Package alloc provides malloc/free/realloc over a raw arena using boundary
// tags, segregated free lists and immediate coalescing.
//
// # Overview
//
// Every block carries a header and a footer word holding its size and an
// allocated bit, so both neighbors of a block can be found in O(1). Free
// blocks are threaded into one of 30 doubly linked lists, chosen by size and
// kept sorted by (size, address). Freed blocks merge with free neighbors at
// once, so a Heap never holds two adjacent free blocks.
//
// # Allocator Interface
//
// The core abstraction is the Allocator interface:
//
//   - Alloc(size): Allocate a block with at least size payload bytes
//   - Free(p): Release a block and coalesce it
//   - Realloc(p, size): Resize a block, preserving its contents
//   - Payload(p): Access the usable bytes of a block
//
// # Implementations
//
// Heap: single-threaded allocator with full coalescing
//
//   - Size-class search from the request's bucket upward
//   - Splits oversized blocks when the remainder is worth keeping
//   - Grows the arena by at least ChunkSize on a miss
//
// Pool and Worker: the concurrent variant
//
//   - One arena and one lock shared by every Worker
//   - Per-worker free lists, used without locking
//   - No coalescing; closing a Worker hands its cache to the pool
//
// # Usage Example
//
//	h, err := alloc.New(nil)
//	if err != nil {
//	    return err
//	}
//	defer h.Close()
//
//	p, buf, err := h.Alloc(40)
//	if err != nil {
//	    return err
//	}
//	copy(buf, "hello")
//
//	p, buf, err = h.Realloc(p, 400)
//	if err != nil {
//	    return err
//	}
//
//	err = h.Free(p)
//
// # Size Classes
//
// The default table (ConfigFibonacci) uses these bucket ceilings in bytes,
// header and footer included:
//
//	Bucket  0:   32        Bucket 10:    3728
//	Bucket  1:   48        Bucket 11:    6032
//	Bucket  2:   80        ...
//	Bucket  3:  144        Bucket 28: 21540304
//	Bucket  4:  208        Bucket 29: catch-all
//
// A request is rounded up to its bucket ceiling unless that would waste more
// than a quarter of the request, in which case it is only rounded to 16.
//
// # Pointers
//
// A Ptr is the payload offset of a block in its arena. The arena is reserved
// up front and never moves, so pointers and payload slices stay valid until
// the block is freed or the heap is closed. Offset 16 is the payload of the
// permanently allocated prologue; freeing it is a no-op, like freeing Nil.
//
// # Consistency Checking
//
// Check validates the arena layout and cross-checks the free lists against
// it. Building with -tags heapdebug, or setting Options.CheckEveryOp, runs
// Check after every mutating call and panics with *InvariantError.
//
// # Thread Safety
//
// Heap instances are not thread-safe. Use WithLock to share one, or give
// each goroutine its own Worker from a Pool.
//
// # Related Packages
//
//   - github.com/joshuapare/heapkit/heap/arena: Reserved, growable memory
//   - github.com/joshuapare/heapkit/heap/verify: Structural heap validation
//   - github.com/joshuapare/heapkit/internal/format: Block tag codec and layout constants
package alloc
