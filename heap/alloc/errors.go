package alloc

import (
	"errors"
	"fmt"

	"github.com/joshuapare/heapkit/heap/arena"
)

var (
	// ErrOutOfMemory indicates that no free block fits and the arena cannot grow.
	ErrOutOfMemory = fmt.Errorf("alloc: out of memory: %w", arena.ErrOutOfMemory)

	// ErrBadPointer indicates a pointer that does not address a block in this heap.
	ErrBadPointer = errors.New("alloc: bad pointer")

	// ErrDoubleFree indicates a free of a block that is already free.
	ErrDoubleFree = errors.New("alloc: block already free")

	// ErrBadSize indicates a negative request size.
	ErrBadSize = errors.New("alloc: negative size")

	// ErrClosed indicates use of a heap, pool or worker after Close.
	ErrClosed = errors.New("alloc: closed")

	// ErrBadClasses indicates an invalid size-class table.
	ErrBadClasses = errors.New("alloc: invalid size classes")
)

// InvariantError reports a broken heap invariant. Check returns it, and
// debug builds panic with it after the operation that broke the heap.
type InvariantError struct {
	Op      string // Operation that was running ("check", "alloc", "free", ...)
	Offset  int    // Arena offset of the offending word or block, -1 if N/A
	Message string
	Err     error // Underlying validation error, if any
}

func (e *InvariantError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("alloc: %s: invariant violated at offset 0x%X: %s", e.Op, e.Offset, e.Message)
	}
	return fmt.Sprintf("alloc: %s: invariant violated: %s", e.Op, e.Message)
}

func (e *InvariantError) Unwrap() error { return e.Err }
