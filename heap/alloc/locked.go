package alloc

import "sync"

// lockedAllocator serializes every call to an underlying Allocator.
type lockedAllocator struct {
	mu sync.Mutex
	a  Allocator
}

// WithLock returns an Allocator that holds a mutex for the duration of each
// call, making a Heap (or any other Allocator) safe for concurrent use.
// Payload slices returned by it are not protected.
func WithLock(a Allocator) Allocator {
	return &lockedAllocator{a: a}
}

func (l *lockedAllocator) Alloc(size int) (Ptr, []byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.Alloc(size)
}

func (l *lockedAllocator) Free(p Ptr) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.Free(p)
}

func (l *lockedAllocator) Realloc(p Ptr, size int) (Ptr, []byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.Realloc(p, size)
}

func (l *lockedAllocator) Payload(p Ptr) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.Payload(p)
}
