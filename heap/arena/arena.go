// Package arena provides the raw memory region the allocator carves blocks
// from. An Arena reserves its full limit up front and exposes a growing
// prefix of it; the backing memory never moves, so offsets and payload
// slices handed out by the allocator stay valid across growth.
//
// Extend is not synchronized. Callers that share an Arena between
// goroutines must serialize Extend themselves. Len and Bytes may be called
// concurrently with Extend and observe either the old or the new extent.
package arena

import (
	"fmt"
	"sync/atomic"

	"github.com/joshuapare/heapkit/internal/format"
)

// DefaultLimit is the reservation used when callers pass a zero limit.
const DefaultLimit = 256 << 20

// Arena is a reserved, linearly growable byte region.
type Arena struct {
	region  []byte
	release func() error
	brk     atomic.Int64
	closed  atomic.Bool
}

// New reserves limit bytes. A zero limit selects DefaultLimit.
func New(limit int) (*Arena, error) {
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit < 0 || !format.IsAligned(uint64(limit)) {
		return nil, fmt.Errorf("%w: %d", ErrBadLimit, limit)
	}
	region, release, err := reserve(limit)
	if err != nil {
		return nil, fmt.Errorf("arena: reserve %d bytes: %w", limit, err)
	}
	return &Arena{region: region, release: release}, nil
}

// Extend grows the extent by n bytes and returns the previous break.
// On failure the extent is unchanged.
func (a *Arena) Extend(n int) (int, error) {
	if a.closed.Load() {
		return 0, ErrClosed
	}
	if n <= 0 || !format.IsAligned(uint64(n)) {
		return 0, fmt.Errorf("%w: %d", ErrUnaligned, n)
	}
	old := int(a.brk.Load())
	if n > len(a.region)-old {
		return 0, ErrOutOfMemory
	}
	a.brk.Store(int64(old + n))
	return old, nil
}

// Bytes returns the current extent. The slice capacity is clipped to the
// extent so appends cannot write past the break.
func (a *Arena) Bytes() []byte {
	n := a.Len()
	return a.region[:n:n]
}

// Region returns the full reservation, including bytes past the break.
func (a *Arena) Region() []byte {
	return a.region
}

// Len returns the current extent in bytes.
func (a *Arena) Len() int {
	return int(a.brk.Load())
}

// Limit returns the reserved size in bytes.
func (a *Arena) Limit() int {
	return len(a.region)
}

// Close releases the reservation. Slices obtained from the arena must not be
// used afterwards. Close is idempotent.
func (a *Arena) Close() error {
	if a.closed.Swap(true) {
		return nil
	}
	a.brk.Store(0)
	rel := a.release
	a.region = nil
	if rel == nil {
		return nil
	}
	return rel()
}
