package alloc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/heap/verify"
)

// newTestHeap creates a heap with a small reservation and registers cleanup.
func newTestHeap(t testing.TB, opts *Options) *Heap {
	t.Helper()
	if opts == nil {
		opts = &Options{}
	}
	if opts.MaxSize == 0 {
		opts.MaxSize = 1 << 20
	}
	h, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

// mustAlloc allocates size bytes and fails the test on error.
func mustAlloc(t testing.TB, a Allocator, size int) (Ptr, []byte) {
	t.Helper()
	p, b, err := a.Alloc(size)
	require.NoError(t, err)
	require.NotEqual(t, Nil, p)
	require.Len(t, b, size)
	return p, b
}

// assertInvariants runs the full checker and fails with its message.
func assertInvariants(t testing.TB, h *Heap) {
	t.Helper()
	require.NoError(t, h.Check())
}

// blocksOf returns the arena's blocks in address order.
func blocksOf(t testing.TB, h *Heap) []verify.Block {
	t.Helper()
	blocks, err := verify.Blocks(h.Bytes())
	require.NoError(t, err)
	return blocks
}

// blockAt returns the block whose payload starts at p.
func blockAt(t testing.TB, h *Heap, p Ptr) verify.Block {
	t.Helper()
	for _, b := range blocksOf(t, h) {
		if b.Offset == int(p) {
			return b
		}
	}
	t.Fatalf("no block at 0x%X", uint64(p))
	return verify.Block{}
}

// fill writes a pattern derived from seed over b.
func fill(b []byte, seed int) {
	for i := range b {
		b[i] = byte(seed*31 + i)
	}
}

// checkPattern reports whether b still holds the fill pattern for seed.
func checkPattern(b []byte, seed int) bool {
	for i := range b {
		if b[i] != byte(seed*31+i) {
			return false
		}
	}
	return true
}
