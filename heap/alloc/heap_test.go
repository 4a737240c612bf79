package alloc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/heap/arena"
	"github.com/joshuapare/heapkit/internal/format"
)

func TestNew_WritesPrefix(t *testing.T) {
	h := newTestHeap(t, nil)

	require.Equal(t, format.PrefixSize, h.HeapSize())
	require.Empty(t, blocksOf(t, h))
	require.Zero(t, h.FreeBlocks())
	assertInvariants(t, h)
}

func TestNew_InitialSize(t *testing.T) {
	h := newTestHeap(t, &Options{InitialSize: 500})

	// Rounded up to 16.
	require.Equal(t, format.PrefixSize+512, h.HeapSize())
	require.Equal(t, 1, h.FreeBlocks())
	require.Equal(t, uint64(512), h.FreeBytes())
	assertInvariants(t, h)
}

func TestNew_RejectsBadClasses(t *testing.T) {
	_, err := New(&Options{MaxSize: 1 << 16, Classes: &SizeClassConfig{Name: "bad"}})
	require.ErrorIs(t, err, ErrBadClasses)
}

func TestAlloc_FirstAllocationExtendsByChunk(t *testing.T) {
	h := newTestHeap(t, nil)

	p, _ := mustAlloc(t, h, 40)
	assert.Equal(t, Ptr(format.FirstBlockOffset), p)
	assert.Equal(t, format.PrefixSize+DefaultChunkSize, h.HeapSize())

	// 40 + 16 = 56 rounds to 64; the 192-byte tail is split off.
	assert.Equal(t, uint64(64), blockAt(t, h, p).Size)
	assert.Equal(t, 1, h.FreeBlocks())
	assert.Equal(t, uint64(192), h.FreeBytes())

	st := h.Stats()
	assert.Equal(t, uint64(1), st.Extensions)
	assert.Equal(t, uint64(1), st.AllocSlowPath)
	assert.Equal(t, uint64(1), st.Splits)
	assertInvariants(t, h)
}

func TestAlloc_ZeroAndNegative(t *testing.T) {
	h := newTestHeap(t, nil)

	p, b, err := h.Alloc(0)
	require.NoError(t, err)
	assert.Equal(t, Nil, p)
	assert.Nil(t, b)
	assert.Equal(t, format.PrefixSize, h.HeapSize(), "Alloc(0) must not touch the arena")

	_, _, err = h.Alloc(-1)
	require.ErrorIs(t, err, ErrBadSize)
}

func TestFree_NilAndSentinelAreNoOps(t *testing.T) {
	h := newTestHeap(t, &Options{InitialSize: 256})
	before := append([]byte(nil), h.Bytes()...)

	require.NoError(t, h.Free(Nil))
	require.NoError(t, h.Free(format.PrologueOffset))
	require.Equal(t, before, h.Bytes())
}

// Test_ReuseBeforeExtend allocates twice from a fresh 512-byte arena, frees
// the first block and checks the next allocation reuses its address.
func Test_ReuseBeforeExtend(t *testing.T) {
	h := newTestHeap(t, &Options{InitialSize: 512})
	size := h.HeapSize()

	first, _ := mustAlloc(t, h, 40)
	second, _ := mustAlloc(t, h, 40)
	require.NotEqual(t, first, second)

	require.NoError(t, h.Free(first))
	assertInvariants(t, h)

	again, _ := mustAlloc(t, h, 40)
	assert.Equal(t, first, again)
	assert.Equal(t, size, h.HeapSize(), "no arena growth")
	assert.Zero(t, h.Stats().Extensions)
	assertInvariants(t, h)
}

// Test_FitPicksSmallestInBucket lays out three free blocks in the same bucket
// and checks that the smallest one that fits is chosen.
func Test_FitPicksSmallestInBucket(t *testing.T) {
	h := newTestHeap(t, &Options{InitialSize: 4096})

	x1, _ := mustAlloc(t, h, 416) // 432-byte block
	mustAlloc(t, h, 16)
	x2, _ := mustAlloc(t, h, 384) // 400-byte block
	mustAlloc(t, h, 16)
	x3, _ := mustAlloc(t, h, 336) // 352-byte block
	mustAlloc(t, h, 16)

	require.Equal(t, uint64(432), blockAt(t, h, x1).Size)
	require.Equal(t, uint64(400), blockAt(t, h, x2).Size)
	require.Equal(t, uint64(352), blockAt(t, h, x3).Size)

	for _, p := range []Ptr{x1, x2, x3} {
		require.NoError(t, h.Free(p))
	}
	assertInvariants(t, h)

	// 364 + 16 = 380 rounds to 384: 352 is too small, 400 is the best fit.
	p, _ := mustAlloc(t, h, 364)
	assert.Equal(t, x2, p)
	b := blockAt(t, h, p)
	assert.GreaterOrEqual(t, b.Size, uint64(364+format.Overhead))
	assertInvariants(t, h)
}

func TestAlloc_ReturnedBlockCoversRequest(t *testing.T) {
	h := newTestHeap(t, nil)
	for size := 1; size < 3000; size += 37 {
		p, b := mustAlloc(t, h, size)
		blk := blockAt(t, h, p)
		require.GreaterOrEqual(t, blk.Size, uint64(size+format.Overhead), "size=%d", size)
		require.True(t, format.IsAligned(uint64(p)))
		require.GreaterOrEqual(t, cap(b), size)
		require.LessOrEqual(t, cap(b), int(format.PayloadSize(blk.Size)))
	}
	assertInvariants(t, h)
}

func TestSplit_SkipsTinyRemainder(t *testing.T) {
	h := newTestHeap(t, nil)

	// 224 + 16 = 240; the 256-byte chunk leaves a 16-byte remainder, which
	// cannot hold a free block, so the whole chunk is handed out.
	p, _ := mustAlloc(t, h, 224)
	assert.Equal(t, uint64(256), blockAt(t, h, p).Size)
	assert.Zero(t, h.FreeBlocks())
	assertInvariants(t, h)
}

func TestSplit_SkipsRemainderFarBelowBucket(t *testing.T) {
	h := newTestHeap(t, &Options{MaxSize: 1 << 24, ChunkSize: 1 << 19})

	// The 512 KiB chunk sits in bucket 21. A 32-byte remainder (bucket 0)
	// would be far below it, so the block is not split even though the
	// remainder could hold a node.
	p, _ := mustAlloc(t, h, 1<<19-48)
	assert.Equal(t, uint64(1<<19), blockAt(t, h, p).Size)
	assert.Zero(t, h.FreeBlocks())
	assertInvariants(t, h)
}

// newLayout returns a heap holding five adjacent 64-byte allocated blocks
// followed by one free block.
func newLayout(t *testing.T) (*Heap, [5]Ptr) {
	t.Helper()
	h := newTestHeap(t, &Options{InitialSize: 1024})
	var ptrs [5]Ptr
	for i := range ptrs {
		ptrs[i], _ = mustAlloc(t, h, 40)
	}
	require.Equal(t, 1, h.FreeBlocks())
	return h, ptrs
}

func Test_CoalesceCases(t *testing.T) {
	t.Run("none", func(t *testing.T) {
		h, p := newLayout(t)
		require.NoError(t, h.Free(p[1]))
		b := blockAt(t, h, p[1])
		assert.False(t, b.Allocated)
		assert.Equal(t, uint64(64), b.Size)
		assert.Equal(t, 2, h.FreeBlocks())
		assertInvariants(t, h)
	})

	t.Run("next", func(t *testing.T) {
		h, p := newLayout(t)
		require.NoError(t, h.Free(p[2]))
		require.NoError(t, h.Free(p[1]))
		assert.Equal(t, uint64(128), blockAt(t, h, p[1]).Size)
		assert.Equal(t, uint64(1), h.Stats().CoalesceForward)
		assert.Zero(t, h.Stats().CoalesceBackward)
		assertInvariants(t, h)
	})

	t.Run("prev", func(t *testing.T) {
		h, p := newLayout(t)
		require.NoError(t, h.Free(p[1]))
		require.NoError(t, h.Free(p[2]))
		assert.Equal(t, uint64(128), blockAt(t, h, p[1]).Size)
		assert.Equal(t, uint64(1), h.Stats().CoalesceBackward)
		assert.Zero(t, h.Stats().CoalesceForward)
		assertInvariants(t, h)
	})

	t.Run("both", func(t *testing.T) {
		h, p := newLayout(t)
		require.NoError(t, h.Free(p[1]))
		require.NoError(t, h.Free(p[3]))
		require.NoError(t, h.Free(p[2]))
		b := blockAt(t, h, p[1])
		assert.Equal(t, uint64(192), b.Size)
		assert.False(t, b.Allocated)
		assert.Equal(t, 2, h.FreeBlocks())
		assertInvariants(t, h)
	})

	t.Run("tail", func(t *testing.T) {
		h, p := newLayout(t)
		require.NoError(t, h.Free(p[4]))
		assert.Equal(t, uint64(1024-4*64), blockAt(t, h, p[4]).Size)
		assert.Equal(t, 1, h.FreeBlocks())
		assertInvariants(t, h)
	})

	t.Run("all", func(t *testing.T) {
		h, p := newLayout(t)
		for _, ptr := range []Ptr{p[3], p[0], p[4], p[2], p[1]} {
			require.NoError(t, h.Free(ptr))
			assertInvariants(t, h)
		}
		assert.Equal(t, 1, h.FreeBlocks())
		assert.Equal(t, uint64(1024), h.FreeBytes())
	})
}

func TestExtend_MergesFreeTail(t *testing.T) {
	h := newTestHeap(t, nil)

	p, _ := mustAlloc(t, h, 16) // 32-byte block, 224-byte free tail
	require.Equal(t, uint64(224), h.FreeBytes())

	var grown []int
	h.onExtend = func(n int) { grown = append(grown, n) }

	// 416 needed; the 224-byte tail covers part, so only max(192, chunk) is added.
	q, _ := mustAlloc(t, h, 400)
	require.Equal(t, []int{DefaultChunkSize}, grown)
	assert.Equal(t, p+32, q, "allocation starts at the old free tail")
	assertInvariants(t, h)
}

func TestFree_BadPointers(t *testing.T) {
	h := newTestHeap(t, nil)
	p, b := mustAlloc(t, h, 100)
	fill(b, 1)

	for _, bad := range []Ptr{
		8,                 // inside the prefix
		p + 8,             // misaligned
		p + 16,            // inside a payload
		Ptr(h.HeapSize()), // at the break
		Ptr(h.HeapSize() + 1<<10),
		1 << 62,
	} {
		err := h.Free(bad)
		require.ErrorIs(t, err, ErrBadPointer, "ptr=0x%X", uint64(bad))
	}
	require.True(t, checkPattern(b, 1), "rejected frees must not touch memory")
	assertInvariants(t, h)
}

func TestFree_DoubleFree(t *testing.T) {
	h := newTestHeap(t, nil)
	a, _ := mustAlloc(t, h, 40)
	mustAlloc(t, h, 40) // keeps a from merging forward

	require.NoError(t, h.Free(a))
	err := h.Free(a)
	require.ErrorIs(t, err, ErrDoubleFree)
	assertInvariants(t, h)
}

func TestAlloc_OutOfMemory(t *testing.T) {
	h := newTestHeap(t, &Options{MaxSize: 1024})

	_, _, err := h.Alloc(2000)
	require.ErrorIs(t, err, ErrOutOfMemory)
	require.True(t, errors.Is(err, arena.ErrOutOfMemory))
	require.Equal(t, format.PrefixSize, h.HeapSize())

	mustAlloc(t, h, 900)
	_, _, err = h.Alloc(100)
	require.ErrorIs(t, err, ErrOutOfMemory)
	assertInvariants(t, h)

	_, _, err = h.Alloc(int(^uint(0) >> 1))
	require.ErrorIs(t, err, ErrOutOfMemory)
}

func TestPayload(t *testing.T) {
	h := newTestHeap(t, nil)
	p, b := mustAlloc(t, h, 40)
	fill(b, 3)

	full, err := h.Payload(p)
	require.NoError(t, err)
	assert.Len(t, full, 48)
	assert.True(t, checkPattern(full[:40], 3))

	n, err := h.UsableSize(p)
	require.NoError(t, err)
	assert.Equal(t, 48, n)

	require.NoError(t, h.Free(p))
	_, err = h.Payload(p)
	require.ErrorIs(t, err, ErrBadPointer)
}

func TestClose(t *testing.T) {
	h, err := New(&Options{MaxSize: 1 << 16})
	require.NoError(t, err)
	p, _ := mustAlloc(t, h, 40)

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	_, _, err = h.Alloc(8)
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, h.Free(p), ErrClosed)
	require.ErrorIs(t, h.Check(), ErrClosed)
}

func TestNew_InitialSizeIsNotAnExtension(t *testing.T) {
	h := newTestHeap(t, &Options{InitialSize: 1024})
	st := h.Stats()
	assert.Zero(t, st.Extensions)
	assert.Zero(t, st.ExtendedBytes)

	mustAlloc(t, h, 2000)
	st = h.Stats()
	assert.Equal(t, uint64(1), st.Extensions)
	assert.Positive(t, st.ExtendedBytes)
	assertInvariants(t, h)
}
