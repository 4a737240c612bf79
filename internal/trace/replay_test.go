package trace

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/heap/alloc"
)

func newHeap(t testing.TB, policy alloc.ReallocPolicy) *alloc.Heap {
	t.Helper()
	h, err := alloc.New(&alloc.Options{MaxSize: 8 << 20, Realloc: policy})
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func mustParse(t testing.TB, s string) *Trace {
	t.Helper()
	tr, err := Parse(strings.NewReader(s), t.Name())
	require.NoError(t, err)
	return tr
}

func TestReplay_ShortTrace(t *testing.T) {
	for _, policy := range []alloc.ReallocPolicy{alloc.ReallocCopy, alloc.ReallocInPlace} {
		t.Run(policy.String(), func(t *testing.T) {
			h := newHeap(t, policy)
			res, err := Replay(h, mustParse(t, shortTrace), ReplayOptions{Check: true})
			require.NoError(t, err)

			assert.Equal(t, 6, res.Ops)
			assert.Equal(t, 3, res.Allocs)
			assert.Equal(t, 1, res.Reallocs)
			assert.Equal(t, 2, res.Frees)
			assert.Equal(t, 500, res.PeakPayload)
			assert.Equal(t, h.HeapSize(), res.HeapSize)
			assert.Greater(t, res.Utilization(), 0.0)
			assert.LessOrEqual(t, res.Utilization(), 1.0)
		})
	}
}

func TestReplay_GeneratedIsBalanced(t *testing.T) {
	w := DefaultWorkload()
	w.Ops = 5000
	w.MaxSize = 2048
	tr := Generate(w, 3)

	h := newHeap(t, alloc.ReallocCopy)
	_, err := Replay(h, tr, ReplayOptions{})
	require.NoError(t, err)
	require.NoError(t, h.Check())

	// Everything was freed and coalesced back into one block.
	assert.Equal(t, 1, h.FreeBlocks())
}

func TestReplay_ZeroSizes(t *testing.T) {
	tr := mustParse(t, "0\n2\n5\n1\na 0 0\nr 0 24\nr 0 0\na 1 0\nf 1\n")
	h := newHeap(t, alloc.ReallocCopy)

	res, err := Replay(h, tr, ReplayOptions{Check: true})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Ops)
	assert.Equal(t, 24, res.PeakPayload)
}

func TestReplay_ZeroSizeLeavesIDReusable(t *testing.T) {
	tr := mustParse(t, "0\n2\n7\n1\na 0 8\nr 0 0\na 0 16\nf 0\na 1 0\na 1 4\nf 1\n")
	h := newHeap(t, alloc.ReallocCopy)

	res, err := Replay(h, tr, ReplayOptions{Check: true})
	require.NoError(t, err)
	assert.Equal(t, 7, res.Ops)
	assert.Equal(t, 4, res.Allocs)
	assert.Equal(t, 1, res.Reallocs)
	assert.Equal(t, 2, res.Frees)
	assert.Zero(t, h.Stats().LiveBlocks)

	// A second free of the same id is still rejected.
	tr = mustParse(t, "0\n1\n3\n1\na 0 0\nf 0\nf 0\n")
	_, err = Replay(newHeap(t, alloc.ReallocCopy), tr, ReplayOptions{})
	require.ErrorIs(t, err, ErrUnknownID)
}

// sameSlot hands every request the same payload.
type sameSlot struct{ mem []byte }

func (s *sameSlot) Alloc(size int) (alloc.Ptr, []byte, error) {
	return 64, s.mem[64 : 64+size], nil
}
func (s *sameSlot) Free(alloc.Ptr) error { return nil }
func (s *sameSlot) Realloc(p alloc.Ptr, size int) (alloc.Ptr, []byte, error) {
	return s.Alloc(size)
}
func (s *sameSlot) Payload(alloc.Ptr) ([]byte, error) { return s.mem[64:], nil }

func TestReplay_DetectsOverlap(t *testing.T) {
	tr := mustParse(t, "0\n2\n2\n1\na 0 10\na 1 10\n")
	_, err := Replay(&sameSlot{mem: make([]byte, 256)}, tr, ReplayOptions{})
	require.ErrorIs(t, err, ErrOverlap)

	var re *ReplayError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 1, re.Index)
	assert.Equal(t, 6, re.Op.Line)
	assert.Contains(t, re.Error(), "line 6")
}

// scribbler flips the first payload byte whenever the replayer reads it back.
type scribbler struct{ alloc.Allocator }

func (s scribbler) Payload(p alloc.Ptr) ([]byte, error) {
	b, err := s.Allocator.Payload(p)
	if err == nil && len(b) > 0 {
		b[0] ^= 0xFF
	}
	return b, err
}

func TestReplay_DetectsCorruption(t *testing.T) {
	tr := mustParse(t, "0\n1\n2\n1\na 0 32\nf 0\n")
	h := newHeap(t, alloc.ReallocCopy)

	res, err := Replay(scribbler{h}, tr, ReplayOptions{})
	require.ErrorIs(t, err, ErrCorrupted)
	assert.Equal(t, 1, res.Ops)

	_, err = Replay(scribbler{newHeap(t, alloc.ReallocCopy)}, tr, ReplayOptions{SkipVerify: true})
	require.NoError(t, err)
}

func TestReplay_FreeOfDeadID(t *testing.T) {
	tr := mustParse(t, "0\n1\n2\n1\na 0 8\nf 0\n")
	tr.Ops = append(tr.Ops, Op{Kind: OpFree, ID: 0})

	_, err := Replay(newHeap(t, alloc.ReallocCopy), tr, ReplayOptions{})
	require.ErrorIs(t, err, ErrUnknownID)
}

func TestReplay_CheckNeedsChecker(t *testing.T) {
	_, err := Replay(&sameSlot{mem: make([]byte, 128)}, mustParse(t, shortTrace), ReplayOptions{Check: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no consistency checker")
}

func TestReplayContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	res, err := ReplayContext(ctx, newHeap(t, alloc.ReallocCopy), mustParse(t, shortTrace), ReplayOptions{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, res.Ops)
}

func TestReplay_OutOfMemory(t *testing.T) {
	h, err := alloc.New(&alloc.Options{MaxSize: 4096})
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	_, err = Replay(h, mustParse(t, "0\n1\n1\n1\na 0 8192\n"), ReplayOptions{})
	require.ErrorIs(t, err, alloc.ErrOutOfMemory)
}

func Benchmark_Replay_Generated(b *testing.B) {
	w := DefaultWorkload()
	w.Ops = 20_000
	tr := Generate(w, 1)

	b.ResetTimer()
	for range b.N {
		h, err := alloc.New(&alloc.Options{MaxSize: 64 << 20})
		if err != nil {
			b.Fatal(err)
		}
		if _, err := Replay(h, tr, ReplayOptions{SkipVerify: true}); err != nil {
			b.Fatal(err)
		}
		_ = h.Close()
	}
}
