package trace

import (
	"fmt"
	"math/rand"
)

// Generate builds a balanced trace from w using the given seed. Every id is
// allocated once, and every block still live after w.Ops random ops is freed
// at the end, so replaying the trace leaves nothing allocated.
func Generate(w Workload, seed int64) *Trace {
	rng := rand.New(rand.NewSource(seed))
	tr := &Trace{
		Name:   fmt.Sprintf("gen-%d", seed),
		Weight: 1,
		Ops:    make([]Op, 0, w.Ops+w.MaxLive),
	}

	var (
		live     []int
		sizes    []int
		liveSize int
		peak     int
	)
	randSize := func() int {
		return w.MinSize + rng.Intn(w.MaxSize-w.MinSize+1)
	}

	for range w.Ops {
		r := rng.Float64()
		switch {
		case len(live) > 0 && (len(live) >= w.MaxLive || r < w.FreeRatio):
			i := rng.Intn(len(live))
			id := live[i]
			live[i] = live[len(live)-1]
			live = live[:len(live)-1]
			liveSize -= sizes[id]
			tr.Ops = append(tr.Ops, Op{Kind: OpFree, ID: id})

		case len(live) > 0 && r < w.FreeRatio+w.ReallocRatio:
			id := live[rng.Intn(len(live))]
			n := randSize()
			liveSize += n - sizes[id]
			sizes[id] = n
			tr.Ops = append(tr.Ops, Op{Kind: OpRealloc, ID: id, Size: n})

		default:
			id := len(sizes)
			n := randSize()
			sizes = append(sizes, n)
			live = append(live, id)
			liveSize += n
			tr.Ops = append(tr.Ops, Op{Kind: OpAlloc, ID: id, Size: n})
		}
		peak = max(peak, liveSize)
	}
	for _, id := range live {
		tr.Ops = append(tr.Ops, Op{Kind: OpFree, ID: id})
	}

	tr.NumIDs = len(sizes)
	tr.SuggestedHeap = peak
	return tr
}
