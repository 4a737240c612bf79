package trace

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joshuapare/heapkit/heap/alloc"
	"github.com/joshuapare/heapkit/internal/logger"
)

// WorkloadResult summarizes a concurrent workload run.
type WorkloadResult struct {
	Workers  []*Result
	Pool     alloc.PoolStats
	HeapSize int
	Elapsed  time.Duration
}

// Ops returns the total number of ops replayed across workers.
func (r *WorkloadResult) Ops() int {
	n := 0
	for _, w := range r.Workers {
		if w != nil {
			n += w.Ops
		}
	}
	return n
}

// OpsPerSecond is the aggregate throughput.
func (r *WorkloadResult) OpsPerSecond() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Ops()) / r.Elapsed.Seconds()
}

// RunWorkload replays one generated trace per worker concurrently, each on
// its own Worker of pl. Worker i uses seed w.Seed+i. With opts.Check set the
// pool is checked once all workers have finished, since Pool.Check needs a
// quiescent pool. The first failing worker cancels the rest.
func RunWorkload(ctx context.Context, pl *alloc.Pool, w Workload, opts ReplayOptions) (*WorkloadResult, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	check := opts.Check
	opts.Check = false

	res := &WorkloadResult{Workers: make([]*Result, w.Workers)}
	g, gctx := errgroup.WithContext(ctx)
	start := time.Now()

	for i := range w.Workers {
		g.Go(func() error {
			tr := Generate(w, w.Seed+int64(i))
			wk, err := pl.NewWorker()
			if err != nil {
				return err
			}
			defer wk.Close()

			r, err := ReplayContext(gctx, wk, tr, opts)
			res.Workers[i] = r
			if err != nil {
				return fmt.Errorf("worker %d: %w", i, err)
			}
			logger.Debug("worker done", "worker", i, "ops", r.Ops, "elapsed", r.Elapsed)
			return nil
		})
	}

	err := g.Wait()
	res.Elapsed = time.Since(start)
	res.Pool = pl.Stats()
	res.HeapSize = pl.HeapSize()
	if err != nil {
		return res, err
	}
	if check {
		if err := pl.Check(); err != nil {
			return res, err
		}
	}
	return res, nil
}
