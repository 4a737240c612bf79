package trace

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/joshuapare/heapkit/heap/alloc"
	"github.com/joshuapare/heapkit/internal/buf"
)

// ReplayOptions configures Replay.
type ReplayOptions struct {
	// Check runs the allocator's consistency checker after every op. The
	// allocator must implement Checker.
	Check bool

	// SkipVerify disables payload pattern and overlap verification, for
	// throughput measurements.
	SkipVerify bool
}

// Checker is implemented by allocators with a consistency checker.
type Checker interface {
	Check() error
}

// Sizer is implemented by allocators that report their arena extent.
type Sizer interface {
	HeapSize() int
}

// Result summarizes one replay.
type Result struct {
	Trace       string
	Ops         int
	Allocs      int
	Reallocs    int
	Frees       int
	PeakPayload int // High-water mark of live requested bytes
	HeapSize    int // Arena extent after the replay, 0 if unknown
	Elapsed     time.Duration
}

// Utilization is the peak live payload over the final arena extent.
func (r *Result) Utilization() float64 {
	if r.HeapSize == 0 {
		return 0
	}
	return float64(r.PeakPayload) / float64(r.HeapSize)
}

// OpsPerSecond is the replay throughput.
func (r *Result) OpsPerSecond() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Ops) / r.Elapsed.Seconds()
}

// ReplayError reports the operation at which a replay failed.
type ReplayError struct {
	Trace string
	Index int
	Op    Op
	Err   error
}

func (e *ReplayError) Error() string {
	where := fmt.Sprintf("op %d", e.Index)
	if e.Op.Line > 0 {
		where = fmt.Sprintf("line %d", e.Op.Line)
	}
	return fmt.Sprintf("trace %s: %s (%s id=%d size=%d): %v", e.Trace, where, e.Op.Kind, e.Op.ID, e.Op.Size, e.Err)
}

func (e *ReplayError) Unwrap() error { return e.Err }

var (
	// ErrCorrupted indicates a payload lost its pattern while live.
	ErrCorrupted = errors.New("trace: payload corrupted")

	// ErrOverlap indicates two live payloads share bytes.
	ErrOverlap = errors.New("trace: payloads overlap")

	// ErrUnknownID indicates a realloc or free of an id that is not live.
	ErrUnknownID = errors.New("trace: id not live")
)

// span is a live payload range.
type span struct {
	off, size int
	id        int
}

// replayer holds per-run state.
type replayer struct {
	a       alloc.Allocator
	opts    ReplayOptions
	ptrs    []alloc.Ptr
	sizes   []int
	live    []bool
	null    []bool // last alloc or realloc of the id returned Nil
	spans   []span // sorted by off
	payload int
	res     Result
}

// Replay runs tr against a, verifying payloads unless opts.SkipVerify is set.
// Blocks still live at the end of the trace are left allocated.
func Replay(a alloc.Allocator, tr *Trace, opts ReplayOptions) (*Result, error) {
	return ReplayContext(context.Background(), a, tr, opts)
}

// ctxCheckInterval is how many ops run between cancellation checks.
const ctxCheckInterval = 4096

// ReplayContext is Replay with cancellation, polled between ops.
func ReplayContext(ctx context.Context, a alloc.Allocator, tr *Trace, opts ReplayOptions) (*Result, error) {
	var checker Checker
	if opts.Check {
		c, ok := a.(Checker)
		if !ok {
			return nil, fmt.Errorf("trace: %T has no consistency checker", a)
		}
		checker = c
	}

	r := &replayer{
		a:     a,
		opts:  opts,
		ptrs:  make([]alloc.Ptr, tr.NumIDs),
		sizes: make([]int, tr.NumIDs),
		live:  make([]bool, tr.NumIDs),
		null:  make([]bool, tr.NumIDs),
		res:   Result{Trace: tr.Name},
	}

	start := time.Now()
	for i, op := range tr.Ops {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				r.res.Elapsed = time.Since(start)
				return &r.res, err
			}
		}
		if err := r.step(op); err != nil {
			return &r.res, &ReplayError{Trace: tr.Name, Index: i, Op: op, Err: err}
		}
		if checker != nil {
			if err := checker.Check(); err != nil {
				return &r.res, &ReplayError{Trace: tr.Name, Index: i, Op: op, Err: err}
			}
		}
		r.res.Ops++
	}
	r.res.Elapsed = time.Since(start)

	if s, ok := a.(Sizer); ok {
		r.res.HeapSize = s.HeapSize()
	}
	return &r.res, nil
}

func (r *replayer) step(op Op) error {
	switch op.Kind {
	case OpAlloc:
		if r.live[op.ID] {
			return fmt.Errorf("id %d already live", op.ID)
		}
		p, b, err := r.a.Alloc(op.Size)
		if err != nil {
			return err
		}
		r.res.Allocs++
		return r.track(op.ID, p, b, 0)

	case OpRealloc:
		old := r.ptrs[op.ID]
		oldSize := r.sizes[op.ID]
		if r.live[op.ID] && !r.opts.SkipVerify {
			if err := r.verify(op.ID); err != nil {
				return err
			}
		}
		p, b, err := r.a.Realloc(old, op.Size)
		if err != nil {
			return err
		}
		r.res.Reallocs++
		r.untrack(op.ID)
		keep := min(oldSize, op.Size)
		if !r.opts.SkipVerify && !matches(b[:keep], op.ID) {
			return fmt.Errorf("%w: realloc lost the first %d bytes", ErrCorrupted, keep)
		}
		return r.track(op.ID, p, b, keep)

	case OpFree:
		if !r.live[op.ID] {
			if !r.null[op.ID] {
				return fmt.Errorf("%w: %d", ErrUnknownID, op.ID)
			}
			// free(NULL) after a zero-size alloc or realloc.
			r.null[op.ID] = false
			if err := r.a.Free(alloc.Nil); err != nil {
				return err
			}
			r.res.Frees++
			return nil
		}
		if !r.opts.SkipVerify {
			if err := r.verify(op.ID); err != nil {
				return err
			}
		}
		if err := r.a.Free(r.ptrs[op.ID]); err != nil {
			return err
		}
		r.res.Frees++
		r.untrack(op.ID)
		return nil

	default:
		return fmt.Errorf("unknown op %q", byte(op.Kind))
	}
}

// track records a new live payload, checks it against its neighbors and
// fills it from byte filled onward. A Nil result leaves the id dead.
func (r *replayer) track(id int, p alloc.Ptr, b []byte, filled int) error {
	r.null[id] = p == alloc.Nil
	if p == alloc.Nil {
		return nil
	}
	r.ptrs[id] = p
	r.sizes[id] = len(b)
	r.live[id] = true
	r.payload += len(b)
	r.res.PeakPayload = max(r.res.PeakPayload, r.payload)

	if r.opts.SkipVerify || len(b) == 0 {
		return nil
	}
	fillPattern(b[filled:], id, filled)

	s := span{off: int(p), size: len(b), id: id}
	i, _ := slices.BinarySearchFunc(r.spans, s.off, func(e span, off int) int { return e.off - off })
	if i > 0 {
		if prev := r.spans[i-1]; buf.Overlaps(prev.off, prev.size, s.off, s.size) {
			return fmt.Errorf("%w: id %d [0x%X,+%d) and id %d [0x%X,+%d)", ErrOverlap, prev.id, prev.off, prev.size, id, s.off, s.size)
		}
	}
	if i < len(r.spans) {
		if next := r.spans[i]; buf.Overlaps(next.off, next.size, s.off, s.size) {
			return fmt.Errorf("%w: id %d [0x%X,+%d) and id %d [0x%X,+%d)", ErrOverlap, id, s.off, s.size, next.id, next.off, next.size)
		}
	}
	r.spans = slices.Insert(r.spans, i, s)
	return nil
}

func (r *replayer) untrack(id int) {
	if !r.live[id] {
		return
	}
	r.payload -= r.sizes[id]
	r.live[id] = false
	if !r.opts.SkipVerify && r.sizes[id] > 0 {
		off := int(r.ptrs[id])
		if i, ok := slices.BinarySearchFunc(r.spans, off, func(e span, off int) int { return e.off - off }); ok {
			r.spans = slices.Delete(r.spans, i, i+1)
		}
	}
	r.ptrs[id] = alloc.Nil
	r.sizes[id] = 0
}

// verify checks that id's payload still holds its pattern.
func (r *replayer) verify(id int) error {
	if r.sizes[id] == 0 {
		return nil
	}
	b, err := r.a.Payload(r.ptrs[id])
	if err != nil {
		return err
	}
	if !matches(b[:r.sizes[id]], id) {
		return fmt.Errorf("%w: id %d at 0x%X", ErrCorrupted, id, uint64(r.ptrs[id]))
	}
	return nil
}

func patternByte(id, i int) byte {
	return byte(id*131 + i*7 + 0x5a)
}

// fillPattern writes id's pattern into b, which starts at payload index from.
func fillPattern(b []byte, id, from int) {
	for i := range b {
		b[i] = patternByte(id, from+i)
	}
}

func matches(b []byte, id int) bool {
	for i := range b {
		if b[i] != patternByte(id, i) {
			return false
		}
	}
	return true
}
