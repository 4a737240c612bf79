package alloc

import "log/slog"

// Stats holds allocator counters for testing and instrumentation.
type Stats struct {
	Allocs           uint64 // Successful Alloc calls (including Realloc moves)
	Frees            uint64 // Successful Free calls (including Realloc moves)
	Reallocs         uint64 // Realloc calls on a live block
	ReallocsInPlace  uint64 // Reallocs that kept the block in place
	AllocFastPath    uint64 // Allocations served from the free lists
	AllocSlowPath    uint64 // Allocations that required arena growth
	Splits           uint64 // Blocks split on placement
	CoalesceForward  uint64 // Merges with the right neighbor
	CoalesceBackward uint64 // Merges with the left neighbor
	Extensions       uint64 // Arena growth calls
	ExtendedBytes    uint64 // Bytes added by arena growth

	// Live counters move with this allocator's own calls. A Worker that
	// frees blocks allocated by another worker goes negative; only the sum
	// across workers (PoolStats.LiveBlocks) is meaningful.
	LiveBlocks    int64 // Allocated blocks
	LiveBytes     int64 // Bytes in allocated blocks, tags included
	PeakLiveBytes int64 // High-water mark of LiveBytes
}

func (s *Stats) noteAllocated(size uint64) {
	s.LiveBlocks++
	s.LiveBytes += int64(size)
	if s.LiveBytes > s.PeakLiveBytes {
		s.PeakLiveBytes = s.LiveBytes
	}
}

func (s *Stats) noteFreed(size uint64) {
	s.LiveBlocks--
	s.LiveBytes -= int64(size)
}

// LogValue implements slog.LogValuer.
func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("allocs", s.Allocs),
		slog.Uint64("frees", s.Frees),
		slog.Uint64("reallocs", s.Reallocs),
		slog.Uint64("splits", s.Splits),
		slog.Uint64("coalesces", s.CoalesceForward+s.CoalesceBackward),
		slog.Uint64("extensions", s.Extensions),
		slog.Uint64("extended_bytes", s.ExtendedBytes),
		slog.Int64("live_bytes", s.LiveBytes),
		slog.Int64("peak_live_bytes", s.PeakLiveBytes),
	)
}

// Stats returns a snapshot of the heap's counters.
func (h *Heap) Stats() Stats {
	return h.stats
}
