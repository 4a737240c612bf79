package alloc

import (
	"fmt"
	"math"

	"github.com/joshuapare/heapkit/internal/format"
)

// SizeClassConfig defines the bucket ceilings of the segregated free lists.
// Bucket i holds blocks with Ceilings[i-1] < size <= Ceilings[i]; one extra
// catch-all bucket holds everything larger than the last ceiling.
type SizeClassConfig struct {
	// Name for this configuration (for benchmarking)
	Name string

	// Ascending block-size ceilings, multiples of 16, first >= 32.
	Ceilings []uint64
}

// Predefined configurations.
var (
	// ConfigFibonacci grows roughly like the Fibonacci sequence scaled by 16.
	// 29 ceilings + catch-all = 30 buckets.
	ConfigFibonacci = SizeClassConfig{
		Name: "Fibonacci",
		Ceilings: []uint64{
			32, 48, 80, 144, 208, 336, 544, 880, 1424, 2304,
			3728, 6032, 9760, 15792, 25552, 41344, 66896, 108240, 175136, 283376,
			458512, 741888, 1200400, 1942288, 3142688, 5084976, 8227664, 13312640, 21540304,
		},
	}

	// Default configuration (used if none specified).
	DefaultConfig = ConfigFibonacci
)

// GeometricClasses builds ceilings from minSize up to maxSize, each one
// factor times the previous and rounded up to 16 bytes.
func GeometricClasses(minSize, maxSize uint64, factor float64) SizeClassConfig {
	cfg := SizeClassConfig{Name: fmt.Sprintf("Geometric(%.2f)", factor)}
	size := format.AlignUp(max(minSize, format.MinBlockSize))
	for size <= maxSize {
		cfg.Ceilings = append(cfg.Ceilings, size)
		next := format.AlignUp(uint64(math.Ceil(float64(size) * factor)))
		if next <= size {
			next = size + format.Alignment // Ensure progress
		}
		size = next
	}
	return cfg
}

// Validate reports whether the ceilings form a usable table.
func (c SizeClassConfig) Validate() error {
	if len(c.Ceilings) == 0 {
		return fmt.Errorf("%w: %s: no ceilings", ErrBadClasses, c.Name)
	}
	if c.Ceilings[0] < format.MinBlockSize {
		return fmt.Errorf("%w: %s: first ceiling %d below minimum block size %d",
			ErrBadClasses, c.Name, c.Ceilings[0], format.MinBlockSize)
	}
	for i, ceil := range c.Ceilings {
		if !format.IsAligned(ceil) {
			return fmt.Errorf("%w: %s: ceiling %d (%d) not %d-byte aligned",
				ErrBadClasses, c.Name, i, ceil, format.Alignment)
		}
		if i > 0 && ceil <= c.Ceilings[i-1] {
			return fmt.Errorf("%w: %s: ceiling %d (%d) not above %d",
				ErrBadClasses, c.Name, i, ceil, c.Ceilings[i-1])
		}
	}
	return nil
}

// ClassInfo describes one bucket for display.
type ClassInfo struct {
	Bucket  int
	MinSize uint64 // Smallest block size held (inclusive)
	MaxSize uint64 // Largest block size held (inclusive), 0 for the catch-all
}

// Describe lists every bucket, including the catch-all.
func (c SizeClassConfig) Describe() ([]ClassInfo, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	out := make([]ClassInfo, 0, len(c.Ceilings)+1)
	lo := uint64(format.MinBlockSize)
	for i, ceil := range c.Ceilings {
		out = append(out, ClassInfo{Bucket: i, MinSize: lo, MaxSize: ceil})
		lo = ceil + format.Alignment
	}
	out = append(out, ClassInfo{Bucket: len(c.Ceilings), MinSize: lo})
	return out, nil
}

// BlockSize returns the block size Alloc would carve for a request of size
// payload bytes under this table. A zero size maps to no block.
func (c SizeClassConfig) BlockSize(size int) (uint64, error) {
	if size < 0 {
		return 0, ErrBadSize
	}
	if size == 0 {
		return 0, nil
	}
	t, err := newSizeClassTable(c)
	if err != nil {
		return 0, err
	}
	need := uint64(size) + format.Overhead
	return t.ceiling(t.bucketFor(need), need), nil
}

// sizeClassTable holds the validated bucket ceilings.
type sizeClassTable struct {
	config     SizeClassConfig
	ceilings   []uint64
	numBuckets int // len(ceilings) + catch-all
}

// newSizeClassTable validates config and copies its ceilings.
func newSizeClassTable(config SizeClassConfig) (*sizeClassTable, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	ceilings := make([]uint64, len(config.Ceilings))
	copy(ceilings, config.Ceilings)
	return &sizeClassTable{
		config:     config,
		ceilings:   ceilings,
		numBuckets: len(ceilings) + 1,
	}, nil
}

// bucketFor returns the smallest bucket whose ceiling is >= size, or the
// catch-all bucket when size exceeds every ceiling.
func (t *sizeClassTable) bucketFor(size uint64) int {
	lo, hi := 0, len(t.ceilings)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if size <= t.ceilings[mid] {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// ceiling returns the block size to carve for a request of size bytes
// (header and footer included) falling in bucket i. Rounding up to the
// bucket ceiling is skipped when it would waste more than a quarter of size.
func (t *sizeClassTable) ceiling(i int, size uint64) uint64 {
	if i >= len(t.ceilings) {
		return format.AlignUp(size)
	}
	ceil := t.ceilings[i]
	if ceil > size+size/4 {
		return format.AlignUp(size)
	}
	return ceil
}

// String returns a human-readable description of the size class table.
func (t *sizeClassTable) String() string {
	return t.config.Name
}

// NumBuckets returns the number of buckets including the catch-all.
func (t *sizeClassTable) NumBuckets() int {
	return t.numBuckets
}
