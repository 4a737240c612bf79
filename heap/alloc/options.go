package alloc

import (
	"log/slog"

	"github.com/joshuapare/heapkit/heap/arena"
	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/internal/logger"
)

const (
	// DefaultMaxSize is the default arena reservation.
	DefaultMaxSize = arena.DefaultLimit

	// DefaultChunkSize is the minimum arena extension on an allocation miss.
	DefaultChunkSize = 1 << 8
)

// Options configures a Heap or Pool. A nil *Options selects every default.
type Options struct {
	// MaxSize is the arena reservation in bytes. Default: DefaultMaxSize.
	MaxSize int

	// InitialSize pre-extends the arena by this many bytes, formatted as one
	// free block. Default: 0 (the first allocation extends the arena).
	InitialSize int

	// ChunkSize is the minimum extension on a miss. Default: DefaultChunkSize.
	ChunkSize int

	// Classes selects the size-class table. Default: DefaultConfig.
	Classes *SizeClassConfig

	// Realloc selects the Heap realloc policy. Workers always copy.
	Realloc ReallocPolicy

	// CheckEveryOp runs the consistency checker after every mutating call
	// and panics with *InvariantError on failure.
	CheckEveryOp bool

	// Logger receives growth and handoff events. Default: logger.L.
	Logger *slog.Logger
}

// resolve returns a copy of o with defaults filled in and sizes aligned.
func (o *Options) resolve() Options {
	var r Options
	if o != nil {
		r = *o
	}
	if r.MaxSize <= 0 {
		r.MaxSize = DefaultMaxSize
	}
	r.MaxSize = format.AlignUpInt(r.MaxSize)
	if r.ChunkSize <= 0 {
		r.ChunkSize = DefaultChunkSize
	}
	r.ChunkSize = max(format.AlignUpInt(r.ChunkSize), format.MinBlockSize)
	if r.InitialSize > 0 {
		r.InitialSize = max(format.AlignUpInt(r.InitialSize), format.MinBlockSize)
	}
	if r.Classes == nil {
		cfg := DefaultConfig
		r.Classes = &cfg
	}
	if r.Logger == nil {
		r.Logger = logger.L
	}
	return r
}
