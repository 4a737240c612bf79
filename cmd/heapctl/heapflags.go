package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joshuapare/heapkit/heap/alloc"
)

// heapFlags are the allocator options shared by trace and bench.
type heapFlags struct {
	maxSize int
	initial int
	chunk   int
	classes string
	policy  string
}

func (f *heapFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.maxSize, "max", alloc.DefaultMaxSize, "Arena reservation in bytes")
	cmd.Flags().IntVar(&f.initial, "initial", 0, "Initial free extent in bytes")
	cmd.Flags().IntVar(&f.chunk, "chunk", alloc.DefaultChunkSize, "Minimum arena extension in bytes")
	cmd.Flags().StringVar(&f.classes, "classes", "fibonacci", "Size classes: fibonacci or geometric")
}

// sizeClasses resolves a --classes value.
func sizeClasses(name string) (alloc.SizeClassConfig, error) {
	switch strings.ToLower(name) {
	case "", "fibonacci", "fib":
		return alloc.ConfigFibonacci, nil
	case "geometric", "geo":
		return alloc.GeometricClasses(32, 16<<20, 1.5), nil
	default:
		return alloc.SizeClassConfig{}, fmt.Errorf("unknown size classes %q (want fibonacci or geometric)", name)
	}
}

func (f *heapFlags) options() (*alloc.Options, error) {
	classes, err := sizeClasses(f.classes)
	if err != nil {
		return nil, err
	}
	policy, err := alloc.ParseReallocPolicy(f.policy)
	if err != nil {
		return nil, err
	}
	return &alloc.Options{
		MaxSize:     f.maxSize,
		InitialSize: f.initial,
		ChunkSize:   f.chunk,
		Classes:     &classes,
		Realloc:     policy,
	}, nil
}
