package trace

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Workload describes a random allocation workload. It is loaded from YAML
// by LoadWorkload and turned into traces by Generate.
type Workload struct {
	Workers      int     `yaml:"workers" json:"workers"`             // Concurrent workers for RunWorkload
	Ops          int     `yaml:"ops" json:"ops"`                     // Random ops per worker, before the final frees
	MinSize      int     `yaml:"min_size" json:"min_size"`           // Smallest request in bytes
	MaxSize      int     `yaml:"max_size" json:"max_size"`           // Largest request in bytes
	FreeRatio    float64 `yaml:"free_ratio" json:"free_ratio"`       // Share of ops that free a live block
	ReallocRatio float64 `yaml:"realloc_ratio" json:"realloc_ratio"` // Share of ops that resize a live block
	Seed         int64   `yaml:"seed" json:"seed"`                   // Base seed; worker i uses Seed+i
	MaxLive      int     `yaml:"max_live" json:"max_live"`           // Live blocks per worker before frees are forced
}

// DefaultWorkload returns a mixed small-object workload.
func DefaultWorkload() Workload {
	return Workload{
		Workers:      4,
		Ops:          100_000,
		MinSize:      8,
		MaxSize:      4096,
		FreeRatio:    0.4,
		ReallocRatio: 0.1,
		Seed:         1,
		MaxLive:      1024,
	}
}

// ErrBadWorkload is wrapped by Validate failures.
var ErrBadWorkload = errors.New("trace: invalid workload")

// Validate checks that w describes a runnable workload.
func (w Workload) Validate() error {
	switch {
	case w.Workers < 1:
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrBadWorkload, w.Workers)
	case w.Ops < 0:
		return fmt.Errorf("%w: ops must not be negative, got %d", ErrBadWorkload, w.Ops)
	case w.MinSize < 1 || w.MaxSize < w.MinSize:
		return fmt.Errorf("%w: need 1 <= min_size <= max_size, got %d..%d", ErrBadWorkload, w.MinSize, w.MaxSize)
	case w.FreeRatio < 0 || w.ReallocRatio < 0 || w.FreeRatio+w.ReallocRatio > 1:
		return fmt.Errorf("%w: free_ratio and realloc_ratio must be non-negative and sum to at most 1", ErrBadWorkload)
	case w.MaxLive < 1:
		return fmt.Errorf("%w: max_live must be at least 1, got %d", ErrBadWorkload, w.MaxLive)
	}
	return nil
}

// LoadWorkload reads a YAML workload. Fields missing from the file keep
// their DefaultWorkload values; unknown fields are rejected.
func LoadWorkload(path string) (Workload, error) {
	w := DefaultWorkload()
	f, err := os.Open(path)
	if err != nil {
		return w, err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&w); err != nil {
		return w, fmt.Errorf("workload %s: %w", path, err)
	}
	if err := w.Validate(); err != nil {
		return w, fmt.Errorf("workload %s: %w", path, err)
	}
	return w, nil
}
