package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	"github.com/joshuapare/heapkit/heap/alloc"
	"github.com/joshuapare/heapkit/internal/logger"
	"github.com/joshuapare/heapkit/internal/trace"
)

var (
	benchHeap    heapFlags
	benchConfig  string
	benchCheck   bool
	benchCPUProf bool
	benchMemProf bool
	benchProfDir string
	benchLoad    = trace.DefaultWorkload()
)

func init() {
	cmd := newBenchCmd()
	benchHeap.register(cmd)
	addWorkloadFlags(cmd, &benchLoad)
	cmd.Flags().StringVar(&benchConfig, "config", "", "YAML workload file; flags override its values")
	cmd.Flags().BoolVar(&benchCheck, "check", false, "Check the pool after the run")
	cmd.Flags().BoolVar(&benchCPUProf, "cpuprofile", false, "Write a CPU profile")
	cmd.Flags().BoolVar(&benchMemProf, "memprofile", false, "Write a heap profile")
	cmd.Flags().StringVar(&benchProfDir, "profile-dir", ".", "Directory for profile output")
	rootCmd.AddCommand(cmd)
}

// addWorkloadFlags binds the workload fields to flags on cmd.
func addWorkloadFlags(cmd *cobra.Command, w *trace.Workload) {
	cmd.Flags().IntVar(&w.Workers, "workers", w.Workers, "Concurrent workers")
	cmd.Flags().IntVar(&w.Ops, "ops", w.Ops, "Random ops per worker")
	cmd.Flags().IntVar(&w.MinSize, "min-size", w.MinSize, "Smallest request in bytes")
	cmd.Flags().IntVar(&w.MaxSize, "max-size", w.MaxSize, "Largest request in bytes")
	cmd.Flags().Float64Var(&w.FreeRatio, "free-ratio", w.FreeRatio, "Share of ops that free")
	cmd.Flags().Float64Var(&w.ReallocRatio, "realloc-ratio", w.ReallocRatio, "Share of ops that realloc")
	cmd.Flags().Int64Var(&w.Seed, "seed", w.Seed, "Base random seed")
	cmd.Flags().IntVar(&w.MaxLive, "max-live", w.MaxLive, "Live blocks per worker before frees are forced")
}

// resolveWorkload loads path, if set, and reapplies flags the user set
// explicitly on top of the file values.
func resolveWorkload(cmd *cobra.Command, path string, flags trace.Workload) (trace.Workload, error) {
	if path == "" {
		return flags, flags.Validate()
	}
	w, err := trace.LoadWorkload(path)
	if err != nil {
		return w, err
	}
	set := cmd.Flags().Changed
	if set("workers") {
		w.Workers = flags.Workers
	}
	if set("ops") {
		w.Ops = flags.Ops
	}
	if set("min-size") {
		w.MinSize = flags.MinSize
	}
	if set("max-size") {
		w.MaxSize = flags.MaxSize
	}
	if set("free-ratio") {
		w.FreeRatio = flags.FreeRatio
	}
	if set("realloc-ratio") {
		w.ReallocRatio = flags.ReallocRatio
	}
	if set("seed") {
		w.Seed = flags.Seed
	}
	if set("max-live") {
		w.MaxLive = flags.MaxLive
	}
	return w, w.Validate()
}

func newBenchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run a concurrent workload over a worker pool",
		Long: `The bench command generates one random balanced trace per worker and
replays them concurrently, each on its own pool worker, with payload
verification. It reports aggregate throughput and arena growth.

Example:
  heapctl bench --workers 8 --ops 200000
  heapctl bench --config workload.yaml --seed 7
  heapctl bench --cpuprofile --profile-dir /tmp`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := resolveWorkload(cmd, benchConfig, benchLoad)
			if err != nil {
				return err
			}
			return runBench(cmd.Context(), w)
		},
	}
	return cmd
}

type benchReport struct {
	RunID        string          `json:"run_id"`
	Workload     trace.Workload  `json:"workload"`
	Ops          int             `json:"ops"`
	Elapsed      time.Duration   `json:"elapsed_ns"`
	OpsPerSecond float64         `json:"ops_per_second"`
	HeapSize     int             `json:"heap_size"`
	OrphanBytes  uint64          `json:"orphan_bytes"`
	Pool         alloc.PoolStats `json:"pool"`
}

// startProfile starts the requested profiler; the CPU profile wins if both
// are asked for.
func startProfile() interface{ Stop() } {
	switch {
	case benchCPUProf:
		logger.Info("cpu profiling", "dir", benchProfDir)
		return profile.Start(profile.CPUProfile, profile.ProfilePath(benchProfDir), profile.NoShutdownHook, profile.Quiet)
	case benchMemProf:
		logger.Info("memory profiling", "dir", benchProfDir)
		return profile.Start(profile.MemProfile, profile.ProfilePath(benchProfDir), profile.NoShutdownHook, profile.Quiet)
	default:
		return nil
	}
}

func runBench(ctx context.Context, w trace.Workload) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	opts, err := benchHeap.options()
	if err != nil {
		return err
	}
	pl, err := alloc.NewPool(opts)
	if err != nil {
		return err
	}
	defer pl.Close()

	report := benchReport{RunID: uuid.NewString(), Workload: w}
	printVerbose("Run %s: %d workers x %d ops, sizes %d..%d\n", report.RunID, w.Workers, w.Ops, w.MinSize, w.MaxSize)

	prof := startProfile()
	res, err := trace.RunWorkload(ctx, pl, w, trace.ReplayOptions{Check: benchCheck})
	if prof != nil {
		prof.Stop()
	}
	if err != nil {
		return err
	}

	report.Ops = res.Ops()
	report.Elapsed = res.Elapsed
	report.OpsPerSecond = res.OpsPerSecond()
	report.HeapSize = res.HeapSize
	report.OrphanBytes = pl.OrphanBytes()
	report.Pool = res.Pool

	if jsonOut {
		return printJSON(report)
	}
	printInfo("Run %s\n", report.RunID)
	printInfo("  Workers:     %d\n", w.Workers)
	printInfo("  Ops:         %d\n", report.Ops)
	printInfo("  Elapsed:     %s\n", report.Elapsed.Round(time.Microsecond))
	printInfo("  Throughput:  %.0f ops/s\n", report.OpsPerSecond)
	printInfo("  Heap:        %s\n", formatBytes(int64(report.HeapSize)))
	printInfo("  Refills:     %d (%d from orphans)\n", report.Pool.Refills, report.Pool.Adopted)
	printInfo("  Extensions:  %d (%s)\n", report.Pool.Extensions, formatBytes(int64(report.Pool.ExtendedBytes)))
	return nil
}
