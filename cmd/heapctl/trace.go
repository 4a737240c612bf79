package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/joshuapare/heapkit/heap/alloc"
	"github.com/joshuapare/heapkit/internal/logger"
	"github.com/joshuapare/heapkit/internal/trace"
)

var (
	traceHeap  heapFlags
	traceCheck bool
	traceFast  bool
)

func init() {
	cmd := newTraceCmd()
	traceHeap.register(cmd)
	cmd.Flags().StringVar(&traceHeap.policy, "policy", "copy", "Realloc policy: copy or inplace")
	cmd.Flags().BoolVar(&traceCheck, "check", false, "Run the consistency checker after every op")
	cmd.Flags().BoolVar(&traceFast, "no-verify", false, "Skip payload pattern and overlap verification")
	rootCmd.AddCommand(cmd)
}

func newTraceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace <file>...",
		Short: "Replay malloc-lab trace files",
		Long: `The trace command replays each trace file on a fresh heap and reports
peak utilization and throughput. Every payload is filled with a pattern that
is verified before it is freed, and live payloads are checked for overlap.

Example:
  heapctl trace traces/*.rep
  heapctl trace short1.rep --policy inplace --check
  heapctl trace realloc.rep --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(args)
		},
	}
	return cmd
}

type traceRow struct {
	Trace       string        `json:"trace"`
	Ops         int           `json:"ops"`
	PeakPayload int           `json:"peak_payload"`
	HeapSize    int           `json:"heap_size"`
	Utilization float64       `json:"utilization"`
	Elapsed     time.Duration `json:"elapsed_ns"`
	Stats       alloc.Stats   `json:"stats"`
}

type traceReport struct {
	RunID          string     `json:"run_id"`
	Policy         string     `json:"policy"`
	Traces         []traceRow `json:"traces"`
	AvgUtilization float64    `json:"avg_utilization"`
	OpsPerSecond   float64    `json:"ops_per_second"`
}

func runTrace(files []string) error {
	opts, err := traceHeap.options()
	if err != nil {
		return err
	}
	report := traceReport{RunID: uuid.NewString(), Policy: opts.Realloc.String()}
	logger.Debug("trace run", "run", report.RunID, "files", len(files), "policy", report.Policy)

	var (
		totalOps  int
		totalTime time.Duration
		sumUtil   float64
	)
	for _, path := range files {
		row, err := replayFile(path, opts)
		if err != nil {
			return err
		}
		report.Traces = append(report.Traces, row)
		totalOps += row.Ops
		totalTime += row.Elapsed
		sumUtil += row.Utilization
		printVerbose("%s: %d ops, %d extensions\n", row.Trace, row.Ops, row.Stats.Extensions)
	}
	report.AvgUtilization = sumUtil / float64(len(report.Traces))
	if totalTime > 0 {
		report.OpsPerSecond = float64(totalOps) / totalTime.Seconds()
	}

	if jsonOut {
		return printJSON(report)
	}

	printInfo("Run %s (realloc policy %s)\n\n", report.RunID, report.Policy)
	printInfo("%-24s %10s %12s %8s %12s\n", "TRACE", "OPS", "HEAP", "UTIL", "KOPS/S")
	for _, row := range report.Traces {
		kops := 0.0
		if row.Elapsed > 0 {
			kops = float64(row.Ops) / row.Elapsed.Seconds() / 1000
		}
		printInfo("%-24s %10d %12s %7.1f%% %12.0f\n",
			row.Trace, row.Ops, formatBytes(int64(row.HeapSize)), row.Utilization*100, kops)
	}
	printInfo("\n%-24s %10d %12s %7.1f%% %12.0f\n",
		"TOTAL", totalOps, "", report.AvgUtilization*100, report.OpsPerSecond/1000)
	return nil
}

// replayFile replays one trace on a fresh heap.
func replayFile(path string, opts *alloc.Options) (traceRow, error) {
	tr, err := trace.ParseFile(path)
	if err != nil {
		return traceRow{}, err
	}
	h, err := alloc.New(opts)
	if err != nil {
		return traceRow{}, err
	}
	defer h.Close()

	res, err := trace.Replay(h, tr, trace.ReplayOptions{Check: traceCheck, SkipVerify: traceFast})
	if err != nil {
		return traceRow{}, fmt.Errorf("%s: %w", path, err)
	}
	return traceRow{
		Trace:       tr.Name,
		Ops:         res.Ops,
		PeakPayload: res.PeakPayload,
		HeapSize:    res.HeapSize,
		Utilization: res.Utilization(),
		Elapsed:     res.Elapsed,
		Stats:       h.Stats(),
	}, nil
}
