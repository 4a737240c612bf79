package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuapare/heapkit/internal/trace"
)

var (
	genConfig string
	genOut    string
	genLoad   = trace.DefaultWorkload()
)

func init() {
	cmd := newGenCmd()
	addWorkloadFlags(cmd, &genLoad)
	cmd.Flags().StringVar(&genConfig, "config", "", "YAML workload file; flags override its values")
	cmd.Flags().StringVarP(&genOut, "output", "o", "", "Output file (default stdout)")
	rootCmd.AddCommand(cmd)
}

func newGenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gen",
		Short: "Generate a random balanced trace file",
		Long: `The gen command writes one random trace in malloc-lab format using the
workload's sizes, ratios and seed. The worker count is ignored.

Example:
  heapctl gen --ops 10000 --seed 3 -o random.rep
  heapctl gen --config workload.yaml > random.rep`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := resolveWorkload(cmd, genConfig, genLoad)
			if err != nil {
				return err
			}
			return runGen(w, genOut)
		},
	}
}

func runGen(w trace.Workload, path string) error {
	tr := trace.Generate(w, w.Seed)

	var out io.Writer = stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	if _, err := tr.WriteTo(out); err != nil {
		return fmt.Errorf("write trace: %w", err)
	}
	if path != "" {
		printVerbose("Wrote %d ops over %d ids to %s\n", len(tr.Ops), tr.NumIDs, path)
	}
	return nil
}
