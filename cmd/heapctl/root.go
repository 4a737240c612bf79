package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joshuapare/heapkit/internal/logger"
)

var (
	// Global flags
	verbose  bool
	quiet    bool
	jsonOut  bool
	logLevel string

	// stdout is swapped by tests.
	stdout io.Writer = os.Stdout

	// printer groups digits in human-readable reports.
	printer = message.NewPrinter(language.English)
)

var rootCmd = &cobra.Command{
	Use:   "heapctl",
	Short: "Replay, benchmark and inspect the heapkit allocator",
	Long: `heapctl drives the heapkit allocator from the command line. It replays
malloc-lab trace files with payload verification, runs concurrent workloads
over a worker pool, generates random traces and prints the size-class table.`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogging,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output and debug logging")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().
		StringVar(&logLevel, "log-level", "", "Allocator log level on stderr (debug, info, warn, error)")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setupLogging routes allocator logs to stderr when asked to. Without
// --log-level or --verbose the HEAPKIT_LOG setting stays in effect.
func setupLogging(cmd *cobra.Command, args []string) error {
	level := slog.LevelDebug
	switch {
	case logLevel != "":
		l, err := logger.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		level = l
	case !verbose:
		return nil
	}
	return logger.Init(logger.Options{Enabled: true, Writer: os.Stderr, Level: level})
}

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...any) {
	if !quiet {
		printer.Fprintf(stdout, format, args...)
	}
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...any) {
	if verbose && !quiet {
		printer.Fprintf(stdout, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(v any) error {
	encoder := json.NewEncoder(stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
