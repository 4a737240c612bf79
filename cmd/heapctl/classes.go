package main

import (
	"github.com/spf13/cobra"

	"github.com/joshuapare/heapkit/heap/alloc"
)

var (
	classesName  string
	classesSizes []int
)

func init() {
	cmd := newClassesCmd()
	cmd.Flags().StringVar(&classesName, "classes", "fibonacci", "Size classes: fibonacci or geometric")
	cmd.Flags().IntSliceVar(&classesSizes, "size", nil, "Also show the block size carved for these request sizes")
	rootCmd.AddCommand(cmd)
}

func newClassesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classes",
		Short: "Print the size-class table",
		Long: `The classes command lists every free-list bucket with the block sizes it
holds. With --size it also shows which block a request would be given.

Example:
  heapctl classes
  heapctl classes --classes geometric --json
  heapctl classes --size 1,100,4000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClasses()
		},
	}
}

type requestRow struct {
	Request   int    `json:"request"`
	BlockSize uint64 `json:"block_size"`
	Bucket    int    `json:"bucket"`
}

type classesReport struct {
	Name     string            `json:"name"`
	Buckets  []alloc.ClassInfo `json:"buckets"`
	Requests []requestRow      `json:"requests,omitempty"`
}

func runClasses() error {
	cfg, err := sizeClasses(classesName)
	if err != nil {
		return err
	}
	infos, err := cfg.Describe()
	if err != nil {
		return err
	}
	report := classesReport{Name: cfg.Name, Buckets: infos}
	for _, size := range classesSizes {
		bsize, err := cfg.BlockSize(size)
		if err != nil {
			return err
		}
		report.Requests = append(report.Requests, requestRow{Request: size, BlockSize: bsize, Bucket: bucketOf(infos, bsize)})
	}

	if jsonOut {
		return printJSON(report)
	}

	printInfo("Size classes: %s (%d buckets)\n\n", report.Name, len(infos))
	printInfo("%6s  %12s  %12s\n", "BUCKET", "MIN", "MAX")
	for _, c := range infos {
		if c.MaxSize == 0 {
			printInfo("%6d  %12d  %12s\n", c.Bucket, c.MinSize, "-")
			continue
		}
		printInfo("%6d  %12d  %12d\n", c.Bucket, c.MinSize, c.MaxSize)
	}
	if len(report.Requests) > 0 {
		printInfo("\n%10s  %12s  %6s\n", "REQUEST", "BLOCK", "BUCKET")
		for _, r := range report.Requests {
			printInfo("%10d  %12d  %6d\n", r.Request, r.BlockSize, r.Bucket)
		}
	}
	return nil
}

// bucketOf returns the bucket holding blocks of size, or -1 for size 0.
func bucketOf(infos []alloc.ClassInfo, size uint64) int {
	if size == 0 {
		return -1
	}
	for _, c := range infos {
		if size >= c.MinSize && (c.MaxSize == 0 || size <= c.MaxSize) {
			return c.Bucket
		}
	}
	return len(infos) - 1
}
