package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/sugawarayuuta/sonnet"

	"github.com/inference-sim/particle-sim/sim/trace"
	"github.com/inference-sim/particle-sim/sim/trace/sqlite"
)

var (
	// CLI flags for the snapshot command
	snapTrace string  // Recorded trace (text, .jsonl or SQLite)
	snapStart float64 // First snapshot time
	snapEnd   float64 // Last snapshot time
	snapStep  float64 // Time between snapshots
)

// snapshotCmd prints particle positions at evenly spaced times
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Reconstruct particle positions at evenly spaced times from a trace",
	Run: func(cmd *cobra.Command, args []string) {
		if err := writeSnapshots(cmd.Context(), os.Stdout, snapTrace, snapStart, snapEnd, snapStep); err != nil {
			logrus.Fatalf("%v", err)
		}
	},
}

// readTrace loads the detector log records of a recorded trace.
func readTrace(ctx context.Context, path string) ([]trace.Record, error) {
	switch traceFormat(path) {
	case "sqlite":
		store, err := sqlite.Open(path)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		return store.Records(ctx, trace.KindLog)
	case "jsonl":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open trace: %w", err)
		}
		defer f.Close()
		return trace.ReadJSONL(f)
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open trace: %w", err)
		}
		defer f.Close()
		return trace.ParseText(f)
	}
}

// writeSnapshots writes one JSON object per requested time to w.
func writeSnapshots(ctx context.Context, w io.Writer, path string, start, end, step float64) error {
	if ctx == nil {
		ctx = context.Background()
	}
	times, err := trace.Steps(start, end, step)
	if err != nil {
		return err
	}
	records, err := readTrace(ctx, path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	for _, snap := range trace.Quantize(records, times) {
		data, err := sonnet.Marshal(snap)
		if err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
		bw.Write(data)
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func init() {
	snapshotCmd.Flags().StringVar(&snapTrace, "trace", "", "Recorded trace (text log, .jsonl or .db/.sqlite)")
	snapshotCmd.Flags().Float64Var(&snapStart, "start", 0, "First snapshot time")
	snapshotCmd.Flags().Float64Var(&snapEnd, "end", 10, "Last snapshot time")
	snapshotCmd.Flags().Float64Var(&snapStep, "step", 1, "Time between snapshots")
	_ = snapshotCmd.MarkFlagRequired("trace")
}
