package cli

import (
	"fmt"
	"io"

	"github.com/raphaelgruber/redactomat/internal/metrics"
)

// printSessionStats displays the request timings collected during the run.
func printSessionStats(w io.Writer, snap metrics.Snapshot) {
	if len(snap.Operations) == 0 {
		return
	}

	fmt.Fprintf(w, "\nSession Statistics (%.1f seconds)\n", snap.UptimeSeconds)
	fmt.Fprintf(w, "═══════════════════════════════════\n")

	for _, op := range snap.Operations {
		fmt.Fprintf(w, "\n%s:\n", op.Name)
		printOpStats(w, op)
	}
}

// printOpStats displays timing statistics for an operation.
func printOpStats(w io.Writer, op metrics.OperationSnapshot) {
	fmt.Fprintf(w, "  Calls: %d, Failures: %d, Total: %dms\n", op.Count, op.Failures, op.TotalTimeMs)
	fmt.Fprintf(w, "  Time: avg %.1fms, min %dms, max %dms\n",
		op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
	if op.Bytes > 0 {
		fmt.Fprintf(w, "  Bytes: %d\n", op.Bytes)
	}
}
