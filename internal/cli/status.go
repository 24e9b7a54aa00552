package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/raphaelgruber/redactomat/internal/apierr"
	"github.com/raphaelgruber/redactomat/internal/client"
	"github.com/spf13/cobra"
)

var statusOutput string

var statusCmd = &cobra.Command{
	Use:   "status <task-id>",
	Short: "Check a task once and save its document when ready",
	Long: `Query the status of a task started earlier, for example one left running
with Ctrl+C. When the document is ready it is saved to --output.

Examples:
  redact status 3f2a9c
  redact status 3f2a9c -o ~/Documents/`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", client.DefaultDocumentName, "where to save the anonymized PDF")
}

func runStatus(cmd *cobra.Command, args []string) error {
	api, err := newClient()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	res, err := api.Status(ctx, args[0])
	if err != nil {
		return err
	}
	return printStatus(cmd.OutOrStdout(), args[0], res, statusOutput)
}

// printStatus reports a one-shot status result, saving a returned document
// to output.
func printStatus(w io.Writer, taskID string, res *client.StatusResult, output string) error {
	t := defaultTheme

	if doc := res.Document; doc != nil {
		path := output
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			path = filepath.Join(path, filepath.Base(doc.Name))
		}
		if err := writeFileAtomic(path, doc.Data); err != nil {
			return err
		}
		fmt.Fprintln(w, t.completedStyle().Render("✓ Completed"))
		fmt.Fprintf(w, "\n  Task:     %s\n", taskID)
		fmt.Fprintf(w, "  Saved to: %s (%s)\n", path, formatBytes(int64(len(doc.Data))))
		return nil
	}

	st := res.Status
	if st == nil {
		return client.EmptyStatus()
	}

	switch st.Status {
	case client.StatusProcessing:
		fmt.Fprintf(w, "Task: %s\n", taskID)
		fmt.Fprintf(w, "  Status: %s\n", t.statusStyle().Render(st.Status))
		if st.CurrentPage != nil && st.TotalPages != nil {
			fmt.Fprintf(w, "  Progress: page %d of %d\n", *st.CurrentPage, *st.TotalPages)
		} else {
			fmt.Fprintln(w, "  Progress: starting")
		}
		return nil

	case client.StatusCompleted:
		fmt.Fprintf(w, "Task: %s\n", taskID)
		fmt.Fprintln(w, "  Status: completed, document not yet available. Try again shortly.")
		return nil

	case client.StatusFailed:
		msg := st.Error
		if msg == "" {
			msg = "Processing failed"
		}
		return apierr.New(apierr.ProcessingFailed, msg)
	}

	return client.UnknownStatus(st.Status)
}
