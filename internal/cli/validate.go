package cli

import (
	"fmt"
	"io"

	"github.com/raphaelgruber/redactomat/internal/validator"
	"github.com/spf13/cobra"
)

var (
	validateContentType string
	inspectContentType  string
)

var validateCmd = &cobra.Command{
	Use:   "validate <file.pdf>",
	Short: "Check a PDF locally without uploading it",
	Long: `Run the local checks that precede an upload: media type, size and page
count. Nothing is sent to the backend.

Examples:
  redact validate contract.pdf
  REDACT_MAX_PAGES=20 redact validate book.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.pdf>",
	Short: "Show detailed information about a PDF",
	Long: `Validate a PDF and additionally sniff its content type and parse its page
tree. The parsed page count is informational; uploads are gated by the
quick page-marker estimate only.

Examples:
  redact inspect contract.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	validateCmd.Flags().StringVar(&validateContentType, "content-type", "", "override the media type derived from the file extension")
	inspectCmd.Flags().StringVar(&inspectContentType, "content-type", "", "override the media type derived from the file extension")
}

func runValidate(cmd *cobra.Command, args []string) error {
	raw, err := validator.FromPath(args[0], validateContentType)
	if err != nil {
		return err
	}

	file, err := cfg.Limits().Validate(raw)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, defaultTheme.completedStyle().Render("✓ "+file.Name+" can be uploaded"))
	fmt.Fprintf(w, "  Size:  %s\n", formatBytes(file.Size))
	fmt.Fprintf(w, "  Pages: %d (maximum %d)\n", file.PageEstimate, cfg.Limits().MaxPages)
	return nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	raw, err := validator.FromPath(args[0], inspectContentType)
	if err != nil {
		return err
	}

	report, err := cfg.Limits().Inspect(raw)
	if err != nil {
		return err
	}
	printReport(cmd.OutOrStdout(), report)
	return nil
}

func printReport(w io.Writer, r *validator.Report) {
	t := defaultTheme

	fmt.Fprintf(w, "File: %s\n", r.Name)
	fmt.Fprintf(w, "  Declared type: %s\n", orDash(r.DeclaredType))
	fmt.Fprintf(w, "  Detected type: %s\n", orDash(r.DetectedType))
	fmt.Fprintf(w, "  Size:          %s\n", formatBytes(r.Size))
	fmt.Fprintf(w, "  SHA-256:       %s\n", orDash(r.SHA256))
	fmt.Fprintf(w, "  Page markers:  %d\n", r.PageEstimate)
	if r.ParseError != nil {
		fmt.Fprintf(w, "  Parsed pages:  %s\n", t.hintStyle().Render("unavailable ("+r.ParseError.Error()+")"))
	} else {
		fmt.Fprintf(w, "  Parsed pages:  %d\n", r.ParsedPages)
		if !r.HeuristicAgrees() {
			fmt.Fprintln(w, t.hintStyle().Render("  The quick page estimate differs from the parsed page tree."))
		}
	}

	fmt.Fprintln(w)
	if r.Validation != nil {
		fmt.Fprint(w, formatError(t, r.Validation))
		return
	}
	fmt.Fprintln(w, t.completedStyle().Render("✓ Passes upload checks"))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// formatBytes renders a size in human units.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
