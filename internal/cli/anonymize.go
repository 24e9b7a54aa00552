package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/raphaelgruber/redactomat/internal/apierr"
	"github.com/raphaelgruber/redactomat/internal/catalog"
	"github.com/raphaelgruber/redactomat/internal/preferences"
	"github.com/raphaelgruber/redactomat/internal/session"
	"github.com/raphaelgruber/redactomat/internal/validator"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

var (
	anonCategories  []string
	anonAll         bool
	anonNone        bool
	anonOutput      string
	anonContentType string
	anonNoTUI       bool
)

var anonymizeCmd = &cobra.Command{
	Use:   "anonymize <file.pdf>",
	Short: "Upload a PDF and save the anonymized copy",
	Long: `Upload a PDF for anonymization, follow the processing progress and save
the redacted document.

The file is checked locally first (PDF type, size, page count). Categories
default to the configured selection (REDACT_DEFAULT_SELECTION); use
--categories to pick them explicitly.

Stopping with Ctrl+C does not cancel the task on the server. Collect the
result later with 'redact status <task-id>'.

Examples:
  redact anonymize contract.pdf
  redact anonymize contract.pdf --categories emails,names -o contract-redacted.pdf
  redact anonymize scan.bin --content-type application/pdf --no-tui`,
	Args: cobra.ExactArgs(1),
	RunE: runAnonymize,
}

func init() {
	anonymizeCmd.Flags().StringSliceVarP(&anonCategories, "categories", "c", nil, "categories to redact (see 'redact categories')")
	anonymizeCmd.Flags().BoolVar(&anonAll, "all", false, "redact every category")
	anonymizeCmd.Flags().BoolVar(&anonNone, "none", false, "start from an empty selection")
	anonymizeCmd.Flags().StringVarP(&anonOutput, "output", "o", "anonymized.pdf", "where to save the anonymized PDF")
	anonymizeCmd.Flags().StringVar(&anonContentType, "content-type", "", "override the media type derived from the file extension")
	anonymizeCmd.Flags().BoolVar(&anonNoTUI, "no-tui", false, "print progress lines instead of the interactive view")
	anonymizeCmd.MarkFlagsMutuallyExclusive("all", "none")
}

// useTUI reports whether the interactive progress view should be used.
func useTUI() bool {
	return !anonNoTUI && term.IsTerminal(int(os.Stdout.Fd())) && term.IsTerminal(int(os.Stdin.Fd()))
}

// outcome is how a watched task ended.
type outcome struct {
	snap     session.Snapshot
	detached bool
	taskID   string
	savedTo  string
}

func runAnonymize(cmd *cobra.Command, args []string) error {
	raw, err := validator.FromPath(args[0], anonContentType)
	if err != nil {
		return err
	}

	cat, err := catalog.Lookup(cfg.Catalog)
	if err != nil {
		return err
	}
	policy := cfg.DefaultSelection
	switch {
	case anonAll:
		policy = preferences.SelectAll
	case anonNone:
		policy = preferences.SelectNone
	}

	api, err := newClient()
	if err != nil {
		return err
	}

	sink := newFileSink(anonOutput, logger)
	ctrl, err := session.New(api, sink, session.Options{
		PollInterval:  cfg.PollInterval,
		Limits:        cfg.Limits(),
		Catalog:       cat,
		DefaultPolicy: policy,
		Logger:        logger,
		Metrics:       collector,
	})
	if err != nil {
		return err
	}
	defer ctrl.Close()

	if err := ctrl.SelectFile(raw); err != nil {
		return err
	}
	if len(anonCategories) > 0 {
		// An explicit list replaces the default selection.
		if err := ctrl.DeselectAll(); err != nil {
			return err
		}
		if err := ctrl.Select(splitIDs(anonCategories)...); err != nil {
			return fmt.Errorf("%w (available: %s)", err, strings.Join(cat.IDs(), ", "))
		}
	}
	if !ctrl.Snapshot().CanSubmit() {
		return fmt.Errorf("%w: select at least one category with --categories or --all", session.ErrCannotSubmit)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var out outcome
	if useTUI() {
		out, err = runProgressUI(ctx, ctrl)
	} else {
		out, err = runProgressLines(ctx, ctrl, cmd.ErrOrStderr())
	}
	if err != nil {
		return err
	}
	out.savedTo = sink.Path()
	return reportOutcome(cmd.OutOrStdout(), out)
}

// runProgressLines drives one task without a terminal UI, logging progress
// changes. Interrupts detach from the task.
func runProgressLines(ctx context.Context, ctrl *session.Controller, w io.Writer) (outcome, error) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	updates := make(chan session.Snapshot, 16)
	unsubscribe := ctrl.Subscribe(func(s session.Snapshot) {
		select {
		case updates <- s:
		default:
			// Drop intermediate updates rather than stall the poll loop.
		}
	})

	var out outcome
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(updates)
		defer unsubscribe()

		if err := ctrl.Submit(gctx); err != nil {
			if errors.Is(err, session.ErrAborted) {
				out = outcome{detached: true, snap: ctrl.Snapshot()}
				return nil
			}
			if isUploadFailure(err) {
				out.snap = ctrl.Snapshot()
				return nil
			}
			return err
		}

		snap, err := ctrl.Wait(gctx)
		if err != nil {
			out = outcome{detached: true, taskID: ctrl.Stop(), snap: ctrl.Snapshot()}
			return nil
		}
		out.snap = snap
		return nil
	})

	g.Go(func() error {
		var last string
		for s := range updates {
			line := progressLine(s)
			if line != "" && line != last {
				fmt.Fprintln(w, line)
				last = line
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return outcome{}, err
	}
	return out, nil
}

// progressLine describes an active snapshot, or returns "".
func progressLine(s session.Snapshot) string {
	switch s.State {
	case session.Submitting:
		if s.File != nil {
			return fmt.Sprintf("Uploading %s...", s.File.Name)
		}
		return "Uploading..."
	case session.Polling:
		p := s.Progress()
		if !p.Known() {
			return "Starting process..."
		}
		return fmt.Sprintf("Processing page %d of %d", p.CurrentPage, p.TotalPages)
	}
	return ""
}

// reportOutcome prints the result of a watched task and returns the task
// error, if any.
func reportOutcome(w io.Writer, out outcome) error {
	t := defaultTheme

	if out.detached {
		if out.taskID == "" {
			fmt.Fprintln(w, t.hintStyle().Render("Upload cancelled."))
			return nil
		}
		msg := fmt.Sprintf("Task %s continues on the server.\nUse 'redact status %s' to collect the result.",
			out.taskID, out.taskID)
		fmt.Fprintln(w, t.hintStyle().Render(msg))
		return nil
	}

	switch out.snap.State {
	case session.Completed:
		fmt.Fprintln(w, t.completedStyle().Render("✓ Completed"))
		if r := out.snap.Result; r != nil {
			fmt.Fprintf(w, "\n  Task:     %s\n", r.TaskID)
			fmt.Fprintf(w, "  Source:   %s\n", r.SourceName)
			fmt.Fprintf(w, "  Saved to: %s\n", out.savedTo)
		}
		return nil

	case session.Failed:
		if out.snap.Err == nil {
			return errors.New("task failed with unknown error")
		}
		return out.snap.Err
	}

	return fmt.Errorf("task ended in unexpected state %s", out.snap.State)
}

// isUploadFailure reports whether Submit's error is already reflected in
// the controller's Failed state.
func isUploadFailure(err error) bool {
	var e *apierr.Error
	return errors.As(err, &e)
}

// splitIDs accepts both repeated flags and comma lists with spaces.
func splitIDs(in []string) []string {
	var out []string
	for _, s := range in {
		for _, id := range strings.Split(s, ",") {
			if id = strings.TrimSpace(id); id != "" {
				out = append(out, id)
			}
		}
	}
	return out
}
