package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/raphaelgruber/redactomat/internal/apierr"
)

// renderError prints err; structured errors get the full detail view.
func renderError(w io.Writer, err error) {
	fmt.Fprint(w, formatError(defaultTheme, err))
}

func formatError(t Theme, err error) string {
	var e *apierr.Error
	if !errors.As(err, &e) {
		return t.errorStyle().Render("Error:") + " " + err.Error() + "\n"
	}

	title := e.Title
	if title == "" {
		title = apierr.Title(e.Kind)
	}

	var b strings.Builder
	b.WriteString(t.errorStyle().Render("✗ "+title) + "\n")
	if e.Message != "" {
		b.WriteString("  " + e.Message + "\n")
	}

	if d := e.Details; d != nil {
		if d.Filename != "" {
			fmt.Fprintf(&b, "  %s %s\n", t.labelStyle().Render("File:"), d.Filename)
		}
		if d.CurrentPages > 0 || d.MaxPages > 0 {
			fmt.Fprintf(&b, "  %s %d (maximum %d)\n", t.labelStyle().Render("Pages:"), d.CurrentPages, d.MaxPages)
		}
	}

	if s := e.Suggestion(); s != "" {
		b.WriteString("  " + t.hintStyle().Render(s) + "\n")
	}

	if d := e.Details; d != nil && d.TechnicalError != "" {
		b.WriteString(t.technicalStyle().Render(d.TechnicalError) + "\n")
	}
	return b.String()
}
