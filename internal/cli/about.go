package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/raphaelgruber/redactomat/internal/docs"
	"github.com/spf13/cobra"
)

const (
	modelName    = "mistral-large-latest"
	contactEmail = "info@stefanai.de"
)

var aboutCmd = &cobra.Command{
	Use:   "about",
	Short: "Show system information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		printAbout(cmd.OutOrStdout())
		return nil
	},
}

var docsCmd = &cobra.Command{
	Use:   "docs [page]",
	Short: "Show the privacy policy, imprint or terms of use",
	Long: `Show one of the informational pages shipped with the client.

Pages: ` + strings.Join(docs.Slugs(), ", ") + `

Examples:
  redact docs
  redact docs privacy`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: docs.Slugs(),
	RunE:      runDocs,
}

func printAbout(w io.Writer) {
	t := defaultTheme
	fmt.Fprintln(w, t.labelStyle().Render("System Information"))
	fmt.Fprintf(w, "\n  Version:       %s\n", Version)
	fmt.Fprintf(w, "  LLM:           %s\n", modelName)
	fmt.Fprintf(w, "  Maximum pages: %d\n", cfg.Limits().MaxPages)
	fmt.Fprintf(w, "  Contact:       %s\n", contactEmail)
	if cfg.APIURL != "" {
		fmt.Fprintf(w, "  Backend:       %s\n", cfg.APIURL)
	}
}

func runDocs(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()

	if len(args) == 0 {
		fmt.Fprintln(w, "Available pages:")
		for _, slug := range docs.Slugs() {
			p, err := docs.Get(slug)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "  %-10s %s\n", slug, p.Title)
		}
		return nil
	}

	page, err := docs.Get(args[0])
	if err != nil {
		return err
	}
	if err := docs.Render(w, page.Body, docs.DefaultStyles()); err != nil {
		return err
	}
	if page.Updated != "" {
		fmt.Fprintln(w, defaultTheme.hintStyle().Render("\nLast updated "+page.Updated))
	}
	return nil
}
