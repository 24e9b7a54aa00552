package cli

import (
	"fmt"
	"io"

	"github.com/raphaelgruber/redactomat/internal/catalog"
	"github.com/raphaelgruber/redactomat/internal/preferences"
	"github.com/spf13/cobra"
)

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List the categories of personal data that can be redacted",
	Long: `List the categories of the configured catalog (REDACT_CATALOG) and which
of them are selected by default (REDACT_DEFAULT_SELECTION).

Examples:
  redact categories
  REDACT_CATALOG=extended redact categories`,
	Args: cobra.NoArgs,
	RunE: runCategories,
}

func runCategories(cmd *cobra.Command, args []string) error {
	cat, err := catalog.Lookup(cfg.Catalog)
	if err != nil {
		return err
	}
	printCategories(cmd.OutOrStdout(), preferences.New(cat, cfg.DefaultSelection))
	return nil
}

func printCategories(w io.Writer, set *preferences.Set) {
	set.Reset()
	cat := set.Catalog()

	fmt.Fprintf(w, "Catalog: %s (default selection: %s)\n\n", cat.Name(), set.Policy())
	fmt.Fprintf(w, "    %-16s %-18s %s\n", "ID", "LABEL", "DESCRIPTION")
	fmt.Fprintln(w, "------------------------------------------------------------------------")

	for _, c := range cat.Categories() {
		mark := "[ ]"
		if set.Has(c.ID) {
			mark = "[x]"
		}
		fmt.Fprintf(w, "%s %-16s %-18s %s\n", mark, c.ID, c.Label, c.Description)
	}
}
