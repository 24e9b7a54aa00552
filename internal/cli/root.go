// Package cli provides the command-line interface for redact.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/raphaelgruber/redactomat/internal/client"
	"github.com/raphaelgruber/redactomat/internal/config"
	"github.com/raphaelgruber/redactomat/internal/metrics"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1"

	// Global flags
	verbose bool

	// Global config, logger and metrics
	cfg        config.Config
	logger     = slog.New(slog.DiscardHandler)
	logCleanup = func() error { return nil }
	collector  = metrics.NewCollector()
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "redact",
	Short: "Anonymize PDF documents",
	Long: `Redact-o-mat removes personal data from PDF documents.

Pick a PDF, choose which categories of personal data to redact, and the
anonymization backend returns a redacted copy. Processing runs server-side;
the client uploads the file, follows the page progress and saves the result.`,
	Version:       Version,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip setup for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		level := cfg.LogLevel
		if verbose {
			level = slog.LevelDebug
		}
		stderrLevel := level
		if cmd == anonymizeCmd && useTUI() {
			// Keep log lines from tearing the progress view.
			stderrLevel = max(level, slog.LevelWarn)
		}

		logger, logCleanup = config.SetupLogger(cfg.LogFile, level, stderrLevel)
		slog.SetDefault(logger)
		if cfg.Source != "" {
			logger.Debug("config loaded", "file", cfg.Source)
		}
		return nil
	},
}

// newClient creates the backend client from the loaded config.
func newClient() (*client.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return client.New(client.Config{
		BaseURL: cfg.APIURL,
		Token:   cfg.Token,
		Timeout: cfg.HTTPTimeout,
		Logger:  logger,
		Metrics: collector,
	})
}

// Execute adds all child commands to the root command and sets flags appropriately.
// Errors are printed here; the caller only sets the exit code.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		renderError(os.Stderr, err)
	}

	if verbose {
		printSessionStats(os.Stderr, collector.Snapshot())
	}
	if cerr := logCleanup(); cerr != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", cerr)
	}
	return err
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(anonymizeCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(categoriesCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(aboutCmd)
	rootCmd.AddCommand(docsCmd)
}
