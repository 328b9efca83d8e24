// Package cmd provides the CLI commands for adcheck.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MyCarrier-DevOps/adcheck/internal/domain"
	"github.com/MyCarrier-DevOps/adcheck/internal/usecases"
)

// Logger defines the logging interface used by the commands.
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]interface{})
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
	Error(ctx context.Context, msg string, err error, fields map[string]interface{})
}

// Metrics records lookup and batch measurements and serves them over HTTP.
type Metrics interface {
	usecases.LookupObserver
	Handler() http.Handler
}

// OutputWriter stores a finished report.
type OutputWriter interface {
	WriteReport(path string, data []byte) error
}

// ServeFunc runs the HTTP server until ctx is cancelled.
type ServeFunc func(ctx context.Context, addr string, handler http.Handler, log Logger) error

// Dependencies holds all injectable dependencies for the commands.
// This enables testing by allowing mock implementations to be injected.
type Dependencies struct {
	// LoggerFactory creates a logger instance.
	LoggerFactory func() Logger

	// ConfigLoader loads application configuration.
	ConfigLoader func() (*AppConfig, error)

	// DirectoryClientFactory creates the client that resolves emails.
	DirectoryClientFactory func(cfg *AppConfig, log Logger) domain.DirectoryClient

	// ReportWriterFactory creates the workbook encoder.
	ReportWriterFactory func(cfg *AppConfig) domain.ReportWriter

	// DiscovererFactory creates the server discoverer used for prefill. Optional.
	DiscovererFactory func(cfg *AppConfig, log Logger) domain.ServerDiscoverer

	// IdentityFactory creates the current-user provider used for prefill. Optional.
	IdentityFactory func() domain.IdentityProvider

	// MetricsFactory creates the metrics registry. Optional.
	MetricsFactory func() Metrics

	// OutputWriterFactory creates the writer for lookup reports.
	OutputWriterFactory func() OutputWriter

	// Serve runs the HTTP server. Nil uses ListenAndServe.
	Serve ServeFunc

	// Stderr is the writer for standard error (progress and warnings).
	Stderr io.Writer
}

// AppConfig holds application configuration loaded by ConfigLoader.
type AppConfig struct {
	ListenAddr     string
	Workers        int
	LookupTimeout  time.Duration
	LookupRetries  int
	LookupRate     float64
	IncludeAliases bool
	BatchTTL       time.Duration
	DNSDomain      string

	// Defaults fill directory fields the user leaves blank.
	Defaults domain.DirectoryCredentials

	LogLevel   string
	LogAppName string
}

// globalOptions are the flags shared by all subcommands.
type globalOptions struct {
	verbose bool
}

// defaultDeps holds the production dependencies.
// This is set by the production wiring in main or via SetDefaultDependencies.
var defaultDeps *Dependencies

// SetDefaultDependencies sets the default dependencies for production use.
// This should be called from main() before Execute().
func SetDefaultDependencies(deps *Dependencies) {
	defaultDeps = deps
}

// NewRootCmd creates the root command for adcheck.
func NewRootCmd() *cobra.Command {
	return NewRootCmdWithDeps(defaultDeps)
}

// NewRootCmdWithDeps creates the root command with explicit dependencies.
// This is the primary constructor that enables testing via dependency injection.
func NewRootCmdWithDeps(deps *Dependencies) *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "adcheck",
		Short: "Look up email addresses in Active Directory and export the profiles",
		Long: `adcheck resolves a list of email addresses against an Active Directory
server and produces a spreadsheet with one row per address: display name,
office, department, title and proxy address aliases.

Run "adcheck serve" for the web interface or "adcheck lookup" to process a
file from the command line.

Examples:
  # Start the web interface on :5500
  adcheck serve

  # Resolve a file and write the workbook next to it
  adcheck lookup emails.txt --server dc01 --search-base "DC=corp,DC=example,DC=com"

  # Enable verbose logging
  adcheck serve -v`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false,
		"Enable verbose/debug logging")

	rootCmd.AddCommand(newServeCmd(deps, opts))
	rootCmd.AddCommand(newLookupCmd(deps, opts))

	return rootCmd
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// setup performs the steps shared by every subcommand: dependency check,
// log level, logger and configuration.
func setup(cmd *cobra.Command, deps *Dependencies, opts *globalOptions) (context.Context, Logger, *AppConfig, error) {
	if deps == nil {
		return nil, nil, nil, errors.New("dependencies not configured")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// Set log level based on verbose flag (best-effort)
	if opts.verbose {
		if err := os.Setenv("LOG_LEVEL", "debug"); err != nil {
			writeWarningf(stderrOf(deps), "warning: could not set log level: %v\n", err)
		}
	}

	log := deps.LoggerFactory()

	cfg, err := deps.ConfigLoader()
	if err != nil {
		log.Error(ctx, "failed to load configuration", err, nil)
		return nil, nil, nil, fmt.Errorf("configuration error: %w", err)
	}

	return ctx, log, cfg, nil
}

func stderrOf(deps *Dependencies) io.Writer {
	if deps.Stderr != nil {
		return deps.Stderr
	}
	return os.Stderr
}

// writeWarningf writes a warning message to the given writer.
// Errors are ignored: there is no recovery action if stderr writes fail.
func writeWarningf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
