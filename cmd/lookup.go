package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MyCarrier-DevOps/adcheck/internal/domain"
	"github.com/MyCarrier-DevOps/adcheck/internal/usecases"
)

// EnvBindPassword supplies the bind password when --password is not given.
const EnvBindPassword = "ADCHECK_BIND_PASSWORD"

// lookupOptions are the flags of the lookup command.
type lookupOptions struct {
	output     string
	server     string
	user       string
	password   string
	searchBase string
	workers    int
	quiet      bool
}

func newLookupCmd(deps *Dependencies, gopts *globalOptions) *cobra.Command {
	opts := &lookupOptions{}

	cmd := &cobra.Command{
		Use:   "lookup <emails.txt>",
		Short: "Resolve a file of email addresses and write the workbook",
		Long: `Resolve a file of email addresses (one per line) and write the workbook.

Lookups run one at a time unless --workers is raised. Progress lines are
printed to stderr. Use --output - to write the workbook to stdout.

Directory settings left unset fall back to the configured defaults, then to
DNS discovery. The stored bind credentials are only used against the
configured default server. The bind password is read from
ADCHECK_BIND_PASSWORD when --password is not given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLookup(cmd, args[0], deps, gopts, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.output, "output", "o", domain.ReportFileName, `Workbook path, or "-" for stdout`)
	f.StringVarP(&opts.server, "server", "s", "", "Directory server host or URL")
	f.StringVarP(&opts.user, "user", "u", "", `Bind user (DOMAIN\user for NTLM)`)
	f.StringVarP(&opts.password, "password", "p", "",
		"Bind password (prefer "+EnvBindPassword+"; flags are visible in ps and shell history)")
	f.StringVarP(&opts.searchBase, "search-base", "b", "", "Search base DN")
	f.IntVarP(&opts.workers, "workers", "w", 1, "Concurrent lookups")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "Do not print progress")

	return cmd
}

func runLookup(cmd *cobra.Command, path string, deps *Dependencies, gopts *globalOptions, opts *lookupOptions) error {
	ctx, log, cfg, err := setup(cmd, deps, gopts)
	if err != nil {
		return err
	}
	stderr := stderrOf(deps)

	emails, err := readEmailFile(path)
	if err != nil {
		log.Error(ctx, "failed to read email list", err, map[string]interface{}{"path": path})
		return err
	}

	password := opts.password
	if password == "" {
		password = os.Getenv(EnvBindPassword)
	}

	// The stored identity is bound to the configured server, so discovery
	// only fills what is still blank afterwards.
	creds := domain.DirectoryCredentials{
		Server:       opts.server,
		BindUser:     opts.user,
		BindPassword: password,
		SearchBase:   opts.searchBase,
	}.WithDefaults(cfg.Defaults)
	if (creds.Server == "" || creds.SearchBase == "") && deps.DiscovererFactory != nil {
		if d := deps.DiscovererFactory(cfg, log); d != nil {
			found := d.Discover(ctx)
			creds.Server = firstNonEmpty(creds.Server, found.Server)
			creds.SearchBase = firstNonEmpty(creds.SearchBase, found.SearchBase)
		}
	}

	log.Info(ctx, "starting lookup", map[string]interface{}{
		"path":        path,
		"emails":      len(emails),
		"server":      creds.Server,
		"search_base": creds.SearchBase,
		"bind_user":   creds.BindUser,
		"workers":     opts.workers,
		"output":      opts.output,
	})

	lookupPool := usecases.NewLookupPool(
		deps.DirectoryClientFactory(cfg, log),
		opts.workers,
		log,
		usecases.WithRateLimit(cfg.LookupRate),
	)
	batches := usecases.NewBatchService(
		lookupPool,
		deps.ReportWriterFactory(cfg),
		usecases.NewSessionStore(cfg.BatchTTL),
		log,
	)

	emit := func(msg string) {
		if !opts.quiet {
			writeWarningf(stderr, "%s\n", msg)
		}
	}

	data, err := batches.RunBatch(ctx, emails, creds, emit)
	if err != nil {
		log.Error(ctx, "lookup failed", err, nil)
		if errors.Is(err, domain.ErrMissingFields) {
			return fmt.Errorf("%w (set --server/--search-base or configure defaults)", err)
		}
		return err
	}

	if err := deps.OutputWriterFactory().WriteReport(opts.output, data); err != nil {
		log.Error(ctx, "failed to write report", err, map[string]interface{}{"output": opts.output})
		return fmt.Errorf("output error: %w", err)
	}

	log.Info(ctx, "lookup complete", map[string]interface{}{
		"emails": len(emails),
		"output": opts.output,
		"bytes":  len(data),
	})
	return nil
}

func readEmailFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNoEmailFile, path)
		}
		return nil, fmt.Errorf("failed to open email list: %w", err)
	}
	defer f.Close()
	return usecases.ParseEmails(f)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
