package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/MyCarrier-DevOps/adcheck/internal/adapters/web"
	"github.com/MyCarrier-DevOps/adcheck/internal/usecases"
)

// Server timeouts. There is no write timeout: progress streams stay open
// for the whole batch.
const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 15 * time.Second
)

func newServeCmd(deps *Dependencies, opts *globalOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web interface",
		Long: `Run the web interface.

The form accepts the directory server, bind credentials, search base and a
text file of email addresses. Progress is streamed to the browser and the
finished workbook is downloaded automatically.

Fields left blank fall back to the configured defaults (Vault bind
credentials and ADCHECK_* settings), then to DNS discovery.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, deps, opts, listen)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "",
		"Listen address (overrides ADCHECK_LISTEN_ADDR)")

	return cmd
}

func runServe(cmd *cobra.Command, deps *Dependencies, opts *globalOptions, listen string) error {
	ctx, log, cfg, err := setup(cmd, deps, opts)
	if err != nil {
		return err
	}

	addr := cfg.ListenAddr
	if listen != "" {
		addr = listen
	}

	var metrics Metrics
	if deps.MetricsFactory != nil {
		metrics = deps.MetricsFactory()
	}

	client := deps.DirectoryClientFactory(cfg, log)
	poolOpts := []usecases.PoolOption{usecases.WithRateLimit(cfg.LookupRate)}
	batchOpts := []usecases.BatchOption{}
	if metrics != nil {
		poolOpts = append(poolOpts, usecases.WithObserver(metrics))
		batchOpts = append(batchOpts, usecases.WithBatchObserver(metrics))
	}
	lookupPool := usecases.NewLookupPool(client, cfg.Workers, log, poolOpts...)
	batches := usecases.NewBatchService(
		lookupPool,
		deps.ReportWriterFactory(cfg),
		usecases.NewSessionStore(cfg.BatchTTL),
		log,
		batchOpts...,
	)

	webCfg := web.Config{
		Batches:  batches,
		Defaults: cfg.Defaults,
		Logger:   log,
	}
	if deps.DiscovererFactory != nil {
		webCfg.Discoverer = deps.DiscovererFactory(cfg, log)
	}
	if deps.IdentityFactory != nil {
		webCfg.Identity = deps.IdentityFactory()
	}
	if metrics != nil {
		webCfg.Metrics = metrics.Handler()
	}

	log.Info(ctx, "starting adcheck web server", map[string]interface{}{
		"addr":            addr,
		"workers":         lookupPool.Workers(),
		"rate_limit":      cfg.LookupRate,
		"include_aliases": cfg.IncludeAliases,
		"batch_ttl":       cfg.BatchTTL.String(),
		"verbose":         opts.verbose,
	})

	serve := deps.Serve
	if serve == nil {
		serve = ListenAndServe
	}
	if err := serve(ctx, addr, web.NewHandler(webCfg).Routes(), log); err != nil {
		log.Error(ctx, "web server failed", err, map[string]interface{}{"addr": addr})
		return err
	}

	log.Info(ctx, "web server stopped", nil)
	return nil
}

// ListenAndServe serves handler on addr until ctx is cancelled, then shuts
// the server down gracefully.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, log Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info(ctx, "shutting down web server", nil)
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
			return err
		}
		return nil
	}
}
