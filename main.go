// Package main is the entry point for the adcheck application.
// adcheck resolves lists of email addresses against Active Directory and
// exports the matching profiles as a spreadsheet, from the browser or the CLI.
package main

import (
	"net"
	"os"

	"github.com/MyCarrier-DevOps/goLibMyCarrier/logger"

	"github.com/MyCarrier-DevOps/adcheck/cmd"
	"github.com/MyCarrier-DevOps/adcheck/internal/adapters/directory"
	"github.com/MyCarrier-DevOps/adcheck/internal/adapters/discovery"
	logadapter "github.com/MyCarrier-DevOps/adcheck/internal/adapters/logger"
	"github.com/MyCarrier-DevOps/adcheck/internal/adapters/metrics"
	"github.com/MyCarrier-DevOps/adcheck/internal/adapters/output"
	"github.com/MyCarrier-DevOps/adcheck/internal/adapters/report"
	"github.com/MyCarrier-DevOps/adcheck/internal/domain"
	"github.com/MyCarrier-DevOps/adcheck/internal/infrastructure/config"
)

func main() {
	cmd.SetDefaultDependencies(newDependencies())
	cmd.Execute()
}

// newDependencies wires the production adapters.
func newDependencies() *cmd.Dependencies {
	var adapter *logadapter.ZapAdapter
	newLogger := func() cmd.Logger {
		// Built lazily so the --verbose flag can raise LOG_LEVEL first.
		if adapter == nil {
			adapter = logadapter.NewZapAdapter(logger.NewZapLoggerFromConfig())
		}
		return adapter
	}

	return &cmd.Dependencies{
		LoggerFactory: newLogger,

		ConfigLoader: func() (*cmd.AppConfig, error) {
			cfg, err := config.Load()
			if err != nil {
				return nil, err
			}
			return toAppConfig(cfg), nil
		},

		DirectoryClientFactory: func(cfg *cmd.AppConfig, log cmd.Logger) domain.DirectoryClient {
			return directory.NewClient(directory.Options{
				IncludeAliases: cfg.IncludeAliases,
				Timeout:        cfg.LookupTimeout,
				Retries:        cfg.LookupRetries,
			}, log)
		},

		ReportWriterFactory: func(cfg *cmd.AppConfig) domain.ReportWriter {
			return report.NewXLSXWriter(cfg.IncludeAliases)
		},

		DiscovererFactory: func(cfg *cmd.AppConfig, log cmd.Logger) domain.ServerDiscoverer {
			return discovery.NewSRVDiscoverer(cfg.DNSDomain, net.DefaultResolver, log)
		},

		IdentityFactory: func() domain.IdentityProvider {
			return discovery.NewOSIdentity()
		},

		MetricsFactory: func() cmd.Metrics {
			return metrics.New()
		},

		OutputWriterFactory: func() cmd.OutputWriter {
			return output.NewWriter()
		},

		Stderr: os.Stderr,
	}
}

// toAppConfig converts the loaded configuration into the command's view of it.
func toAppConfig(cfg *config.Config) *cmd.AppConfig {
	if cfg == nil {
		return nil
	}
	return &cmd.AppConfig{
		ListenAddr:     cfg.ListenAddr,
		Workers:        cfg.Workers,
		LookupTimeout:  cfg.LookupTimeout,
		LookupRetries:  cfg.LookupRetries,
		LookupRate:     cfg.LookupRate,
		IncludeAliases: cfg.IncludeAliases,
		BatchTTL:       cfg.BatchTTL,
		DNSDomain:      cfg.DNSDomain,
		Defaults:       cfg.Defaults,
		LogLevel:       cfg.LogLevel,
		LogAppName:     cfg.LogAppName,
	}
}
