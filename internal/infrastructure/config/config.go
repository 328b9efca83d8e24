// Package config provides configuration loading for the adcheck application.
// It reads server and lookup settings from environment variables and, when
// configured, default bind credentials from HashiCorp Vault.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MyCarrier-DevOps/goLibMyCarrier/vault"

	"github.com/MyCarrier-DevOps/adcheck/internal/domain"
)

// Environment variable names.
const (
	EnvListenAddr     = "ADCHECK_LISTEN_ADDR"
	EnvWorkers        = "ADCHECK_WORKERS"
	EnvLookupTimeout  = "ADCHECK_LOOKUP_TIMEOUT"
	EnvLookupRetries  = "ADCHECK_LOOKUP_RETRIES"
	EnvLookupRate     = "ADCHECK_LOOKUP_RATE"
	EnvIncludeAliases = "ADCHECK_INCLUDE_ALIASES"
	EnvBatchTTL       = "ADCHECK_BATCH_TTL"
	EnvDNSDomain      = "ADCHECK_DNS_DOMAIN"

	// EnvLogLevel is the log level (debug, info, error).
	EnvLogLevel = "LOG_LEVEL"

	// EnvLogAppName is the application name for log context.
	EnvLogAppName = "LOG_APP_NAME"

	// EnvVaultCredentialsPath is the path in Vault KV where default bind credentials are stored.
	EnvVaultCredentialsPath = "VAULT_BIND_CREDENTIALS_PATH"

	// EnvVaultCredentialsMount is the Vault KV mount point (defaults to "secret").
	EnvVaultCredentialsMount = "VAULT_BIND_CREDENTIALS_MOUNT"
)

// Default values.
const (
	DefaultListenAddr    = ":5500"
	DefaultLookupTimeout = 30 * time.Second
	DefaultBatchTTL      = time.Hour
	DefaultLogLevel      = "info"
	DefaultLogAppName    = "adcheck"
	DefaultVaultMount    = "secret"
)

// Keys read from the Vault credentials secret.
const (
	SecretKeyUsername   = "username"
	SecretKeyPassword   = "password"
	SecretKeyServer     = "server"
	SecretKeySearchBase = "search_base"
)

// Configuration errors.
var (
	// ErrInvalidValue indicates an environment variable could not be parsed.
	ErrInvalidValue = errors.New("invalid configuration value")

	// ErrVaultClientFailed indicates failure to create or authenticate with Vault.
	ErrVaultClientFailed = errors.New("failed to create Vault client")

	// ErrVaultSecretNotFound indicates the secret was not found in Vault.
	ErrVaultSecretNotFound = errors.New("bind credentials not found in Vault")

	// ErrVaultSecretInvalid indicates the secret lacks usable credential fields.
	ErrVaultSecretInvalid = errors.New("bind credentials secret is invalid")
)

// VaultClient defines the interface for Vault operations.
// This interface allows for dependency injection and testing.
type VaultClient interface {
	// GetKVSecret retrieves a secret from Vault's KV v2 secrets engine.
	GetKVSecret(ctx context.Context, path, mount string) (map[string]interface{}, error)
}

// VaultClientFactory creates a VaultClient using AppRole authentication.
type VaultClientFactory func(ctx context.Context) (VaultClient, error)

// DefaultVaultClientFactory creates a VaultClient using goLibMyCarrier/vault with AppRole auth.
func DefaultVaultClientFactory(ctx context.Context) (VaultClient, error) {
	// Uses: VAULT_ADDRESS, VAULT_ROLE_ID, VAULT_SECRET_ID
	vaultConfig, err := vault.VaultLoadConfig()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVaultClientFailed, err)
	}

	client, err := vault.CreateVaultClient(ctx, vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVaultClientFailed, err)
	}

	return client, nil
}

// Config holds all application configuration.
type Config struct {
	// ListenAddr is the HTTP listen address of the web server.
	ListenAddr string

	// Workers is the lookup pool size.
	Workers int

	// LookupTimeout bounds dial and search of a single lookup.
	LookupTimeout time.Duration

	// LookupRetries is the number of retries on transient directory errors.
	LookupRetries int

	// LookupRate caps lookups per second. Zero means unlimited.
	LookupRate float64

	// IncludeAliases extends the filter and the report to proxy addresses.
	IncludeAliases bool

	// BatchTTL is how long an idle or finished batch is kept.
	BatchTTL time.Duration

	// DNSDomain overrides the domain used for SRV discovery.
	DNSDomain string

	// Defaults are used for form fields left blank. The password never leaves the server.
	Defaults domain.DirectoryCredentials

	LogLevel   string
	LogAppName string
}

// Load loads the application configuration from environment variables.
//
// When VAULT_BIND_CREDENTIALS_PATH is set, default bind credentials are read
// from Vault, which additionally requires VAULT_ADDRESS, VAULT_ROLE_ID and
// VAULT_SECRET_ID.
func Load() (*Config, error) {
	return LoadWithVaultClient(context.Background(), nil)
}

// LoadWithVaultClient loads configuration using the provided VaultClient factory.
// If vaultClientFactory is nil, DefaultVaultClientFactory is used.
func LoadWithVaultClient(ctx context.Context, vaultClientFactory VaultClientFactory) (*Config, error) {
	cfg := &Config{
		ListenAddr: envOr(EnvListenAddr, DefaultListenAddr),
		DNSDomain:  strings.TrimSpace(os.Getenv(EnvDNSDomain)),
		LogLevel:   envOr(EnvLogLevel, DefaultLogLevel),
		LogAppName: envOr(EnvLogAppName, DefaultLogAppName),
	}

	var err error
	if cfg.Workers, err = intEnv(EnvWorkers, domain.DefaultWorkerCount, 1); err != nil {
		return nil, err
	}
	if cfg.LookupRetries, err = intEnv(EnvLookupRetries, 0, 0); err != nil {
		return nil, err
	}
	if cfg.LookupTimeout, err = durationEnv(EnvLookupTimeout, DefaultLookupTimeout); err != nil {
		return nil, err
	}
	if cfg.BatchTTL, err = durationEnv(EnvBatchTTL, DefaultBatchTTL); err != nil {
		return nil, err
	}
	if cfg.LookupRate, err = rateEnv(EnvLookupRate); err != nil {
		return nil, err
	}
	if cfg.IncludeAliases, err = boolEnv(EnvIncludeAliases, true); err != nil {
		return nil, err
	}

	if path := os.Getenv(EnvVaultCredentialsPath); path != "" {
		cfg.Defaults, err = loadCredentialsFromVault(ctx, vaultClientFactory, path)
		if err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// loadCredentialsFromVault reads default bind credentials from Vault KV v2.
func loadCredentialsFromVault(
	ctx context.Context,
	vaultClientFactory VaultClientFactory,
	path string,
) (domain.DirectoryCredentials, error) {
	if vaultClientFactory == nil {
		vaultClientFactory = DefaultVaultClientFactory
	}

	client, err := vaultClientFactory(ctx)
	if err != nil {
		return domain.DirectoryCredentials{}, err
	}

	mount := envOr(EnvVaultCredentialsMount, DefaultVaultMount)

	secretData, err := client.GetKVSecret(ctx, path, mount)
	if err != nil {
		return domain.DirectoryCredentials{}, fmt.Errorf("%w at path %s: %w", ErrVaultSecretNotFound, path, err)
	}

	return parseCredentialsSecret(secretData)
}

// parseCredentialsSecret maps secret data onto credentials. username and
// password are required; server and search_base are optional.
func parseCredentialsSecret(secretData map[string]interface{}) (domain.DirectoryCredentials, error) {
	var creds domain.DirectoryCredentials
	var missing []string

	fields := []struct {
		key      string
		dst      *string
		required bool
	}{
		{SecretKeyUsername, &creds.BindUser, true},
		{SecretKeyPassword, &creds.BindPassword, true},
		{SecretKeyServer, &creds.Server, false},
		{SecretKeySearchBase, &creds.SearchBase, false},
	}
	for _, f := range fields {
		raw, ok := secretData[f.key]
		if !ok || raw == nil {
			if f.required {
				missing = append(missing, f.key)
			}
			continue
		}
		s, ok := raw.(string)
		if !ok {
			return domain.DirectoryCredentials{}, fmt.Errorf("%w: %s must be a string, got %T", ErrVaultSecretInvalid, f.key, raw)
		}
		s = strings.TrimSpace(s)
		if s == "" && f.required {
			missing = append(missing, f.key)
			continue
		}
		*f.dst = s
	}

	if len(missing) > 0 {
		return domain.DirectoryCredentials{}, fmt.Errorf("%w: missing %s", ErrVaultSecretInvalid, strings.Join(missing, ", "))
	}
	return creds, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def, minimum int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q: %w", ErrInvalidValue, key, v, err)
	}
	if n < minimum {
		return 0, fmt.Errorf("%w: %s must be at least %d, got %d", ErrInvalidValue, key, minimum, n)
	}
	return n, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q: %w", ErrInvalidValue, key, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: %s must be positive, got %s", ErrInvalidValue, key, d)
	}
	return d, nil
}

func rateEnv(key string) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	r, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q: %w", ErrInvalidValue, key, v, err)
	}
	if r < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative, got %g", ErrInvalidValue, key, r)
	}
	return r, nil
}

func boolEnv(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q: %w", ErrInvalidValue, key, v, err)
	}
	return b, nil
}
