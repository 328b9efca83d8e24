package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MyCarrier-DevOps/adcheck/internal/domain"
)

// Test mocks for dependency injection testing.

// mockLogger implements the Logger interface for testing.
type mockLogger struct{}

func (m *mockLogger) Info(_ context.Context, _ string, _ map[string]interface{})           {}
func (m *mockLogger) Debug(_ context.Context, _ string, _ map[string]interface{})          {}
func (m *mockLogger) Warn(_ context.Context, _ string, _ map[string]interface{})           {}
func (m *mockLogger) Error(_ context.Context, _ string, _ error, _ map[string]interface{}) {}

// mockDirectory implements domain.DirectoryClient for testing.
type mockDirectory struct {
	mu    sync.Mutex
	creds []domain.DirectoryCredentials
}

func (m *mockDirectory) Lookup(_ context.Context, email string, creds domain.DirectoryCredentials) domain.LookupResult {
	m.mu.Lock()
	m.creds = append(m.creds, creds)
	m.mu.Unlock()
	if strings.HasPrefix(email, "ghost") {
		return domain.NewNotFoundResult(email)
	}
	return domain.LookupResult{Email: email, Name: "Name of " + email, Status: domain.StatusFound}
}

func (m *mockDirectory) lastCreds() domain.DirectoryCredentials {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.creds) == 0 {
		return domain.DirectoryCredentials{}
	}
	return m.creds[len(m.creds)-1]
}

// mockReportWriter implements domain.ReportWriter for testing.
type mockReportWriter struct {
	err error
}

func (m *mockReportWriter) Write(results []domain.LookupResult) ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	rows := make([]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, r.Email+"="+string(r.Status))
	}
	return []byte(strings.Join(rows, ";")), nil
}

// mockOutputWriter implements OutputWriter for testing.
type mockOutputWriter struct {
	path     string
	data     []byte
	writeErr error
}

func (m *mockOutputWriter) WriteReport(path string, data []byte) error {
	m.path = path
	m.data = data
	return m.writeErr
}

// mockDiscoverer implements domain.ServerDiscoverer for testing.
type mockDiscoverer struct {
	found domain.Discovery
}

func (m *mockDiscoverer) Discover(context.Context) domain.Discovery { return m.found }

// mockMetrics implements Metrics for testing.
type mockMetrics struct {
	mu      sync.Mutex
	lookups int
}

func (m *mockMetrics) ObserveLookup(domain.LookupStatus, time.Duration) {
	m.mu.Lock()
	m.lookups++
	m.mu.Unlock()
}
func (m *mockMetrics) BatchStarted()               {}
func (m *mockMetrics) BatchFinished(time.Duration) {}
func (m *mockMetrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "adcheck_lookups_total 0\n")
	})
}

type testHarness struct {
	deps      *Dependencies
	directory *mockDirectory
	output    *mockOutputWriter
	stderr    *bytes.Buffer
	cfg       *AppConfig
}

func newHarness() *testHarness {
	h := &testHarness{
		directory: &mockDirectory{},
		output:    &mockOutputWriter{},
		stderr:    &bytes.Buffer{},
		cfg: &AppConfig{
			ListenAddr: ":5500",
			Workers:    4,
			BatchTTL:   time.Hour,
		},
	}
	h.deps = &Dependencies{
		LoggerFactory: func() Logger { return &mockLogger{} },
		ConfigLoader:  func() (*AppConfig, error) { return h.cfg, nil },
		DirectoryClientFactory: func(*AppConfig, Logger) domain.DirectoryClient {
			return h.directory
		},
		ReportWriterFactory: func(*AppConfig) domain.ReportWriter { return &mockReportWriter{} },
		OutputWriterFactory: func() OutputWriter { return h.output },
		Stderr:              h.stderr,
	}
	return h
}

func writeEmailFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "emails.txt")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func execute(t *testing.T, deps *Dependencies, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmdWithDeps(deps)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestNewRootCmd(t *testing.T) {
	SetDefaultDependencies(&Dependencies{})
	cmd := NewRootCmd()

	require.NotNil(t, cmd)
	assert.Equal(t, "adcheck", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)
	assert.True(t, cmd.SilenceUsage)

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	names := make([]string, 0)
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "serve")
	assert.Contains(t, names, "lookup")
}

func TestLookupCmd_Flags(t *testing.T) {
	cmd := NewRootCmdWithDeps(&Dependencies{})
	lookup, _, err := cmd.Find([]string{"lookup"})
	require.NoError(t, err)

	output := lookup.Flags().Lookup("output")
	require.NotNil(t, output)
	assert.Equal(t, domain.ReportFileName, output.DefValue)

	workers := lookup.Flags().Lookup("workers")
	require.NotNil(t, workers)
	assert.Equal(t, "1", workers.DefValue)

	require.Error(t, lookup.Args(lookup, []string{}))
	require.NoError(t, lookup.Args(lookup, []string{"emails.txt"}))
	require.Error(t, lookup.Args(lookup, []string{"a.txt", "b.txt"}))
}

func TestRootCmd_HelpOutput(t *testing.T) {
	out, err := execute(t, &Dependencies{}, "--help")

	require.NoError(t, err)
	assert.Contains(t, out, "adcheck")
	assert.Contains(t, out, "serve")
	assert.Contains(t, out, "lookup")
	assert.Contains(t, out, "--verbose")
}

func TestRootCmd_NilDependencies(t *testing.T) {
	for _, args := range [][]string{{"serve"}, {"lookup", "emails.txt"}} {
		t.Run(args[0], func(t *testing.T) {
			_, err := execute(t, nil, args...)

			require.Error(t, err)
			assert.Contains(t, err.Error(), "dependencies not configured")
		})
	}
}

func TestRootCmd_ConfigError(t *testing.T) {
	h := newHarness()
	h.deps.ConfigLoader = func() (*AppConfig, error) { return nil, errors.New("bad ADCHECK_WORKERS") }

	_, err := execute(t, h.deps, "serve")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration error")
	assert.Contains(t, err.Error(), "bad ADCHECK_WORKERS")
}

func TestRootCmd_VerboseSetsDebugLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "info")
	h := newHarness()
	var levelAtLoggerCreation string
	h.deps.LoggerFactory = func() Logger {
		levelAtLoggerCreation = os.Getenv("LOG_LEVEL")
		return &mockLogger{}
	}
	h.deps.Serve = func(context.Context, string, http.Handler, Logger) error { return nil }

	_, err := execute(t, h.deps, "serve", "-v")

	require.NoError(t, err)
	assert.Equal(t, "debug", levelAtLoggerCreation)
}

func TestServeCmd_WiresHandler(t *testing.T) {
	h := newHarness()
	h.cfg.Defaults = domain.DirectoryCredentials{Server: "dc-default", SearchBase: "DC=default"}
	h.deps.MetricsFactory = func() Metrics { return &mockMetrics{} }
	h.deps.IdentityFactory = func() domain.IdentityProvider { return nil }

	var gotAddr string
	var gotHandler http.Handler
	h.deps.Serve = func(_ context.Context, addr string, handler http.Handler, _ Logger) error {
		gotAddr = addr
		gotHandler = handler
		return nil
	}

	_, err := execute(t, h.deps, "serve")

	require.NoError(t, err)
	assert.Equal(t, ":5500", gotAddr)
	require.NotNil(t, gotHandler)

	health := httptest.NewRecorder()
	gotHandler.ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, health.Code)

	metrics := httptest.NewRecorder()
	gotHandler.ServeHTTP(metrics, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, metrics.Body.String(), "adcheck_lookups_total")

	index := httptest.NewRecorder()
	gotHandler.ServeHTTP(index, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, index.Body.String(), `value="dc-default"`)
}

func TestServeCmd_WithoutMetrics(t *testing.T) {
	h := newHarness()
	var gotHandler http.Handler
	h.deps.Serve = func(_ context.Context, _ string, handler http.Handler, _ Logger) error {
		gotHandler = handler
		return nil
	}

	_, err := execute(t, h.deps, "serve")

	require.NoError(t, err)
	rec := httptest.NewRecorder()
	gotHandler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeCmd_ListenFlagOverridesConfig(t *testing.T) {
	h := newHarness()
	var gotAddr string
	h.deps.Serve = func(_ context.Context, addr string, _ http.Handler, _ Logger) error {
		gotAddr = addr
		return nil
	}

	_, err := execute(t, h.deps, "serve", "--listen", "127.0.0.1:9000")

	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", gotAddr)
}

func TestServeCmd_ServerError(t *testing.T) {
	h := newHarness()
	serveErr := errors.New("address already in use")
	h.deps.Serve = func(context.Context, string, http.Handler, Logger) error { return serveErr }

	_, err := execute(t, h.deps, "serve")

	require.ErrorIs(t, err, serveErr)
}

func TestLookupCmd_WritesReport(t *testing.T) {
	h := newHarness()
	path := writeEmailFile(t, "a@x.com\n\nghost@x.com\n")

	_, err := execute(t, h.deps, "lookup", path,
		"--server", "dc01", "--search-base", "DC=corp", "--user", "svc", "--password", "pw",
		"--output", "out.xlsx")

	require.NoError(t, err)
	assert.Equal(t, "out.xlsx", h.output.path)
	assert.Equal(t, "a@x.com=found;ghost@x.com=not_found", string(h.output.data))
	assert.Equal(t, "Processing 1/2\nProcessing 2/2\nCOMPLETE\n", h.stderr.String())
	assert.Equal(t, domain.DirectoryCredentials{
		Server: "dc01", BindUser: "svc", BindPassword: "pw", SearchBase: "DC=corp",
	}, h.directory.lastCreds())
}

func TestLookupCmd_Quiet(t *testing.T) {
	h := newHarness()
	path := writeEmailFile(t, "a@x.com\n")

	_, err := execute(t, h.deps, "lookup", path, "-s", "dc01", "-b", "DC=corp", "-q")

	require.NoError(t, err)
	assert.Empty(t, h.stderr.String())
	assert.Equal(t, domain.ReportFileName, h.output.path)
}

func TestLookupCmd_FallsBackToDefaultsAndDiscovery(t *testing.T) {
	tests := []struct {
		name     string
		defaults domain.DirectoryCredentials
		args     []string
		want     domain.DirectoryCredentials
	}{
		{
			name:     "configured server uses stored credentials",
			defaults: domain.DirectoryCredentials{Server: "ldap.internal", BindUser: "svc", BindPassword: "vaulted"},
			want: domain.DirectoryCredentials{
				Server: "ldap.internal", BindUser: "svc", BindPassword: "vaulted", SearchBase: "DC=found",
			},
		},
		{
			name:     "discovered server gets no stored password",
			defaults: domain.DirectoryCredentials{BindUser: "svc", BindPassword: "vaulted", SearchBase: "DC=configured"},
			want:     domain.DirectoryCredentials{Server: "dc-found", SearchBase: "DC=configured"},
		},
		{
			name:     "custom server with blank credentials gets no stored password",
			defaults: domain.DirectoryCredentials{Server: "ldap.internal", BindUser: "svc", BindPassword: "vaulted"},
			args:     []string{"--server", "ldap://attacker.example:389"},
			want:     domain.DirectoryCredentials{Server: "ldap://attacker.example:389", SearchBase: "DC=found"},
		},
		{
			name:     "custom server with stored user gets no stored password",
			defaults: domain.DirectoryCredentials{Server: "ldap.internal", BindUser: "svc", BindPassword: "vaulted"},
			args:     []string{"-s", "dc02", "-u", "svc"},
			want:     domain.DirectoryCredentials{Server: "dc02", BindUser: "svc", SearchBase: "DC=found"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			t.Setenv(EnvBindPassword, "")
			h := newHarness()
			h.cfg.Defaults = tt.defaults
			h.deps.DiscovererFactory = func(*AppConfig, Logger) domain.ServerDiscoverer {
				return &mockDiscoverer{found: domain.Discovery{Server: "dc-found", SearchBase: "DC=found"}}
			}
			path := writeEmailFile(t, "a@x.com\n")

			// Act
			_, err := execute(t, h.deps, append([]string{"lookup", path}, tt.args...)...)

			// Assert
			require.NoError(t, err)
			assert.Equal(t, tt.want, h.directory.lastCreds())
		})
	}
}

func TestLookupCmd_PasswordFromEnvironment(t *testing.T) {
	tests := []struct {
		name string
		env  string
		args []string
		want string
	}{
		{name: "environment supplies password", env: "from-env", want: "from-env"},
		{name: "flag overrides environment", env: "from-env", args: []string{"-p", "from-flag"}, want: "from-flag"},
		{name: "neither set", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			t.Setenv(EnvBindPassword, tt.env)
			h := newHarness()
			h.cfg.Defaults = domain.DirectoryCredentials{Server: "ldap.internal", BindUser: "svc", BindPassword: "vaulted"}
			path := writeEmailFile(t, "a@x.com\n")
			args := append([]string{"lookup", path, "-s", "dc02", "-b", "DC=x", "-u", "jdoe"}, tt.args...)

			// Act
			_, err := execute(t, h.deps, args...)

			// Assert
			require.NoError(t, err)
			got := h.directory.lastCreds()
			assert.Equal(t, "jdoe", got.BindUser)
			assert.Equal(t, tt.want, got.BindPassword)
		})
	}
}

func TestLookupCmd_PasswordFlagHelpNamesEnvironment(t *testing.T) {
	cmd := NewRootCmdWithDeps(&Dependencies{})
	lookup, _, err := cmd.Find([]string{"lookup"})
	require.NoError(t, err)

	password := lookup.Flags().Lookup("password")

	require.NotNil(t, password)
	assert.Contains(t, password.Usage, EnvBindPassword)
}

func TestLookupCmd_MissingFields(t *testing.T) {
	h := newHarness()
	path := writeEmailFile(t, "a@x.com\n")

	_, err := execute(t, h.deps, "lookup", path)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMissingFields)
	assert.Nil(t, h.output.data)
}

func TestLookupCmd_MissingFile(t *testing.T) {
	h := newHarness()

	_, err := execute(t, h.deps, "lookup", filepath.Join(t.TempDir(), "nope.txt"), "-s", "dc", "-b", "DC=x")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoEmailFile)
}

func TestLookupCmd_ReportFailure(t *testing.T) {
	h := newHarness()
	h.deps.ReportWriterFactory = func(*AppConfig) domain.ReportWriter {
		return &mockReportWriter{err: errors.New("disk full")}
	}
	path := writeEmailFile(t, "a@x.com\n")

	_, err := execute(t, h.deps, "lookup", path, "-s", "dc", "-b", "DC=x")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Contains(t, h.stderr.String(), "ERROR - ")
	assert.Nil(t, h.output.data)
}

func TestLookupCmd_OutputError(t *testing.T) {
	h := newHarness()
	h.output.writeErr = errors.New("permission denied")
	path := writeEmailFile(t, "a@x.com\n")

	_, err := execute(t, h.deps, "lookup", path, "-s", "dc", "-b", "DC=x")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "output error")
}

func TestListenAndServe_ShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ListenAndServe(ctx, "127.0.0.1:0", http.NotFoundHandler(), &mockLogger{})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestListenAndServe_InvalidAddress(t *testing.T) {
	err := ListenAndServe(context.Background(), "not-an-address", http.NotFoundHandler(), &mockLogger{})

	require.Error(t, err)
}
