package discovery

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MyCarrier-DevOps/adcheck/internal/domain"
)

// mockLogger implements the Logger interface for testing.
type mockLogger struct {
	msgs []string
}

func (m *mockLogger) Debug(_ context.Context, msg string, _ map[string]interface{}) {
	m.msgs = append(m.msgs, msg)
}

// mockResolver implements Resolver for testing.
type mockResolver struct {
	addrs []*net.SRV
	err   error
	names []string
}

func (m *mockResolver) LookupSRV(_ context.Context, service, proto, name string) (string, []*net.SRV, error) {
	m.names = append(m.names, "_"+service+"._"+proto+"."+name)
	return "", m.addrs, m.err
}

func newTestDiscoverer(dnsDomain string, r *mockResolver, env map[string]string, host string) *SRVDiscoverer {
	d := NewSRVDiscoverer(dnsDomain, r, &mockLogger{})
	d.getenv = func(k string) string { return env[k] }
	d.hostname = func() (string, error) {
		if host == "" {
			return "", errors.New("no hostname")
		}
		return host, nil
	}
	return d
}

func TestSRVDiscoverer_Discover(t *testing.T) {
	tests := []struct {
		name      string
		dnsDomain string
		env       map[string]string
		host      string
		resolver  *mockResolver
		want      domain.Discovery
		wantQuery string
	}{
		{
			name:      "configured domain",
			dnsDomain: "corp.example.com",
			resolver:  &mockResolver{addrs: []*net.SRV{{Target: "dc01.corp.example.com.", Port: 389}}},
			want:      domain.Discovery{Server: "dc01.corp.example.com", SearchBase: "DC=corp,DC=example,DC=com"},
			wantQuery: "_ldap._tcp.corp.example.com",
		},
		{
			name:      "domain from USERDNSDOMAIN",
			env:       map[string]string{EnvUserDNSDomain: "CORP.EXAMPLE.COM"},
			resolver:  &mockResolver{addrs: []*net.SRV{{Target: "dc02.corp.example.com."}}},
			want:      domain.Discovery{Server: "dc02.corp.example.com", SearchBase: "DC=corp,DC=example,DC=com"},
			wantQuery: "_ldap._tcp.corp.example.com",
		},
		{
			name:      "domain from host FQDN",
			host:      "laptop42.emea.example.org",
			resolver:  &mockResolver{addrs: []*net.SRV{{Target: "dc9.emea.example.org."}}},
			want:      domain.Discovery{Server: "dc9.emea.example.org", SearchBase: "DC=emea,DC=example,DC=org"},
			wantQuery: "_ldap._tcp.emea.example.org",
		},
		{
			name:     "short hostname and no domain",
			host:     "laptop42",
			resolver: &mockResolver{},
			want:     domain.Discovery{},
		},
		{
			name:      "lookup error",
			dnsDomain: "corp.example.com",
			resolver:  &mockResolver{err: &net.DNSError{Err: "no such host", Name: "_ldap._tcp.corp.example.com", IsNotFound: true}},
			want:      domain.Discovery{},
			wantQuery: "_ldap._tcp.corp.example.com",
		},
		{
			name:      "no records",
			dnsDomain: "corp.example.com",
			resolver:  &mockResolver{},
			want:      domain.Discovery{},
			wantQuery: "_ldap._tcp.corp.example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDiscoverer(tt.dnsDomain, tt.resolver, tt.env, tt.host)

			got := d.Discover(context.Background())

			assert.Equal(t, tt.want, got)
			if tt.wantQuery == "" {
				assert.Empty(t, tt.resolver.names)
			} else {
				assert.Equal(t, []string{tt.wantQuery}, tt.resolver.names)
			}
		})
	}
}

func TestSearchBaseFromHost(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{host: "dc01.corp.example.com", want: "DC=corp,DC=example,DC=com"},
		{host: "dc01.corp.example.com.", want: "DC=corp,DC=example,DC=com"},
		{host: "dc01.example", want: "DC=example"},
		{host: "dc01", want: ""},
		{host: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.want, SearchBaseFromHost(tt.host))
		})
	}
}

func TestOSIdentity_CurrentUser(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		user    string
		userErr error
		want    string
	}{
		{
			name: "with domain",
			env:  map[string]string{EnvUserDomain: "CORP"},
			user: "jdoe",
			want: `CORP\jdoe`,
		},
		{
			name: "without domain",
			user: "jdoe",
			want: "jdoe",
		},
		{
			name: "already qualified",
			env:  map[string]string{EnvUserDomain: "CORP"},
			user: `CORP\jdoe`,
			want: `CORP\jdoe`,
		},
		{
			name:    "falls back to USER",
			env:     map[string]string{"USER": "fallback"},
			userErr: errors.New("unknown userid"),
			want:    "fallback",
		},
		{
			name:    "nothing known",
			env:     map[string]string{EnvUserDomain: "CORP"},
			userErr: errors.New("unknown userid"),
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &OSIdentity{
				getenv:  func(k string) string { return tt.env[k] },
				current: func() (string, error) { return tt.user, tt.userErr },
			}
			assert.Equal(t, tt.want, o.CurrentUser())
		})
	}
}

func TestNewOSIdentity(t *testing.T) {
	o := NewOSIdentity()
	assert.NotNil(t, o.getenv)
	assert.NotNil(t, o.current)
}
