// Package discovery provides best-effort detection of the directory server and
// the current user for form prefill.
package discovery

import (
	"context"
	"net"
	"os"
	"strings"
	"time"

	"github.com/MyCarrier-DevOps/adcheck/internal/domain"
)

// EnvUserDNSDomain is set by Windows on domain-joined hosts.
const EnvUserDNSDomain = "USERDNSDOMAIN"

// DefaultLookupTimeout bounds the SRV query.
const DefaultLookupTimeout = 3 * time.Second

// Logger defines the logging interface for the discovery adapter.
type Logger interface {
	Debug(ctx context.Context, msg string, fields map[string]interface{})
}

// Resolver is the subset of *net.Resolver used for SRV lookups.
type Resolver interface {
	LookupSRV(ctx context.Context, service, proto, name string) (string, []*net.SRV, error)
}

// SRVDiscoverer implements domain.ServerDiscoverer with a _ldap._tcp SRV query.
type SRVDiscoverer struct {
	domain   string
	resolver Resolver
	timeout  time.Duration
	hostname func() (string, error)
	getenv   func(string) string
	logger   Logger
}

// NewSRVDiscoverer creates a discoverer for dnsDomain. When dnsDomain is empty
// the domain is taken from USERDNSDOMAIN or from the host's FQDN.
func NewSRVDiscoverer(dnsDomain string, resolver Resolver, log Logger) *SRVDiscoverer {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &SRVDiscoverer{
		domain:   dnsDomain,
		resolver: resolver,
		timeout:  DefaultLookupTimeout,
		hostname: os.Hostname,
		getenv:   os.Getenv,
		logger:   log,
	}
}

// Discover returns the first advertised LDAP server and a search base derived
// from its name. Any failure yields empty values.
func (d *SRVDiscoverer) Discover(ctx context.Context) domain.Discovery {
	name := d.searchDomain()
	if name == "" {
		d.logger.Debug(ctx, "no DNS domain for LDAP discovery", nil)
		return domain.Discovery{}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	_, addrs, err := d.resolver.LookupSRV(ctx, "ldap", "tcp", name)
	if err != nil || len(addrs) == 0 {
		fields := map[string]interface{}{"domain": name}
		if err != nil {
			fields["error"] = err.Error()
		}
		d.logger.Debug(ctx, "LDAP SRV lookup found nothing", fields)
		return domain.Discovery{}
	}

	host := strings.TrimSuffix(addrs[0].Target, ".")
	return domain.Discovery{
		Server:     host,
		SearchBase: SearchBaseFromHost(host),
	}
}

func (d *SRVDiscoverer) searchDomain() string {
	if d.domain != "" {
		return strings.Trim(d.domain, ".")
	}
	if v := d.getenv(EnvUserDNSDomain); v != "" {
		return strings.ToLower(strings.Trim(v, "."))
	}
	host, err := d.hostname()
	if err != nil {
		return ""
	}
	if _, rest, ok := strings.Cut(strings.TrimSuffix(host, "."), "."); ok {
		return rest
	}
	return ""
}

// SearchBaseFromHost drops the host label of a domain controller name and
// joins the remaining labels as DC components.
// dc01.corp.example.com becomes DC=corp,DC=example,DC=com.
func SearchBaseFromHost(host string) string {
	_, rest, ok := strings.Cut(strings.Trim(host, "."), ".")
	if !ok || rest == "" {
		return ""
	}
	labels := strings.Split(rest, ".")
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		if l == "" {
			continue
		}
		parts = append(parts, "DC="+l)
	}
	return strings.Join(parts, ",")
}
