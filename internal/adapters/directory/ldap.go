// Package directory provides the LDAP adapter for resolving emails against Active Directory.
// This package implements the domain.DirectoryClient interface using go-ldap/v3.
package directory

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-ldap/ldap/v3"

	"github.com/MyCarrier-DevOps/adcheck/internal/domain"
)

// Directory attribute names.
const (
	AttrDisplayName    = "displayName"
	AttrOffice         = "physicalDeliveryOfficeName"
	AttrDepartment     = "department"
	AttrTitle          = "title"
	AttrProxyAddresses = "proxyAddresses"
	AttrMail           = "mail"
)

// DefaultTimeout bounds dialing and each search when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// Logger defines the logging interface for the directory adapter.
type Logger interface {
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
}

// Conn is the subset of *ldap.Conn used by the client.
type Conn interface {
	Bind(username, password string) error
	NTLMBind(domain, username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Close() error
}

// DialFunc opens a connection to the directory at url.
type DialFunc func(ctx context.Context, url string, timeout time.Duration) (Conn, error)

// Options configures a Client.
type Options struct {
	// IncludeAliases matches proxyAddresses as well as mail and returns aliases.
	IncludeAliases bool

	// Timeout bounds dialing and each search. Zero uses DefaultTimeout.
	Timeout time.Duration

	// Retries is the number of extra attempts after a transient network error.
	Retries int

	// Dial overrides how connections are opened. Nil uses DialLDAP.
	Dial DialFunc
}

// Client implements domain.DirectoryClient. It opens one connection per lookup.
type Client struct {
	includeAliases bool
	timeout        time.Duration
	retries        int
	dial           DialFunc
	logger         Logger
}

// NewClient creates a Client with the given options.
func NewClient(opts Options, log Logger) *Client {
	c := &Client{
		includeAliases: opts.IncludeAliases,
		timeout:        opts.Timeout,
		retries:        opts.Retries,
		dial:           opts.Dial,
		logger:         log,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.retries < 0 {
		c.retries = 0
	}
	if c.dial == nil {
		c.dial = DialLDAP
	}
	return c
}

// DialLDAP connects to url using go-ldap with a dial timeout and a per-request timeout.
func DialLDAP(_ context.Context, url string, timeout time.Duration) (Conn, error) {
	conn, err := ldap.DialURL(url, ldap.DialWithDialer(&net.Dialer{Timeout: timeout}))
	if err != nil {
		return nil, err
	}
	conn.SetTimeout(timeout)
	return conn, nil
}

// Attributes returns the attribute set requested for each lookup.
func (c *Client) Attributes() []string {
	attrs := []string{AttrDisplayName, AttrOffice, AttrDepartment, AttrTitle}
	if c.includeAliases {
		attrs = append(attrs, AttrProxyAddresses)
	}
	return attrs
}

// Filter returns the search filter for email. The address is inserted verbatim.
func (c *Client) Filter(email string) string {
	if c.includeAliases {
		return fmt.Sprintf("(|(%s=%s)(%s=smtp:%s))", AttrMail, email, AttrProxyAddresses, email)
	}
	return fmt.Sprintf("(%s=%s)", AttrMail, email)
}

// Lookup resolves email against the directory in creds. Errors are reported
// through an error result and never returned.
func (c *Client) Lookup(ctx context.Context, email string, creds domain.DirectoryCredentials) domain.LookupResult {
	entry, err := c.search(ctx, email, creds)
	if err != nil {
		return domain.NewErrorResult(email, err)
	}
	if entry == nil {
		return domain.NewNotFoundResult(email)
	}
	return c.toResult(email, entry)
}

func (c *Client) search(ctx context.Context, email string, creds domain.DirectoryCredentials) (*ldap.Entry, error) {
	url, err := ServerURL(creds.Server)
	if err != nil {
		return nil, err
	}

	var policy backoff.BackOff = backoff.NewExponentialBackOff()
	policy = backoff.WithMaxRetries(policy, uint64(c.retries))
	policy = backoff.WithContext(policy, ctx)

	attempt := 0
	return backoff.RetryWithData(func() (*ldap.Entry, error) {
		attempt++
		entry, err := c.searchOnce(ctx, url, email, creds)
		if err == nil {
			return entry, nil
		}
		if !isTransient(err) {
			return nil, backoff.Permanent(err)
		}
		c.logger.Debug(ctx, "transient directory error", map[string]interface{}{
			"email":   email,
			"server":  url,
			"attempt": attempt,
			"error":   err.Error(),
		})
		return nil, err
	}, policy)
}

func (c *Client) searchOnce(
	ctx context.Context,
	url string,
	email string,
	creds domain.DirectoryCredentials,
) (*ldap.Entry, error) {
	conn, err := c.dial(ctx, url, c.timeout)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			c.logger.Warn(ctx, "failed to close directory connection", map[string]interface{}{
				"server": url,
				"error":  closeErr.Error(),
			})
		}
	}()

	if err := bind(conn, creds.BindUser, creds.BindPassword); err != nil {
		return nil, err
	}

	req := ldap.NewSearchRequest(
		creds.SearchBase,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0,
		int(c.timeout.Seconds()),
		false,
		c.Filter(email),
		c.Attributes(),
		nil,
	)
	res, err := conn.Search(req)
	if err != nil {
		return nil, err
	}
	if len(res.Entries) == 0 {
		return nil, nil
	}
	return res.Entries[0], nil
}

// bind authenticates with NTLM for DOMAIN\user principals and simple bind otherwise.
func bind(conn Conn, user, password string) error {
	if domainName, name, ok := strings.Cut(user, `\`); ok && domainName != "" && name != "" {
		return conn.NTLMBind(domainName, name, password)
	}
	return conn.Bind(user, password)
}

func (c *Client) toResult(email string, entry *ldap.Entry) domain.LookupResult {
	result := domain.LookupResult{
		Email:      email,
		Name:       entry.GetAttributeValue(AttrDisplayName),
		Office:     entry.GetAttributeValue(AttrOffice),
		Department: entry.GetAttributeValue(AttrDepartment),
		Title:      entry.GetAttributeValue(AttrTitle),
		Status:     domain.StatusFound,
	}
	if c.includeAliases {
		result.Aliases = strings.Join(entry.GetAttributeValues(AttrProxyAddresses), ", ")
	}
	return result
}

// isTransient reports whether err is a network failure worth retrying.
func isTransient(err error) bool {
	if ldap.IsErrorWithCode(err, ldap.ErrorNetwork) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// ServerURL normalizes a server given as host, host:port or URL into an LDAP URL.
func ServerURL(server string) (string, error) {
	server = strings.TrimSpace(server)
	if server == "" {
		return "", fmt.Errorf("%w: server", domain.ErrMissingFields)
	}
	lower := strings.ToLower(server)
	if strings.HasPrefix(lower, "ldap://") || strings.HasPrefix(lower, "ldaps://") || strings.HasPrefix(lower, "ldapi://") {
		return server, nil
	}
	if _, _, err := net.SplitHostPort(server); err == nil {
		return "ldap://" + server, nil
	}
	return "ldap://" + net.JoinHostPort(server, "389"), nil
}
