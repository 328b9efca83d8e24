// Package domain defines the core business entities and interfaces for adcheck.
package domain

import (
	"strings"
)

// Report and lookup constants.
const (
	// NotFoundName is the Name placed on a result when the directory has no matching entry.
	NotFoundName = "Not Found"

	// ErrorNamePrefix marks the Name of a result whose lookup failed.
	ErrorNamePrefix = "Error: "

	// DefaultWorkerCount is the number of concurrent directory lookups for a web batch.
	DefaultWorkerCount = 10

	// ReportFileName is the attachment name of the downloadable workbook.
	ReportFileName = "TeamViewer_AD_Check.xlsx"

	// ReportContentType is the MIME type of the downloadable workbook.
	ReportContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	// CompleteMarker is the text of the terminal progress event.
	CompleteMarker = "COMPLETE"
)

// LookupStatus classifies how a single lookup ended.
// It is used for logging and metrics and is never written to the report.
type LookupStatus string

const (
	// StatusFound means a directory entry matched the email.
	StatusFound LookupStatus = "found"

	// StatusNotFound means the search succeeded but matched nothing.
	StatusNotFound LookupStatus = "not_found"

	// StatusFailed means the connection, bind or search failed.
	StatusFailed LookupStatus = "failed"
)

// DirectoryCredentials identifies the directory to query and how to bind to it.
// Credentials are supplied per batch and never persisted.
type DirectoryCredentials struct {
	// Server is a host, host:port, or ldap:// / ldaps:// URL.
	Server string

	// BindUser is either DOMAIN\user (NTLM) or a DN / UPN (simple bind).
	BindUser string

	// BindPassword is the secret for BindUser.
	BindPassword string

	// SearchBase is the DN under which lookups are scoped.
	SearchBase string
}

// Validate reports whether the credentials carry enough to attempt a lookup.
func (c DirectoryCredentials) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Server) == "" {
		missing = append(missing, "server")
	}
	if strings.TrimSpace(c.SearchBase) == "" {
		missing = append(missing, "search base")
	}
	if len(missing) > 0 {
		return &MissingFieldsError{Fields: missing}
	}
	return nil
}

// WithDefaults fills blank fields of c from defaults. Server and search base
// fall back unconditionally. The stored bind identity is only used when the
// resolved server is the default server: with user and password both blank
// it supplies both, and with only the password blank it supplies the password
// when the user matches the stored user.
func (c DirectoryCredentials) WithDefaults(defaults DirectoryCredentials) DirectoryCredentials {
	out := DirectoryCredentials{
		Server:       strings.TrimSpace(c.Server),
		BindUser:     strings.TrimSpace(c.BindUser),
		BindPassword: c.BindPassword,
		SearchBase:   strings.TrimSpace(c.SearchBase),
	}
	if out.Server == "" {
		out.Server = strings.TrimSpace(defaults.Server)
	}
	if out.SearchBase == "" {
		out.SearchBase = strings.TrimSpace(defaults.SearchBase)
	}

	if defaults.BindPassword == "" || !SameServer(out.Server, defaults.Server) {
		return out
	}
	switch {
	case out.BindUser == "" && out.BindPassword == "":
		out.BindUser = defaults.BindUser
		out.BindPassword = defaults.BindPassword
	case out.BindPassword == "" && strings.EqualFold(out.BindUser, defaults.BindUser):
		out.BindPassword = defaults.BindPassword
	}
	return out
}

// SameServer reports whether a and b name the same directory endpoint.
// Scheme ldap:// and port 389 are implied; an empty name matches nothing.
func SameServer(a, b string) bool {
	na, nb := normalizeServer(a), normalizeServer(b)
	return na != "" && na == nb
}

func normalizeServer(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, "/")
	s = strings.TrimPrefix(s, "ldap://")
	s = strings.TrimSuffix(s, ":389")
	return s
}

// LookupResult is the flat profile record produced for one input email.
type LookupResult struct {
	Email      string
	Name       string
	Office     string
	Department string
	Title      string
	Aliases    string

	// Status is internal bookkeeping and is not part of the report.
	Status LookupStatus
}

// NewNotFoundResult returns the result for an email with no matching entry.
func NewNotFoundResult(email string) LookupResult {
	return LookupResult{
		Email:  email,
		Name:   NotFoundName,
		Status: StatusNotFound,
	}
}

// NewErrorResult returns the result for an email whose lookup failed.
// The error text is carried in Name so the failure shows up in the report.
func NewErrorResult(email string, err error) LookupResult {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return LookupResult{
		Email:  email,
		Name:   ErrorNamePrefix + msg,
		Status: StatusFailed,
	}
}

// Completion is one finished lookup as published by the lookup pool.
type Completion struct {
	// Completed is the 1-based count of lookups finished so far, in completion order.
	Completed int

	// Total is the number of lookups in the batch.
	Total int

	// Index is the 0-based submission index of the email.
	Index int

	// Result is the lookup outcome.
	Result LookupResult
}

// Discovery holds best-effort form prefill values found on the network.
type Discovery struct {
	Server     string
	SearchBase string
}

// BatchState is the lifecycle state of a batch's progress reporting.
type BatchState int

const (
	// StateIdle means the batch was submitted but lookups have not started.
	StateIdle BatchState = iota

	// StateRunning means lookups are in flight.
	StateRunning

	// StateComplete means every lookup finished and the report is available.
	StateComplete
)

// String returns the lower-case state name.
func (s BatchState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}
