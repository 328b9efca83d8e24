// Package domain defines the core business entities and interfaces for adcheck.
// This package contains no external dependencies and represents the innermost layer
// of the CLEAN architecture.
package domain

import (
	"context"
	"errors"
	"strings"
)

// Domain errors for batches, reports and credentials.
var (
	// ErrNoActiveBatch indicates there is no submitted batch waiting to be processed.
	ErrNoActiveBatch = errors.New("no active batch")

	// ErrNoArtifact indicates the batch has not produced a report yet.
	ErrNoArtifact = errors.New("no file available for download")

	// ErrNoEmailFile indicates the upload did not include an email list.
	ErrNoEmailFile = errors.New("no email file uploaded")

	// ErrMissingFields indicates required credential fields were left blank.
	ErrMissingFields = errors.New("required fields missing")
)

// MissingFieldsError lists the credential fields that were left blank.
// It matches ErrMissingFields with errors.Is.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return ErrMissingFields.Error() + ": " + strings.Join(e.Fields, ", ")
}

// Is reports whether target is ErrMissingFields.
func (e *MissingFieldsError) Is(target error) bool {
	return target == ErrMissingFields
}

// DirectoryClient resolves a single email against a directory service.
type DirectoryClient interface {
	// Lookup returns the profile for email. It never fails: connection, bind
	// and search errors are reported through an error result.
	Lookup(ctx context.Context, email string, creds DirectoryCredentials) LookupResult
}

// ReportWriter serializes lookup results into a downloadable workbook.
type ReportWriter interface {
	// Write returns the encoded report with one row per result, in the given order.
	Write(results []LookupResult) ([]byte, error)
}

// ServerDiscoverer finds a directory server and search base for form prefill.
type ServerDiscoverer interface {
	// Discover returns the detected values, or empty strings when nothing was found.
	Discover(ctx context.Context) Discovery
}

// IdentityProvider reports the identity of the user running the process.
type IdentityProvider interface {
	// CurrentUser returns DOMAIN\user when a domain is known, else the bare user name.
	CurrentUser() string
}
