// Package logger provides adapters for the logging interface.
package logger

import (
	"context"
	"strings"
)

// Redacted replaces the value of sensitive fields.
const Redacted = "[REDACTED]"

// sensitiveKeys are field-name fragments whose values are never written to the log.
var sensitiveKeys = []string{"password", "secret", "token"}

// Logger defines the logging interface used throughout the application.
// External loggers that implement these methods can be wrapped with ZapAdapter.
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]any)
	Debug(ctx context.Context, msg string, fields map[string]any)
	Warn(ctx context.Context, msg string, fields map[string]any)
	Error(ctx context.Context, msg string, err error, fields map[string]any)
}

// ZapAdapter adapts a Logger to the application's logging interface and
// masks credential fields before they reach the underlying logger.
type ZapAdapter struct {
	log Logger
}

// NewZapAdapter creates a new ZapAdapter wrapping the given logger.
func NewZapAdapter(log Logger) *ZapAdapter {
	return &ZapAdapter{log: log}
}

// Info logs an info message.
func (a *ZapAdapter) Info(ctx context.Context, msg string, fields map[string]any) {
	a.log.Info(ctx, msg, redact(fields))
}

// Debug logs a debug message.
func (a *ZapAdapter) Debug(ctx context.Context, msg string, fields map[string]any) {
	a.log.Debug(ctx, msg, redact(fields))
}

// Warn logs a warning message.
func (a *ZapAdapter) Warn(ctx context.Context, msg string, fields map[string]any) {
	a.log.Warn(ctx, msg, redact(fields))
}

// Error logs an error message.
func (a *ZapAdapter) Error(ctx context.Context, msg string, err error, fields map[string]any) {
	a.log.Error(ctx, msg, err, redact(fields))
}

// redact returns fields with sensitive values masked. The caller's map is not modified.
func redact(fields map[string]any) map[string]any {
	var out map[string]any
	for k := range fields {
		if !isSensitive(k) {
			continue
		}
		if out == nil {
			out = make(map[string]any, len(fields))
			for kk, vv := range fields {
				out[kk] = vv
			}
		}
		out[k] = Redacted
	}
	if out == nil {
		return fields
	}
	return out
}

func isSensitive(key string) bool {
	key = strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}
