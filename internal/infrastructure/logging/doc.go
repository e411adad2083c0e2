// Package logging provides structured logging for the sync gateway.
//
// It wraps Go's standard log/slog package to provide consistent, structured
// logging across the application: JSON output for production, text output
// for development, level-based filtering, and default service/version fields
// on every entry.
//
// Never log credentials, session cookie contents, or tenant password material.
package logging
