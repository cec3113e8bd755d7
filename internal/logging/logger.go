// Package logging defines the structured-logging interface used across
// the server. The single implementation wraps log/slog; the interface
// keeps call sites independent of the backend.
//
// Raw magic tokens and session cookie values must never be passed as
// logging arguments.
package logging

import "context"

// Logger is a context-aware, structured logger. The variadic args are
// interpreted as key-value pairs:
//
//	log.Info(ctx, "link issued", "user_id", id, "ttl", ttl)
type Logger interface {
	// Debug logs a message useful only during development.
	Debug(ctx context.Context, msg string, args ...any)

	// Info logs an informational message.
	Info(ctx context.Context, msg string, args ...any)

	// Warn logs a warning for unusual but non-fatal conditions.
	Warn(ctx context.Context, msg string, args ...any)

	// Error logs a failure.
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given
	// key-value pairs.
	With(args ...any) Logger
}
