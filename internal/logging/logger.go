// Package logging defines the structured-logging interface used across
// discshelf. The sync core and the adapters only see Logger; the CLI picks
// the concrete sink.
package logging

import "context"

// Logger is a context-aware, structured logger.
//
// The variadic args are interpreted as key–value pairs, e.g.:
//
//	log.Info(ctx, "snapshot loaded", "backend", name, "items", n)
type Logger interface {
	// Debug logs diagnostic detail (request URLs, page numbers).
	Debug(ctx context.Context, msg string, args ...any)

	// Info logs an informational message.
	Info(ctx context.Context, msg string, args ...any)

	// Warn logs a warning for unusual but non-fatal conditions, such as a
	// malformed remote document that was replaced by an empty snapshot.
	Warn(ctx context.Context, msg string, args ...any)

	// Error logs an error message for failures.
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given key–value pairs.
	With(args ...any) Logger
}
