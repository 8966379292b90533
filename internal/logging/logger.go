// Package logging is the structured logger shared by the server, the platform
// drivers and the uploader. Components receive a Logger and narrow it with
// With("module", ...) and per-request ids such as session_id or upload_id.
package logging

import "context"

// Logger takes a message followed by alternating keys and values:
//
//	l.Info(ctx, "part stored", "session_id", id, "part", n)
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a logger that adds args to every record.
	With(args ...any) Logger
}
