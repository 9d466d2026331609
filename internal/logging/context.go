// internal/logging/context.go
package logging

import (
	"context"

	"go.uber.org/zap"
)

// connectorCtxKey carries the connector slug a log line was emitted
// during, so a scan's debug-level "skipped malformed record" lines can
// be correlated back to the connector that produced them.
type connectorCtxKey struct{}

// ContextFields extracts correlation data from context: currently just
// the connector slug set by WithConnector, if any.
func ContextFields(ctx context.Context) []zap.Field {
	if slug := ConnectorFromContext(ctx); slug != "" {
		return []zap.Field{zap.String("connector", slug)}
	}
	return nil
}

// WithConnector tags ctx with the connector slug currently being scanned.
func WithConnector(ctx context.Context, slug string) context.Context {
	return context.WithValue(ctx, connectorCtxKey{}, slug)
}

// ConnectorFromContext extracts the connector slug set by WithConnector,
// or "" if none was set.
func ConnectorFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(connectorCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// loggerCtxKey is the context key for Logger.
type loggerCtxKey struct{}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a default nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return &Logger{zap: zap.NewNop(), config: NewDefaultConfig()}
}
