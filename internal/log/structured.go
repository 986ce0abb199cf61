package log

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// StructuredLogger writes the few record shapes several packages share.
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{logger: logger}
}

// statusLevel picks info for successes, warn for client errors, error for the rest.
func statusLevel(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

// LogHTTPEnd records a finished request. Client and request IDs come from the logger.
func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, r *http.Request, status int, took time.Duration) {
	attrs := []any{
		slog.String(FieldMethod, r.Method),
		slog.String(FieldPath, r.URL.Path),
		slog.Int(FieldStatusCode, status),
		Millis(took),
	}
	if r.URL.RawQuery != "" {
		attrs = append(attrs, slog.String(FieldQuery, r.URL.RawQuery))
	}
	sl.logger.Log(ctx, statusLevel(status), "HTTP request completed", attrs...)
}

// LogMutation records a ledger mutation by endpoint name.
func (sl *StructuredLogger) LogMutation(ctx context.Context, name string, err error) {
	logger := sl.logger.WithComponent(ComponentView)
	if err != nil {
		logger.WarnContext(ctx, "Ledger mutation failed",
			FieldOperation, OpMutate, FieldEndpoint, name, Err(err))
		return
	}
	logger.InfoContext(ctx, "Ledger mutation applied", FieldOperation, OpMutate, FieldEndpoint, name)
}

// LogError records err at error level under component and operation.
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, component, operation string, args ...any) {
	args = append([]any{FieldOperation, operation, Err(err)}, args...)
	sl.logger.WithComponent(component).ErrorContext(ctx, msg, args...)
}
