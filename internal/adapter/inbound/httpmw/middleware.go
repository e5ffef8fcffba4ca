// Package httpmw provides the request-ID/logger-enrichment middleware shared
// by the shell-gate and proxy HTTP listeners.
package httpmw

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/Sentinel-Gate/acp-gate/internal/ctxkey"
)

type requestIDContextKey struct{}

// RequestIDKey is the context key for the request ID.
var RequestIDKey = requestIDContextKey{}

// LoggerKey is the context key for the request-enriched logger. Uses the
// shared key type from ctxkey so packages that only need to read the logger
// don't have to import this one.
var LoggerKey = ctxkey.LoggerKey{}

// RequestID extracts or generates a request ID, enriches logger with it, and
// stores both on the request context. The ID is echoed back via
// X-Request-ID so a shell wrapper or agent client can correlate its own logs
// with the gate's audit entries.
func RequestID(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.NewString()
			}

			enriched := logger.With("request_id", requestID)
			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
			ctx = context.WithValue(ctx, LoggerKey, enriched)

			w.Header().Set("X-Request-ID", requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoggerFromContext returns the request-enriched logger, or fallback if the
// context carries none (e.g. in unit tests that call handlers directly).
func LoggerFromContext(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return logger
	}
	return fallback
}
