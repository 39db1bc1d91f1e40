package common

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
)

// Context keys
type contextKey string

const (
	ClientIDCtxKey  contextKey = "client_id"
	RequestIDCtxKey contextKey = "request_id"
	LoggerCtxKey    contextKey = "logger"
)

// Standard format for all timestamps in the API
const TimestampFormat = time.RFC3339

// FormatTimestamp converts a time.Time to our standard string format
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

// ParseTimestamp parses a timestamp string in our standard format
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(TimestampFormat, s)
}

// Logger returns the request-scoped logger from ctx, falling back to a
// default logger so callers never have to nil-check.
func Logger(ctx context.Context) *log.Logger {
	if logger, ok := ctx.Value(LoggerCtxKey).(*log.Logger); ok && logger != nil {
		return logger
	}
	return log.New(os.Stdout, "[Entitle] ", log.LstdFlags)
}

// MaskSecret masks sensitive values for logging
func MaskSecret(value string) string {
	if value == "" {
		return "[empty]"
	}

	if len(value) <= 8 {
		return "****" + value[len(value)-2:]
	}

	return value[:4] + "****" + value[len(value)-4:]
}

// Middleware to set request timeout
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			r = r.WithContext(ctx)
			next.ServeHTTP(w, r)
		})
	}
}

// Middleware to add request ID to context
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), RequestIDCtxKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Middleware to recover from panics
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				requestID, _ := r.Context().Value(RequestIDCtxKey).(string)
				logger := Logger(r.Context())
				logger.Printf("Panic occurred in request %s: %v\n", requestID, err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
