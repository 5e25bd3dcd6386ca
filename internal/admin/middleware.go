package admin

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"cascade/internal/logger"
)

type ctxKey string

const (
	requestIDKey ctxKey = logger.RequestIDKey
	csrfKey      ctxKey = "csrf_token"
)

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AccessLog logs one line per request and puts a logger carrying the request id on
// the request context for handlers.
func AccessLog(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLog := log.With(slog.String(logger.RequestIDKey, requestIDFromContext(r.Context())))
			wr := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wr, r.WithContext(logger.WithContext(r.Context(), reqLog)))
			reqLog.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", wr.status),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()))
		})
	}
}

func requestIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(requestIDKey).(string); ok {
		return s
	}
	return ""
}
