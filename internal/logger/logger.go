package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

const (
	RequestIDKey = "request_id"
	EditorIDKey  = "editor_id"
)

// New returns the JSON logger used by every command. Development runs log at debug
// level.
func New(env string) *slog.Logger {
	return NewWithWriter(os.Stdout, env)
}

func NewWithWriter(w io.Writer, env string) *slog.Logger {
	level := slog.LevelInfo
	if env == "development" {
		level = slog.LevelDebug
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h)
}

type ctxKey struct{}

// WithContext stores a request scoped logger on ctx.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored on ctx, or fallback.
func FromContext(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return fallback
}

func WithEditorID(l *slog.Logger, editorID string) *slog.Logger {
	if editorID == "" {
		return l
	}
	return l.With(slog.String(EditorIDKey, editorID))
}
