package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

var current atomic.Pointer[slog.Logger]

type ctxKey int

const (
	requestIDKey ctxKey = iota
	userIDKey
)

// Init installs the process logger writing to stdout
func Init(level, format string) {
	InitWriter(os.Stdout, level, format)
}

// InitWriter installs the process logger. Unknown levels fall back to info,
// any format other than "json" selects the text handler.
func InitWriter(w io.Writer, level, format string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler = slog.NewTextHandler(w, opts)
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	}

	l := slog.New(handler).With("service", "gatherly")
	current.Store(l)
	slog.SetDefault(l)
}

func get() *slog.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	return slog.Default()
}

// ContextWithRequestID stores the request id picked up by WithContext
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// ContextWithUserID stores the acting user id picked up by WithContext
func ContextWithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok
}

// WithContext returns the process logger annotated with the request id and
// acting user carried by ctx.
func WithContext(ctx context.Context) *slog.Logger {
	l := get()
	if id, ok := RequestIDFromContext(ctx); ok {
		l = l.With("request_id", id)
	}
	if userID, ok := ctx.Value(userIDKey).(int64); ok {
		l = l.With("user_id", userID)
	}
	return l
}

func NewRequestID() string {
	return uuid.NewString()
}
