// Package reqlog carries a request correlation id through context and writes
// one structured line per pipeline step.
package reqlog

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
)

type ctxKey struct{}

// Setup installs a JSON slog handler as the default logger.
func Setup(debug bool) *slog.Logger {
	return SetupWriter(os.Stdout, debug)
}

func SetupWriter(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	l := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(l)
	return l
}

// WithRequestID stores id in ctx. An empty id is replaced by a new UUID.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.NewString()
	}
	return context.WithValue(ctx, ctxKey{}, id)
}

func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKey{}).(string); ok {
		return v
	}
	return ""
}

// Step logs a pipeline step at info level.
func Step(ctx context.Context, step string, args ...any) {
	log(ctx, slog.LevelInfo, step, args...)
}

func Warn(ctx context.Context, step string, args ...any) {
	log(ctx, slog.LevelWarn, step, args...)
}

func Error(ctx context.Context, step string, args ...any) {
	log(ctx, slog.LevelError, step, args...)
}

// Debug is for verbose lines (headers, bodies); dropped unless DEBUG is on.
func Debug(ctx context.Context, step string, args ...any) {
	log(ctx, slog.LevelDebug, step, args...)
}

func log(ctx context.Context, level slog.Level, step string, args ...any) {
	l := slog.Default()
	if !l.Enabled(ctx, level) {
		return
	}
	attrs := make([]any, 0, len(args)+4)
	attrs = append(attrs, "reqId", RequestID(ctx), "step", step)
	attrs = append(attrs, args...)
	l.Log(ctx, level, step, attrs...)
}
