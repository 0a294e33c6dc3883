package logging

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// Into stores a request-scoped logger in ctx.
func Into(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From returns the logger stored by Into, or fallback when there is none.
// A nil fallback falls back to slog.Default.
func From(ctx context.Context, fallback Logger) Logger {
	if l, ok := ctx.Value(ctxKey{}).(Logger); ok && l != nil {
		return l
	}
	if fallback != nil {
		return fallback
	}
	return NewSlogLogger(slog.Default())
}
