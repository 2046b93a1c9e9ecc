package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type ctxKey string

const (
	ctxRequestID ctxKey = "request_id"
	ctxUserID    ctxKey = "user_id"
)

// New builds the process logger. Level accepts zerolog level names and
// format is "json" or "console".
func New(level, format string) *zerolog.Logger {
	return NewWithWriter(os.Stdout, level, format)
}

func NewWithWriter(out io.Writer, level, format string) *zerolog.Logger {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}

	if strings.EqualFold(strings.TrimSpace(format), "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	logger := zerolog.New(out).Level(parsed).With().Timestamp().Logger()
	return &logger
}

func Nop() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxRequestID, requestID)
}

func RequestID(ctx context.Context) string {
	value, _ := ctx.Value(ctxRequestID).(string)
	return value
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxUserID, userID)
}

func UserID(ctx context.Context) string {
	value, _ := ctx.Value(ctxUserID).(string)
	return value
}

// With returns base enriched with the request scoped fields found in ctx.
func With(ctx context.Context, base *zerolog.Logger) *zerolog.Logger {
	builder := base.With()
	if requestID := RequestID(ctx); requestID != "" {
		builder = builder.Str("request_id", requestID)
	}
	if userID := UserID(ctx); userID != "" {
		builder = builder.Str("user_id", userID)
	}
	logger := builder.Logger()
	return &logger
}
