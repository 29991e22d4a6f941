package observe

import (
	"context"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ParseLogLevel maps debug|info|warn|error to a zerolog level.
// Unknown values fall back to info.
func ParseLogLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

type zeroLogger struct {
	zl zerolog.Logger
}

// NewLogger creates a JSON logger on stderr.
func NewLogger(level string) Logger {
	return NewLoggerWithWriter(level, os.Stderr)
}

// NewLoggerWithWriter creates a JSON logger writing one object per line to w.
func NewLoggerWithWriter(level string, w io.Writer) Logger {
	zl := zerolog.New(w).
		Level(ParseLogLevel(level)).
		With().
		Timestamp().
		Logger()
	return &zeroLogger{zl: zl}
}

// FromZerolog adapts an existing zerolog logger.
func FromZerolog(zl zerolog.Logger) Logger {
	return &zeroLogger{zl: zl}
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}

// WithRequest returns a logger with request identity fields attached.
func (l *zeroLogger) WithRequest(meta RequestMeta) Logger {
	c := l.zl.With().
		Str("request.method", meta.Method).
		Str("request.endpoint", meta.Endpoint)
	if meta.RequestKey != "" {
		c = c.Str("request.key", meta.RequestKey)
	}
	if meta.QueueKey != "" {
		c = c.Str("request.queue_key", meta.QueueKey)
	}
	return &zeroLogger{zl: c.Logger()}
}

func (l *zeroLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.write(ctx, l.zl.Info(), msg, fields)
}

func (l *zeroLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.write(ctx, l.zl.Warn(), msg, fields)
}

func (l *zeroLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.write(ctx, l.zl.Error(), msg, fields)
}

func (l *zeroLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.write(ctx, l.zl.Debug(), msg, fields)
}

// write is a no-op when the level is disabled (zerolog returns a nil event).
func (l *zeroLogger) write(ctx context.Context, e *zerolog.Event, msg string, fields []Field) {
	if e == nil {
		return
	}
	for _, f := range fields {
		if slices.Contains(RedactedFields, f.Key) {
			e = e.Str(f.Key, "[REDACTED]")
			continue
		}
		switch v := f.Value.(type) {
		case error:
			e = e.AnErr(f.Key, v)
		case time.Duration:
			e = e.Dur(f.Key, v)
		default:
			e = e.Interface(f.Key, v)
		}
	}
	e.Ctx(ctx).Msg(msg)
}
