// Package logger provides the structured logger used across qtensor. It is
// a thin layer over log/slog so packages depend on an interface and tests
// can inject a discarding or buffered logger.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is the logging interface accepted by every qtensor component.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	WithGroup(name string) Logger
}

// SlogLogger adapts a *slog.Logger to Logger.
type SlogLogger struct {
	logger *slog.Logger
}

// New wraps handler.
func New(handler slog.Handler) Logger {
	return &SlogLogger{logger: slog.New(handler)}
}

// Default writes text records at info level to stderr.
func Default() Logger {
	return New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// Discard drops every record.
func Discard() Logger {
	return New(slog.DiscardHandler)
}

// JSON writes one JSON object per record, with source locations.
func JSON(w io.Writer, level slog.Level) Logger {
	return New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource: true,
		Level:     level,
	}))
}

// Pretty writes colored single-line records for terminals.
func Pretty(w io.Writer, level slog.Level) Logger {
	return New(NewPrettyHandler(w, &slog.HandlerOptions{Level: level}))
}

// Format selects the record encoding used by Setup.
type Format string

const (
	FormatPretty Format = "pretty"
	FormatText   Format = "text"
	FormatJSON   Format = "json"
)

// ParseFormat accepts pretty, text or json. The empty string means pretty.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatPretty, nil
	case FormatPretty, FormatText, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown log format %q (expected pretty, text, or json)", s)
	}
}

// Setup builds the process logger from CLI or config settings and installs
// it as the slog default, so third-party code logging through slog ends up
// in the same stream.
func Setup(w io.Writer, format Format, level slog.Level) Logger {
	var h slog.Handler
	switch format {
	case FormatJSON:
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{AddSource: true, Level: level})
	case FormatText:
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	default:
		h = NewPrettyHandler(w, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(h))
	return New(h)
}

// FromContext returns the logger stored by WithContext, or Default.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey{}).(Logger); ok {
		return l
	}
	return Default()
}

// WithContext stores l in ctx.
func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

type loggerKey struct{}

func (l *SlogLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }

func (l *SlogLogger) Info(msg string, args ...any) { l.logger.Info(msg, args...) }

func (l *SlogLogger) Warn(msg string, args ...any) { l.logger.Warn(msg, args...) }

func (l *SlogLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

func (l *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{logger: l.logger.With(args...)}
}

func (l *SlogLogger) WithGroup(name string) Logger {
	return &SlogLogger{logger: l.logger.WithGroup(name)}
}

// Slog exposes the underlying logger for libraries that take *slog.Logger.
func (l *SlogLogger) Slog() *slog.Logger { return l.logger }

// ParseLevel maps a level name to slog.Level. Unknown names map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
