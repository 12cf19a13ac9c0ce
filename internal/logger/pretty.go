package logger

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiYellow = "\033[33m"
	ansiBlue   = "\033[34m"
	ansiGray   = "\033[90m"
	ansiCyan   = "\033[36m"
)

// PrettyHandler renders records as
//
//	15:04:05.000 INFO  message key=value group.key=value
//
// with ANSI colors. Derived handlers share the writer lock.
type PrettyHandler struct {
	level  slog.Leveler
	w      io.Writer
	mu     *sync.Mutex
	prefix string
	attrs  []byte
}

func NewPrettyHandler(w io.Writer, opts *slog.HandlerOptions) *PrettyHandler {
	h := &PrettyHandler{level: slog.LevelInfo, w: w, mu: new(sync.Mutex)}
	if opts != nil && opts.Level != nil {
		h.level = opts.Level
	}
	return h
}

func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	buf := make([]byte, 0, 256)
	buf = append(buf, ansiGray...)
	buf = r.Time.AppendFormat(buf, "15:04:05.000")
	buf = append(buf, ansiReset...)
	buf = append(buf, ' ')
	buf = append(buf, levelColor(r.Level)...)
	buf = append(buf, padLevel(r.Level.String())...)
	buf = append(buf, ansiReset...)
	buf = append(buf, ' ')
	buf = append(buf, r.Message...)

	if len(h.attrs) > 0 || r.NumAttrs() > 0 {
		buf = append(buf, ansiCyan...)
		buf = append(buf, h.attrs...)
		r.Attrs(func(a slog.Attr) bool {
			buf = appendAttr(buf, a, h.prefix)
			return true
		})
		buf = append(buf, ansiReset...)
	}
	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf)
	return err
}

func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	c := *h
	c.attrs = append([]byte(nil), h.attrs...)
	for _, a := range attrs {
		c.attrs = appendAttr(c.attrs, a, h.prefix)
	}
	return &c
}

func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.prefix = h.prefix + name + "."
	return &c
}

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return ansiRed
	case level >= slog.LevelWarn:
		return ansiYellow
	case level >= slog.LevelInfo:
		return ansiBlue
	default:
		return ansiGray
	}
}

func padLevel(level string) string {
	if len(level) < 5 {
		return level + strings.Repeat(" ", 5-len(level))
	}
	return level
}

// appendAttr writes " key=value", flattening groups into dotted keys.
func appendAttr(buf []byte, a slog.Attr, prefix string) []byte {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return buf
	}
	if a.Value.Kind() == slog.KindGroup {
		sub := prefix
		if a.Key != "" {
			sub = prefix + a.Key + "."
		}
		for _, g := range a.Value.Group() {
			buf = appendAttr(buf, g, sub)
		}
		return buf
	}

	buf = append(buf, ' ')
	buf = append(buf, prefix...)
	buf = append(buf, a.Key...)
	buf = append(buf, '=')
	switch v := a.Value; v.Kind() {
	case slog.KindString:
		s := v.String()
		if needsQuoting(s) {
			buf = strconv.AppendQuote(buf, s)
		} else {
			buf = append(buf, s...)
		}
	case slog.KindTime:
		buf = v.Time().AppendFormat(buf, time.RFC3339)
	case slog.KindDuration:
		buf = append(buf, v.Duration().Round(time.Microsecond).String()...)
	case slog.KindFloat64:
		buf = strconv.AppendFloat(buf, v.Float64(), 'g', 6, 64)
	default:
		buf = append(buf, v.String()...)
	}
	return buf
}

func needsQuoting(s string) bool {
	if s == "" {
		return true
	}
	return strings.ContainsAny(s, " \t\n\"=")
}
