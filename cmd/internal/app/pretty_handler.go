package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// prettyHandler renders one key=value line per record for local development.
// Attributes added through WithAttrs are rendered once and reused as a suffix.
type prettyHandler struct {
	out    *lockedWriter
	opts   slog.HandlerOptions
	color  bool
	prefix string // group path applied to new attributes, "a.b."
	preset string // rendered WithAttrs attributes
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) write(s string) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	_, err := io.WriteString(lw.w, s)
	return err
}

func newPrettyHandler(w io.Writer, opts *slog.HandlerOptions, color bool) slog.Handler {
	h := &prettyHandler{out: &lockedWriter{w: w}, color: color}
	if opts != nil {
		h.opts = *opts
	}
	return h
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	if h.opts.Level == nil {
		return level >= slog.LevelInfo
	}
	return level >= h.opts.Level.Level()
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "ts=%s lvl=%s msg=%s",
		applyDim(ts.Format("15:04:05.000"), h.color),
		levelTag(r.Level, h.color),
		applyBold(r.Message, h.color),
	)

	if h.opts.AddSource && r.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		if frame.File != "" {
			b.WriteString(" src=")
			b.WriteString(applyDim(filepath.Base(frame.File)+":"+strconv.Itoa(frame.Line), h.color))
		}
	}

	b.WriteString(h.preset)
	r.Attrs(func(a slog.Attr) bool {
		h.render(&b, h.prefix, a)
		return true
	})
	b.WriteByte('\n')

	return h.out.write(b.String())
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	var b strings.Builder
	for _, a := range attrs {
		h.render(&b, h.prefix, a)
	}
	cp := *h
	cp.preset = h.preset + b.String()
	return &cp
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	name = strings.TrimSpace(name)
	if name == "" {
		return h
	}
	cp := *h
	cp.prefix = h.prefix + name + "."
	return &cp
}

// render appends " key=value" for a, flattening groups into dotted keys.
func (h *prettyHandler) render(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	key := strings.TrimSpace(a.Key)

	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		if key != "" {
			prefix += key + "."
		}
		for _, ga := range attrs {
			h.render(b, prefix, ga)
		}
		return
	}
	if key == "" || a.Equal(slog.Attr{}) {
		return
	}

	b.WriteByte(' ')
	b.WriteString(prefix)
	if short, ok := prettyKeys[key]; ok {
		b.WriteString(short)
	} else {
		b.WriteString(key)
	}
	b.WriteByte('=')

	if sensitiveKey(key) {
		b.WriteString(redacted)
		return
	}
	if f, ok := prettyFormatters[key]; ok {
		if s, ok := f(a.Value, h.color); ok {
			b.WriteString(s)
			return
		}
	}
	b.WriteString(quoteIfNeeded(valueToString(a.Value)))
}

var prettyKeys = map[string]string{
	"status_class": "class",
	"duration_ms":  "duration",
}

type prettyFormatter func(v slog.Value, color bool) (string, bool)

var prettyFormatters = map[string]prettyFormatter{
	"method": func(v slog.Value, color bool) (string, bool) {
		return colorizeHTTPMethod(strings.ToUpper(strings.TrimSpace(v.String())), color), true
	},
	"path":       stringIn(ansiCyan),
	"route":      stringIn(ansiCyan),
	"request_id": stringIn(ansiDim),
	"status": func(v slog.Value, color bool) (string, bool) {
		n, ok := valueToInt64(v)
		return colorizeStatusCode(int(n), color), ok
	},
	"status_class": func(v slog.Value, color bool) (string, bool) {
		return colorizeStatusClass(strings.TrimSpace(v.String()), color), true
	},
	"duration_ms": func(v slog.Value, color bool) (string, bool) {
		n, ok := valueToInt64(v)
		return colorizeDurationMS(n, color), ok
	},
	"result": func(v slog.Value, color bool) (string, bool) {
		return colorizeResult(strings.ToLower(strings.TrimSpace(v.String())), color), true
	},
}

func stringIn(code string) prettyFormatter {
	return func(v slog.Value, color bool) (string, bool) {
		return paint(strings.TrimSpace(v.String()), code, color), true
	}
}

const redacted = "[redacted]"

// sensitiveKey matches attribute names that must never reach a log line.
func sensitiveKey(k string) bool {
	k = strings.ToLower(k)
	for _, s := range []string{"password", "token", "secret", "hash", "authorization"} {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

func valueToString(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		// Int64, Uint64, Float64, Bool and Duration all print sensibly.
		return v.String()
	}
}

func quoteIfNeeded(s string) string {
	if s == "" {
		return `""`
	}
	if strings.ContainsAny(s, " \t\r\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

func levelTag(level slog.Level, color bool) string {
	switch {
	case level >= slog.LevelError:
		return paint("[ERROR]", ansiRed, color)
	case level >= slog.LevelWarn:
		return paint("[WARN]", ansiYellow, color)
	case level < slog.LevelInfo:
		return paint("[DEBUG]", ansiMagenta, color)
	default:
		return paint("[INFO]", ansiBlue, color)
	}
}

func applyDim(s string, color bool) string { return paint(s, ansiDim, color) }

func applyBold(s string, color bool) string { return paint(s, ansiBright, color) }
