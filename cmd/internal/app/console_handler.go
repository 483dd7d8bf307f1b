package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// consoleHandler writes one human-readable line per record:
//
//	15:04:05.000 INFO  http.request method=GET path=/healthz status=200 @middleware.go:88
//
// It is meant for a developer terminal; production uses the JSON handler.
type consoleHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Leveler
	source bool
	pal    palette

	prefix string // open groups, "a.b."
	pre    []byte // attrs bound by WithAttrs, already rendered
}

func newConsoleHandler(w io.Writer, opts *slog.HandlerOptions, color bool) *consoleHandler {
	h := &consoleHandler{mu: &sync.Mutex{}, w: w, level: slog.LevelInfo, pal: palette(color)}
	if opts != nil {
		if opts.Level != nil {
			h.level = opts.Level
		}
		h.source = opts.AddSource
	}
	return h
}

func (h *consoleHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	buf := make([]byte, 0, 256)
	buf = append(buf, h.pal.dim(ts.Format("15:04:05.000"))...)
	buf = append(buf, ' ')
	buf = append(buf, h.pal.level(r.Level)...)
	buf = append(buf, ' ')
	buf = append(buf, h.pal.bold(r.Message)...)
	buf = append(buf, h.pre...)
	r.Attrs(func(a slog.Attr) bool {
		buf = h.appendAttr(buf, h.prefix, a)
		return true
	})
	if h.source && r.PC != 0 {
		f, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		if f.File != "" {
			buf = append(buf, ' ')
			buf = append(buf, h.pal.dim("@"+filepath.Base(f.File)+":"+strconv.Itoa(f.Line))...)
		}
	}
	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf)
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	cp := *h
	cp.pre = append([]byte(nil), h.pre...)
	for _, a := range attrs {
		cp.pre = cp.appendAttr(cp.pre, cp.prefix, a)
	}
	return &cp
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name = strings.TrimSpace(name); name == "" {
		return h
	}
	cp := *h
	cp.prefix = h.prefix + name + "."
	return &cp
}

func (h *consoleHandler) appendAttr(buf []byte, prefix string, a slog.Attr) []byte {
	a.Value = a.Value.Resolve()
	key := strings.TrimSpace(a.Key)
	if key == "" && a.Value.Kind() != slog.KindGroup {
		return buf
	}

	if a.Value.Kind() == slog.KindGroup {
		if key != "" {
			prefix += key + "."
		}
		for _, ga := range a.Value.Group() {
			buf = h.appendAttr(buf, prefix, ga)
		}
		return buf
	}

	style, styled := fieldStyles[key]
	if label, ok := fieldLabels[key]; ok {
		key = label
	}
	buf = append(buf, ' ')
	buf = append(buf, prefix...)
	buf = append(buf, key...)
	buf = append(buf, '=')
	if styled {
		if s, ok := style(h.pal, a.Value); ok {
			return append(buf, s...)
		}
	}
	return append(buf, quoteValue(plainValue(a.Value))...)
}

// fieldLabels shortens the access log keys written by WithRequestLogging.
var fieldLabels = map[string]string{
	"status_class": "class",
	"duration_ms":  "duration",
}

var fieldStyles = map[string]func(palette, slog.Value) (string, bool){
	"method": func(p palette, v slog.Value) (string, bool) {
		m := strings.ToUpper(strings.TrimSpace(v.String()))
		return p.paint(methodColor(m), m), true
	},
	"path": func(p palette, v slog.Value) (string, bool) {
		return p.paint(ansiCyan, quoteValue(v.String())), true
	},
	"status": func(p palette, v slog.Value) (string, bool) {
		n, ok := intValue(v)
		return p.paint(statusColor(int(n)), strconv.FormatInt(n, 10)), ok
	},
	"status_class": func(p palette, v slog.Value) (string, bool) {
		class := v.String()
		n := 0
		if class != "" && class[0] >= '1' && class[0] <= '5' {
			n = int(class[0]-'0') * 100
		}
		return p.paint(statusColor(n), class), true
	},
	"duration_ms": func(p palette, v slog.Value) (string, bool) {
		ms, ok := intValue(v)
		return p.paint(latencyColor(ms), strconv.FormatInt(ms, 10)+"ms"), ok
	},
	"result": func(p palette, v slog.Value) (string, bool) {
		r := strings.ToLower(v.String())
		return p.paint(resultColors[r], r), true
	},
}

const (
	ansiReset   = "\x1b[0m"
	ansiBold    = "\x1b[1m"
	ansiDim     = "\x1b[2m"
	ansiRed     = "\x1b[31m"
	ansiGreen   = "\x1b[32m"
	ansiYellow  = "\x1b[33m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"
)

// palette is true when output should carry ANSI colors.
type palette bool

func (p palette) paint(code, s string) string {
	if !p || code == "" {
		return s
	}
	return code + s + ansiReset
}

func (p palette) dim(s string) string  { return p.paint(ansiDim, s) }
func (p palette) bold(s string) string { return p.paint(ansiBold, s) }

func (p palette) level(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return p.paint(ansiRed, "ERROR")
	case l >= slog.LevelWarn:
		return p.paint(ansiYellow, "WARN ")
	case l >= slog.LevelInfo:
		return p.paint(ansiBlue, "INFO ")
	}
	return p.paint(ansiMagenta, "DEBUG")
}

func methodColor(m string) string {
	switch m {
	case "GET", "HEAD":
		return ansiBlue
	case "POST":
		return ansiGreen
	case "PUT", "PATCH":
		return ansiYellow
	case "DELETE":
		return ansiRed
	case "OPTIONS":
		return ansiMagenta
	}
	return ""
}

func statusColor(status int) string {
	switch {
	case status >= 500:
		return ansiRed
	case status >= 400:
		return ansiYellow
	case status >= 300:
		return ansiCyan
	case status >= 200:
		return ansiGreen
	}
	return ""
}

func latencyColor(ms int64) string {
	switch {
	case ms >= 1000:
		return ansiRed
	case ms >= 250:
		return ansiYellow
	}
	return ansiDim
}

var resultColors = map[string]string{
	"success":      ansiGreen,
	"redirect":     ansiCyan,
	"client_error": ansiYellow,
	"server_error": ansiRed,
}

func intValue(v slog.Value) (int64, bool) {
	switch v.Kind() {
	case slog.KindInt64:
		return v.Int64(), true
	case slog.KindUint64:
		if u := v.Uint64(); u <= 1<<63-1 {
			return int64(u), true
		}
	case slog.KindFloat64:
		return int64(v.Float64()), true
	case slog.KindString:
		n, err := strconv.ParseInt(strings.TrimSpace(v.String()), 10, 64)
		return n, err == nil
	}
	return 0, false
}

func plainValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
	}
	return v.String()
}

func quoteValue(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\r\n\"=") {
		return strconv.Quote(s)
	}
	return s
}
