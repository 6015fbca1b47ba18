package logger

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

const (
	ansiReset   = "\033[0m"
	ansiRed     = "\033[31m"
	ansiGreen   = "\033[32m"
	ansiYellow  = "\033[33m"
	ansiBlue    = "\033[34m"
	ansiMagenta = "\033[35m"
	ansiCyan    = "\033[36m"
	ansiGray    = "\033[37m"
	ansiBold    = "\033[1m"
	ansiDim     = "\033[2m"
)

// PrettyHandler writes one colored line per record:
//
//	15:04:05.000 INF [component] message key=value ...
type PrettyHandler struct {
	opts   slog.HandlerOptions
	mu     *sync.Mutex
	w      io.Writer
	attrs  []slog.Attr // pre-qualified with their group path
	prefix string      // group path for attrs added later, "a.b."
}

// NewPrettyHandler creates a PrettyHandler. nil opts means info level.
func NewPrettyHandler(w io.Writer, opts *slog.HandlerOptions) *PrettyHandler {
	h := &PrettyHandler{mu: &sync.Mutex{}, w: w}
	if opts != nil {
		h.opts = *opts
	}
	return h
}

// Enabled reports whether records at level are written.
func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	min := slog.LevelInfo
	if h.opts.Level != nil {
		min = h.opts.Level.Level()
	}
	return level >= min
}

// Handle formats and writes r.
func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	var component string
	fields := make([]slog.Attr, 0, len(h.attrs)+r.NumAttrs())

	collect := func(a slog.Attr) {
		a = h.replace(a)
		switch a.Key {
		case "":
		case ComponentKey:
			component = a.Value.String()
		default:
			fields = append(fields, a)
		}
	}
	for _, a := range h.attrs {
		collect(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		a.Key = h.prefix + a.Key
		collect(a)
		return true
	})

	var b line
	b.paint(ansiDim, r.Time.Format("15:04:05.000"))
	b.space()
	name, color := levelLabel(r.Level)
	b.paint(color, name)
	b.space()
	if component != "" {
		b.paint(ansiBlue, "["+component+"] ")
	}
	if h.opts.AddSource && r.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		b.paint(ansiDim, filepath.Base(frame.File)+":"+strconv.Itoa(frame.Line))
		b.space()
	}
	b.paint(ansiBold, r.Message)

	if len(fields) > 0 {
		pairs := make([]string, len(fields))
		for i, a := range fields {
			pairs[i] = a.Key + "=" + formatValue(a.Value)
		}
		b.space()
		b.paint(ansiCyan, strings.Join(pairs, " "))
	}
	b = append(b, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(b)
	return err
}

// replace applies ReplaceAttr to the bare key, so redaction also works
// inside groups.
func (h *PrettyHandler) replace(a slog.Attr) slog.Attr {
	if h.opts.ReplaceAttr == nil {
		return a
	}
	group, key := "", a.Key
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		group, key = key[:i+1], key[i+1:]
	}
	a.Key = key
	a = h.opts.ReplaceAttr(nil, a)
	if a.Key != "" {
		a.Key = group + a.Key
	}
	return a
}

// WithAttrs returns a handler that adds attrs to every record.
func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		a.Key = h.prefix + a.Key
		next.attrs = append(next.attrs, a)
	}
	return &next
}

// WithGroup returns a handler whose later attributes are keyed name.key.
func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

// line accumulates one output line.
type line []byte

func (b *line) paint(color, s string) {
	*b = append(*b, color...)
	*b = append(*b, s...)
	*b = append(*b, ansiReset...)
}

func (b *line) space() { *b = append(*b, ' ') }

func levelLabel(level slog.Level) (string, string) {
	switch {
	case level < slog.LevelInfo:
		return "DBG", ansiMagenta
	case level < slog.LevelWarn:
		return "INF", ansiGreen
	case level < slog.LevelError:
		return "WRN", ansiYellow
	case level == slog.LevelError:
		return "ERR", ansiRed
	}
	return level.String(), ansiGray
}

func formatValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if strings.ContainsAny(s, " \t\"=") {
			return strconv.Quote(s)
		}
		return s
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	}
	return v.String()
}
