// Package logger builds the slog loggers used across dsein: colored
// single-line output in development, JSON in production.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const (
	formatJSON   = "json"
	formatPretty = "pretty"
)

// Attribute keys with special handling.
const (
	// ComponentKey is rendered as a [component] prefix by the pretty handler.
	ComponentKey = "component"
	// CodeKey carries invite codes and is masked when redaction is on.
	CodeKey = "code"
)

// Logger is the process logger. Subsystems receive a *slog.Logger from WithComponent.
type Logger struct {
	*slog.Logger
}

// Config holds logger configuration.
type Config struct {
	Writer      io.Writer // defaults to stdout
	Format      string    // "json" or "pretty"; derived from Environment when empty
	Environment string
	Level       slog.Level
	AddSource   bool
	// RedactCodes masks invite codes. Defaults to on in production.
	RedactCodes *bool
}

// New creates a logger from cfg.
func New(cfg Config) *Logger {
	w := cfg.Writer
	if w == nil {
		w = os.Stdout
	}

	production := cfg.Environment == "production"

	format := cfg.Format
	if format == "" {
		format = formatPretty
		if production {
			format = formatJSON
		}
	}

	redact := production
	if cfg.RedactCodes != nil {
		redact = *cfg.RedactCodes
	}

	opts := &slog.HandlerOptions{
		Level:       cfg.Level,
		AddSource:   cfg.AddSource,
		ReplaceAttr: replacer(redact),
	}

	var h slog.Handler = NewPrettyHandler(w, opts)
	if format == formatJSON {
		h = slog.NewJSONHandler(w, opts)
	}
	return &Logger{Logger: slog.New(h)}
}

// replacer trims source paths to the file name and, when redact is set,
// masks invite codes.
func replacer(redact bool) func([]string, slog.Attr) slog.Attr {
	return func(_ []string, a slog.Attr) slog.Attr {
		switch a.Key {
		case slog.SourceKey:
			if src, ok := a.Value.Any().(*slog.Source); ok {
				src.File = filepath.Base(src.File)
			}
		case CodeKey:
			if redact && a.Value.Kind() == slog.KindString {
				a.Value = slog.StringValue(RedactCode(a.Value.String()))
			}
		}
		return a
	}
}

// ParseLevel converts a level name to slog.Level. Unknown names mean info.
func ParseLevel(level string) slog.Level {
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// RedactCode keeps the first character after the last dash of an invite code
// and masks the rest, so logs can correlate codes without leaking them.
func RedactCode(code string) string {
	i := strings.LastIndexByte(code, '-')
	if i < 0 || i+1 >= len(code) {
		return "***"
	}
	return code[:i+2] + strings.Repeat("*", len(code)-i-2)
}

// WithComponent tags every record with the subsystem that wrote it.
func (l *Logger) WithComponent(name string) *slog.Logger {
	return l.With(slog.String(ComponentKey, name))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type ctxKey struct{}

// IntoContext stores l in ctx.
func IntoContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored in ctx, or fallback.
func FromContext(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return fallback
}
