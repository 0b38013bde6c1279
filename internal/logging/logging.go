// Package logging wraps log/slog for cogtask.
//
// A Logger writes text or JSON to stdout, stderr, a size-rotated file, or
// stderr and the file together. Identifying attributes are redacted so
// logs can be shared without personal data.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
)

type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// ParseLevel accepts slog level names case-insensitively, with an
// optional offset such as "info+2", and "warning" as an alias of warn.
func ParseLevel(s string) (Level, error) {
	if strings.EqualFold(s, "warning") {
		return LevelWarn, nil
	}
	var l Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}

// LevelString is the lower-case name of a base level. Levels between
// the named ones round down.
func LevelString(l Level) string {
	switch {
	case l >= LevelError:
		return "error"
	case l >= LevelWarn:
		return "warn"
	case l >= LevelInfo:
		return "info"
	default:
		return "debug"
	}
}

type Format int

const (
	FormatText Format = iota
	FormatJSON
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	}
	return FormatText, fmt.Errorf("unknown log format %q", s)
}

// Redacted replaces the value of identifying attributes.
const Redacted = "[REDACTED]"

// DefaultRedactKeys are the identifying attribute keys.
var DefaultRedactKeys = []string{"participant", "participant_id", "subject"}

type Config struct {
	Level  Level
	Format Format

	// Output is "stdout", "stderr", "file" or "both". Writer, when set,
	// takes precedence.
	Output string
	Writer io.Writer

	FilePath   string
	MaxSize    int64 // megabytes
	MaxBackups int

	AddSource bool
	Component string

	// RedactKeys match the last segment of a key, ignoring case.
	RedactKeys []string
}

func DefaultConfig() *Config {
	return &Config{
		Level:      LevelInfo,
		Output:     "stderr",
		FilePath:   defaultLogPath(),
		MaxSize:    10,
		MaxBackups: 3,
		Component:  "cogtask",
		RedactKeys: DefaultRedactKeys,
	}
}

func defaultLogPath() string {
	if dir := os.Getenv("COGTASK_DATA_DIR"); dir != "" {
		return filepath.Join(dir, "logs", "cogtask.log")
	}
	state := os.Getenv("XDG_STATE_HOME")
	if state == "" {
		home, _ := os.UserHomeDir()
		state = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(state, "cogtask", "cogtask.log")
}

// Logger is a slog.Logger that remembers the file it writes to, if any.
// Derived loggers share the file.
type Logger struct {
	*slog.Logger
	file *FileRotator
}

func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	w, file, err := openOutput(cfg)
	if err != nil {
		return nil, fmt.Errorf("open log output: %w", err)
	}

	opts := &slog.HandlerOptions{
		Level:       cfg.Level,
		AddSource:   cfg.AddSource,
		ReplaceAttr: redactAttr(cfg.RedactKeys),
	}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if cfg.Format == FormatJSON {
		h = slog.NewJSONHandler(w, opts)
	}

	s := slog.New(h)
	if cfg.Component != "" {
		s = s.With(slog.String("component", cfg.Component))
	}
	return &Logger{Logger: s, file: file}, nil
}

func openOutput(cfg *Config) (io.Writer, *FileRotator, error) {
	if cfg.Writer != nil {
		return cfg.Writer, nil, nil
	}
	out := strings.ToLower(cfg.Output)
	switch out {
	case "stdout":
		return os.Stdout, nil, nil
	case "", "stderr":
		return os.Stderr, nil, nil
	case "file", "both":
	default:
		return nil, nil, fmt.Errorf("unknown output %q", cfg.Output)
	}

	f, err := NewFileRotator(cfg.FilePath, cfg.MaxSize, cfg.MaxBackups)
	if err != nil {
		return nil, nil, err
	}
	if out == "both" {
		return io.MultiWriter(os.Stderr, f), f, nil
	}
	return f, f, nil
}

func redactAttr(keys []string) func([]string, slog.Attr) slog.Attr {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[strings.ToLower(k)] = struct{}{}
	}
	return func(_ []string, a slog.Attr) slog.Attr {
		key := a.Key
		if i := strings.LastIndexByte(key, '.'); i >= 0 {
			key = key[i+1:]
		}
		if _, ok := set[strings.ToLower(key)]; ok {
			a.Value = slog.StringValue(Redacted)
		}
		return a
	}
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), file: l.file}
}

// WithComponent overrides the component attribute.
func (l *Logger) WithComponent(name string) *Logger {
	return l.with("component", name)
}

func (l *Logger) WithSession(id string) *Logger {
	return l.with("session_id", id)
}

// WithContext tags the logger with the session id carried by ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if id := SessionIDFromContext(ctx); id != "" {
		return l.WithSession(id)
	}
	return l
}

func (l *Logger) Sync() error {
	if l.file == nil {
		return nil
	}
	return l.file.Sync()
}

func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

type sessionKey struct{}

func ContextWithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

func SessionIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

var defaultLogger atomic.Pointer[Logger]

// Default returns the logger installed by SetDefault, or one wrapping
// slog's default.
func Default() *Logger {
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	return &Logger{Logger: slog.Default()}
}

// SetDefault installs l as the package and slog default.
func SetDefault(l *Logger) {
	defaultLogger.Store(l)
	slog.SetDefault(l.Logger)
}
