// Package logging provides structured logging with slog for smartclip.
//
// Loggers write text or JSON to the console, a rotating file, or both. The
// level can be changed at runtime and applies to every logger derived with
// WithComponent. Clipboard payloads and secrets are redacted by attribute
// key, so a careless log call cannot copy a password into a log file.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// Level represents a logging level.
type Level = slog.Level

// Log levels.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

var levelNames = map[string]Level{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
}

// ParseLevel parses debug, info, warn (or warning) and error.
func ParseLevel(s string) (Level, error) {
	if level, ok := levelNames[strings.ToLower(s)]; ok {
		return level, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level: %q", s)
}

// LevelString is the inverse of ParseLevel.
func LevelString(level Level) string {
	switch {
	case level <= LevelDebug:
		return "debug"
	case level <= LevelInfo:
		return "info"
	case level <= LevelWarn:
		return "warn"
	default:
		return "error"
	}
}

// Format represents the output format for logs.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// ParseFormat parses "text" or "json". Empty means text.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("unknown log format: %q", s)
	}
}

// Config holds the logging configuration.
type Config struct {
	Level  Level
	Format Format

	// Output is "stdout", "stderr", "file" or "both" (stderr and file).
	Output string

	// FilePath is the log file when Output includes a file.
	FilePath string

	// Rotation: megabytes per file, days to keep, files to keep, gzip old files.
	MaxSize    int64
	MaxAge     int
	MaxBackups int
	Compress   bool

	AddSource bool
	Component string

	// Writer overrides Output when set.
	Writer io.Writer
}

// DefaultConfig logs info and above to stderr.
func DefaultConfig() *Config {
	return &Config{
		Level:      LevelInfo,
		Format:     FormatText,
		Output:     "stderr",
		FilePath:   DefaultLogPath(),
		MaxSize:    10,
		MaxAge:     14,
		MaxBackups: 3,
		Compress:   true,
		Component:  "smartclip",
	}
}

// DefaultLogPath returns the platform log location.
func DefaultLogPath() string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Logs", "smartclip", "smartclip.log")
	case "windows":
		base := os.Getenv("LOCALAPPDATA")
		if base == "" {
			base = os.Getenv("APPDATA")
		}
		return filepath.Join(base, "smartclip", "logs", "smartclip.log")
	default:
		state := os.Getenv("XDG_STATE_HOME")
		if state == "" {
			state = filepath.Join(home, ".local", "state")
		}
		return filepath.Join(state, "smartclip", "smartclip.log")
	}
}

// Logger is a slog.Logger with a shared runtime level and an optional
// rotating file.
type Logger struct {
	*slog.Logger

	// Shared by every logger derived from the same New call.
	out *output
}

type output struct {
	level   *slog.LevelVar
	rotator *FileRotator
	mu      sync.Mutex
	closed  bool
}

var (
	defaultMu     sync.Mutex
	defaultLogger *Logger
)

// Default returns the process-wide logger, creating a stderr logger on
// first use.
func Default() *Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		l, err := New(DefaultConfig())
		if err != nil {
			l = &Logger{Logger: slog.Default(), out: &output{level: new(slog.LevelVar)}}
		}
		defaultLogger = l
	}
	return defaultLogger
}

// SetDefault installs l as the process-wide logger and as slog's default.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
	slog.SetDefault(l.Logger)
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	l, _ := New(&Config{Level: LevelError + 1, Writer: io.Discard})
	return l
}

// New creates a Logger. File output opens (and creates) the log file.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	out := &output{level: new(slog.LevelVar)}
	out.level.Set(cfg.Level)

	w, err := openWriter(cfg, out)
	if err != nil {
		return nil, fmt.Errorf("setup writers: %w", err)
	}

	opts := &slog.HandlerOptions{
		Level:     out.level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if shouldRedact(a.Key) {
				a.Value = slog.StringValue("[REDACTED]")
			}
			return a
		},
	}

	var h slog.Handler = slog.NewTextHandler(w, opts)
	if cfg.Format == FormatJSON {
		h = slog.NewJSONHandler(w, opts)
	}
	if cfg.Component != "" {
		h = h.WithAttrs([]slog.Attr{slog.String("component", cfg.Component)})
	}
	return &Logger{Logger: slog.New(h), out: out}, nil
}

func openWriter(cfg *Config, out *output) (io.Writer, error) {
	if cfg.Writer != nil {
		return cfg.Writer, nil
	}
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		return os.Stdout, nil
	case "file", "both":
		r, err := NewFileRotator(cfg)
		if err != nil {
			return nil, err
		}
		out.rotator = r
		if strings.EqualFold(cfg.Output, "both") {
			return io.MultiWriter(os.Stderr, r), nil
		}
		return r, nil
	default:
		return os.Stderr, nil
	}
}

// Keys that carry clipboard contents; redacted on an exact match so that
// "text_len" or "context" still log.
var payloadKeys = map[string]bool{
	"text":    true,
	"payload": true,
	"content": true,
	"preview": true,
	"image":   true,
}

// Fragments of secret-bearing keys; redacted wherever they appear.
var sensitiveKeys = []string{
	"password", "secret", "token", "credential", "cookie", "api_key", "apikey",
}

func shouldRedact(key string) bool {
	key = strings.ToLower(key)
	if payloadKeys[key] {
		return true
	}
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

// SetLevel changes the minimum level of this logger and every logger
// derived from it.
func (l *Logger) SetLevel(level Level) {
	l.out.level.Set(level)
}

// GetLevel returns the current minimum level.
func (l *Logger) GetLevel() Level {
	return l.out.level.Level()
}

// WithComponent returns a logger tagged with the component name.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("component", name)), out: l.out}
}

// Close closes the log file. Derived loggers share the file, so closing any
// of them closes it for all; later calls are no-ops.
func (l *Logger) Close() error {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	if l.out.closed || l.out.rotator == nil {
		return nil
	}
	l.out.closed = true
	return l.out.rotator.Close()
}
