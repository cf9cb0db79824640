// Package logging provides structured logging with slog for plainid, plus
// the run journal.
//
// Diagnostic logs go to stderr, stdout or a rotating file in text or JSON
// form. Long ciphertexts and candidate texts are elided from log attributes
// so a debug log stays readable.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"plainid/internal/config"
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

// Format selects the handler.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Output names where log lines are written.
type Output string

const (
	OutputStderr Output = "stderr"
	OutputStdout Output = "stdout"
	OutputFile   Output = "file"
	OutputBoth   Output = "both" // stderr and file
)

// MaxTextAttr is the longest string attribute logged verbatim.
const MaxTextAttr = 64

// Config holds the logging configuration.
type Config struct {
	Level  Level
	Format Format
	Output Output

	// Writer, when set, replaces Output.
	Writer io.Writer

	// FilePath and Rotation apply when Output includes a file.
	FilePath string
	Rotation Rotation

	// Component is attached to every line.
	Component string
}

// FromSettings converts the [logging] section of the tool configuration.
// An output that is not a known stream name is taken as a file path.
func FromSettings(s config.LoggingConfig) (*Config, error) {
	level, err := ParseLevel(s.Level)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Level:     level,
		Format:    FormatText,
		Output:    Output(strings.ToLower(s.Output)),
		FilePath:  s.FilePath,
		Component: "plainid",
		Rotation: Rotation{
			MaxBytes:   int64(s.MaxSizeMB) << 20,
			Daily:      true,
			MaxBackups: s.MaxBackups,
			MaxAge:     time.Duration(s.MaxAgeDays) * 24 * time.Hour,
			Compress:   s.Compress,
		},
	}
	if strings.EqualFold(s.Format, "json") {
		cfg.Format = FormatJSON
	}

	switch cfg.Output {
	case OutputStderr, OutputStdout, OutputFile, OutputBoth:
	default:
		cfg.Output = OutputFile
		cfg.FilePath = s.Output
	}
	return cfg, nil
}

// Logger wraps slog.Logger and owns the log file, if any.
type Logger struct {
	*slog.Logger
	file *RotatingFile
}

// New creates a Logger. A nil cfg logs info and above as text to stderr.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = &Config{Level: LevelInfo, Format: FormatText, Output: OutputStderr}
	}

	l := &Logger{}
	w, err := l.writer(cfg)
	if err != nil {
		return nil, fmt.Errorf("setup writers: %w", err)
	}

	opts := &slog.HandlerOptions{
		Level:       cfg.Level,
		ReplaceAttr: elideText,
	}

	var handler slog.Handler
	if cfg.Format == FormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	if cfg.Component != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("component", cfg.Component)})
	}

	l.Logger = slog.New(handler)
	return l, nil
}

func (l *Logger) writer(cfg *Config) (io.Writer, error) {
	if cfg.Writer != nil {
		return cfg.Writer, nil
	}

	switch cfg.Output {
	case OutputStdout:
		return os.Stdout, nil
	case OutputFile, OutputBoth:
		f, err := OpenRotating(cfg.FilePath, cfg.Rotation)
		if err != nil {
			return nil, err
		}
		l.file = f
		if cfg.Output == OutputBoth {
			return io.MultiWriter(os.Stderr, f), nil
		}
		return f, nil
	default:
		return os.Stderr, nil
	}
}

// elideText shortens long string attributes to a prefix and their length.
func elideText(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindString {
		return a
	}
	s := a.Value.String()
	if utf8.RuneCountInString(s) <= MaxTextAttr {
		return a
	}
	r := []rune(s)
	a.Value = slog.StringValue(fmt.Sprintf("%s... (%d chars)", string(r[:MaxTextAttr-16]), len(r)))
	return a
}

// SetDefault makes l the process-wide slog default.
func SetDefault(l *Logger) {
	slog.SetDefault(l.Logger)
}

func (l *Logger) derive(logger *slog.Logger) *Logger {
	return &Logger{Logger: logger, file: l.file}
}

// WithRunID returns a logger tagged with a run ID.
func (l *Logger) WithRunID(id string) *Logger {
	return l.derive(l.Logger.With(slog.String("run_id", id)))
}

// WithComponent returns a logger with a different component name.
func (l *Logger) WithComponent(name string) *Logger {
	return l.derive(l.Logger.With(slog.String("component", name)))
}

// WithContext returns a logger tagged with the context's run ID, if any.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if id := RunIDFromContext(ctx); id != "" {
		return l.WithRunID(id)
	}
	return l
}

// Close closes the log file. Derived loggers share it, so only the root
// logger should be closed.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

type contextKey struct{}

// ContextWithRunID returns a context carrying the run ID.
func ContextWithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// RunIDFromContext extracts the run ID from ctx.
func RunIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// ParseLevel parses a string into a log level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}
