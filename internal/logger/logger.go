package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/BenjaminSRussell/urlmon/internal/types"
)

// Format selects the log line encoding
type Format int

const (
	FormatConsole Format = iota
	FormatJSON
)

// ParseFormat maps a config value to a Format; unknown values fall back to console
func ParseFormat(s string) Format {
	if strings.EqualFold(s, "json") {
		return FormatJSON
	}
	return FormatConsole
}

// Config holds logger settings
type Config struct {
	Level      zerolog.Level
	Format     Format
	Output     io.Writer
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
}

// DefaultConfig logs info and above to stderr
func DefaultConfig() Config {
	return Config{
		Level:      zerolog.InfoLevel,
		Format:     FormatConsole,
		Output:     os.Stderr,
		MaxSizeMB:  10,
		MaxBackups: 3,
	}
}

// Builder provides a fluent interface for building loggers
type Builder struct {
	config Config
	err    error
}

// NewBuilder creates a builder with the default configuration
func NewBuilder() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithLevel sets the minimum level by name
func (b *Builder) WithLevel(level string) *Builder {
	if level == "" {
		return b
	}
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		b.err = fmt.Errorf("invalid log level %q: %w", level, err)
		return b
	}
	b.config.Level = parsed
	return b
}

// WithFormat sets the output format
func (b *Builder) WithFormat(format Format) *Builder {
	b.config.Format = format
	return b
}

// WithOutput sets the console destination
func (b *Builder) WithOutput(w io.Writer) *Builder {
	b.config.Output = w
	return b
}

// WithFile adds a rotating log file
func (b *Builder) WithFile(path string, maxSizeMB, maxBackups int) *Builder {
	b.config.FilePath = path
	if maxSizeMB > 0 {
		b.config.MaxSizeMB = maxSizeMB
	}
	if maxBackups > 0 {
		b.config.MaxBackups = maxBackups
	}
	return b
}

// Build creates the logger
func (b *Builder) Build() (*Logger, error) {
	if b.err != nil {
		return nil, b.err
	}

	var writers []io.Writer
	var closers []io.Closer

	if b.config.Output != nil {
		writers = append(writers, b.formatWriter(b.config.Output))
	}

	if b.config.FilePath != "" {
		file := &lumberjack.Logger{
			Filename:   b.config.FilePath,
			MaxSize:    b.config.MaxSizeMB,
			MaxBackups: b.config.MaxBackups,
		}
		// Files always get JSON lines
		writers = append(writers, file)
		closers = append(closers, file)
	}

	if len(writers) == 0 {
		return &Logger{zerolog: zerolog.Nop()}, nil
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(b.config.Level).
		With().
		Timestamp().
		Logger()

	return &Logger{zerolog: zl, closers: closers}, nil
}

func (b *Builder) formatWriter(w io.Writer) io.Writer {
	if b.config.Format == FormatJSON {
		return w
	}
	return zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
		NoColor:    true,
	}
}

// FromConfig builds a logger from the application log settings
func FromConfig(cfg types.LogConfig, console io.Writer) (*Logger, error) {
	b := NewBuilder().
		WithLevel(cfg.Level).
		WithFormat(ParseFormat(cfg.Format)).
		WithOutput(console)
	if cfg.File != "" {
		b.WithFile(cfg.File, cfg.MaxSizeMB, cfg.MaxBackups)
	}
	return b.Build()
}

// Logger wraps a zerolog logger and the files it writes to
type Logger struct {
	zerolog zerolog.Logger
	closers []io.Closer
}

// Zerolog returns the underlying logger
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zerolog
}

// Close releases log files
func (l *Logger) Close() error {
	var firstErr error
	for _, c := range l.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
