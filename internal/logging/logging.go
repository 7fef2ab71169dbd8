// Package logging builds the process logger from configuration.
package logging

import (
	"io"
	"log/slog"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/rickgao/zato-client/internal/config"
)

// Logger is a configured logger together with the file it writes to, if any.
type Logger struct {
	*slog.Logger
	file io.Closer
}

// New creates a logger writing to console and, when cfg.File is set, to a
// rotating log file as well.
func New(cfg config.LogConfig, console io.Writer) *Logger {
	level := ParseLevel(cfg.Level)

	var out io.Writer = console
	var file io.Closer

	if cfg.File != "" {
		maxSize := cfg.MaxSizeMB
		if maxSize <= 0 {
			maxSize = config.DefaultLogMaxSizeMB
		}
		maxBackups := cfg.MaxBackups
		if maxBackups < 0 {
			maxBackups = config.DefaultLogMaxBackups
		}

		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    maxSize, // megabytes
			MaxBackups: maxBackups,
		}
		file = lj
		if console != nil {
			out = io.MultiWriter(console, lj)
		} else {
			out = lj
		}
	}
	if out == nil {
		out = io.Discard
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return &Logger{Logger: slog.New(handler), file: file}
}

// Close closes the log file.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// ParseLevel converts a level name to slog.Level. Unknown names select
// error, the quietest level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// WithComponent tags logger with a component name.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With("component", component)
}
