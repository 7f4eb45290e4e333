// Package logging builds the application logger from its configuration.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/georgepadayatti/pdflogo/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns a logger writing to the configured output. The closer
// releases a log file and must be called when logging is done; for the
// standard streams it does nothing. A nil cfg uses the defaults.
//
// When Output is a file and Console names a standard stream, entries go to
// both.
func New(cfg *config.LoggingConfig) (*slog.Logger, io.Closer, error) {
	if cfg == nil {
		cfg = &config.LoggingConfig{}
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var closer io.Closer = nopCloser{}
	out := stdStream(cfg.Output)
	if out == nil {
		file := &lumberjack.Logger{
			Filename:   cfg.Output,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
		out, closer = file, file
		if console := stdStream(cfg.Console); console != nil {
			out = io.MultiWriter(file, console)
		}
	}

	return slog.New(newHandler(out, cfg.Format, level)), closer, nil
}

// stdStream returns the standard stream called name, or nil. Tests replace
// the streams through stdout and stderr.
func stdStream(name string) io.Writer {
	switch name {
	case "stderr":
		return stderr
	case "stdout":
		return stdout
	}
	return nil
}

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func newHandler(out io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(out, opts)
	}
	return slog.NewTextHandler(out, opts)
}

// ParseLevel converts a configured level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, config.NewConfigError("logging.level", fmt.Sprintf("unknown level %q", name))
}
