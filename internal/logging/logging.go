// Package logging builds the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger construction.
type Options struct {
	Level      slog.Level
	Dir        string // empty disables file logging
	FileName   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// New returns a tint logger writing to stdout and, when Dir is set, to a
// rotating file. The returned closer releases the file handle.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	dir := strings.TrimSpace(opts.Dir)
	if dir == "" {
		return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			Level:      opts.Level,
			TimeFormat: time.RFC3339,
		})), nopCloser{}, nil
	}

	if opts.MaxSizeMB <= 0 || opts.MaxBackups <= 0 || opts.MaxAgeDays <= 0 {
		return nil, nil, fmt.Errorf("invalid log config: size=%d backups=%d age_days=%d",
			opts.MaxSizeMB, opts.MaxBackups, opts.MaxAgeDays)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}

	name := opts.FileName
	if name == "" {
		name = "raidlog.log"
	}
	file := &lumberjack.Logger{
		Filename:   filepath.Join(dir, name),
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}

	// Colors would end up as escape codes in the file.
	h := tint.NewHandler(io.MultiWriter(os.Stdout, file), &tint.Options{
		Level:      opts.Level,
		TimeFormat: time.RFC3339,
		NoColor:    true,
	})
	return slog.New(h), file, nil
}

// ParseLevel maps a config string to a slog level. Unknown values yield Info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
