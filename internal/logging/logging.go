// Package logging builds the process logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ashureev/mock-interview/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns a JSON logger writing to out and, when cfg.File is set, to a
// size-rotated file. The returned closer releases the file.
func New(cfg config.LogConfig, out io.Writer) (*slog.Logger, io.Closer, error) {
	if out == nil {
		out = os.Stdout
	}

	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, nil, err
		}
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(out, rotating)
		closer = rotating
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: cfg.Level})
	return slog.New(handler), closer, nil
}
