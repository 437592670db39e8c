// Package logging builds the process logger.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	slogmulti "github.com/samber/slog-multi"
)

// New returns a logger for stderr that is also installed as the slog default.
// With format "text" the stderr output is colourised by tint, otherwise it is
// JSON. When logFile is set a JSON copy of every record is appended to it and
// the returned cleanup closes the file.
func New(level, format, logFile string) (*slog.Logger, func(), error) {
	lvl := parseLevel(level)
	handlers := []slog.Handler{consoleHandler(format, lvl)}
	cleanup := func() {}

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: lvl}))
		cleanup = func() { _ = f.Close() }
	}

	h := handlers[0]
	if len(handlers) > 1 {
		h = slogmulti.Fanout(handlers...)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger, cleanup, nil
}

func consoleHandler(format string, lvl slog.Level) slog.Handler {
	if format == "text" {
		return tint.NewHandler(os.Stderr, &tint.Options{Level: lvl, TimeFormat: time.DateTime})
	}
	return slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
