package logging

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
)

type Options struct {
	Level string
	JSON  bool
	// Writer defaults to stderr; stdout carries run output.
	Writer io.Writer
}

var def atomic.Value

func init() {
	cfg := &slog.HandlerOptions{Level: slog.LevelInfo}
	h := slog.NewTextHandler(os.Stderr, cfg)
	def.Store(slog.New(h))
}

func Configure(opts Options) {
	lvl := parseLevel(opts.Level)
	cfg := &slog.HandlerOptions{Level: lvl}
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	var h slog.Handler
	if opts.JSON {
		h = slog.NewJSONHandler(w, cfg)
	} else {
		h = slog.NewTextHandler(w, cfg)
	}
	def.Store(slog.New(h))
}

func parseLevel(s string) slog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
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

func L() *slog.Logger {
	l, _ := def.Load().(*slog.Logger)
	return l
}

// FromEnv reads PIPEFLOW_LOG_LEVEL and PIPEFLOW_LOG_JSON over base.
func FromEnv(base Options) Options {
	if lvl := os.Getenv("PIPEFLOW_LOG_LEVEL"); lvl != "" {
		base.Level = lvl
	}
	if b, err := strconv.ParseBool(strings.TrimSpace(os.Getenv("PIPEFLOW_LOG_JSON"))); err == nil {
		base.JSON = b
	}
	return base
}
