package task

import (
	"context"
	"log/slog"

	"github.com/zoobzio/clockz"

	"pipeflow/internal/logging"
	"pipeflow/internal/subprocess"
	"pipeflow/internal/telemetry"
	"pipeflow/internal/transform"
)

// ProcessRunner runs another process in-process and returns its output.
type ProcessRunner interface {
	Run(ctx context.Context, code string, input any, runContext map[string]any) (any, error)
}

// Services are the collaborators handed to task factories.
type Services struct {
	Transformers *transform.Registry
	Processes    ProcessRunner
	Logger       *slog.Logger
	Clock        clockz.Clock
	Metrics      *telemetry.Metrics

	// Subprocess holds the pool defaults; Command builds the child process
	// for a sub-process code.
	Subprocess subprocess.Config
	Command    subprocess.CommandFunc
}

func (s *Services) GetLogger() *slog.Logger {
	if s == nil || s.Logger == nil {
		return logging.L()
	}
	return s.Logger
}

func (s *Services) GetClock() clockz.Clock {
	if s == nil || s.Clock == nil {
		return clockz.RealClock
	}
	return s.Clock
}
