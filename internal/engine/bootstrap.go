package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pipeflow/internal/config"
	"pipeflow/internal/history"
	"pipeflow/internal/logging"
	"pipeflow/internal/subprocess"
	"pipeflow/internal/task"
	"pipeflow/internal/tasks"
	"pipeflow/internal/telemetry"
	"pipeflow/internal/transform"
	"pipeflow/internal/transport"
)

// Bootstrap wires an engine from cfg: logging, the process catalog, the
// default task and transformer catalogs, history and metrics. command
// starts the child process of the subprocess task.
func Bootstrap(cfg config.Engine, command subprocess.CommandFunc) (*Engine, error) {
	logging.Configure(logging.FromEnv(logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON}))

	// 1. process definitions
	catalog, err := config.LoadProcesses(cfg.ProcessesDir)
	if err != nil {
		return nil, fmt.Errorf("processes: %w", err)
	}

	// 2. catalogs
	taskRegistry := task.NewRegistry()
	tasks.RegisterDefaults(taskRegistry)
	transformers := transform.NewRegistry()
	transform.RegisterDefaults(transformers)

	// 3. history
	var store history.Store = history.NewMemoryStore()
	if cfg.History.Path != "" {
		store = history.NewDirStore(cfg.History.Path)
	}

	e := New(catalog, taskRegistry, task.Services{
		Transformers: transformers,
		Logger:       logging.L(),
		Metrics:      telemetry.NewMetrics(),
		Subprocess:   cfg.Subprocess,
		Command:      command,
	}, history.NewRecorder(store))

	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// Serve exposes the gRPC health service and /metrics, runs codes one after
// the other and keeps serving until ctx is done. A failed run is logged and
// does not stop the server.
func (e *Engine) Serve(ctx context.Context, cfg config.Engine, codes []string, runContext map[string]any) error {
	srv, err := transport.StartServer(cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	metrics := e.Metrics()
	if metrics == nil {
		metrics = telemetry.NewMetrics()
	}
	ms := telemetry.Expose(cfg.MetricsPort, metrics)

	go func() {
		<-ctx.Done()
		srv.SetServing(false)
		srv.Stop()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = ms.Shutdown(shutdown)
	}()

	go func() {
		srv.SetServing(true)
		for _, code := range codes {
			if _, err := e.Execute(ctx, code, nil, runContext); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				logging.L().Error("served run failed", "process", code, "err", err)
			}
		}
	}()

	return srv.Serve()
}
