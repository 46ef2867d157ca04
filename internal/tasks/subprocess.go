package tasks

import (
	"context"
	"errors"
	"fmt"

	"pipeflow/internal/options"
	"pipeflow/internal/record"
	"pipeflow/internal/state"
	"pipeflow/internal/subprocess"
	"pipeflow/internal/task"
)

// Subprocess hands every record to a child process running the configured
// process code. A failed child stops the run.
type Subprocess struct {
	svc  *task.Services
	pool *subprocess.Pool
}

func (*Subprocess) Options() options.Schema {
	return options.Schema{
		{Name: "process", Kind: options.String, Required: true},
		{Name: "max_processes", Kind: options.Int},
		{Name: "sleep_interval", Kind: options.Duration},
		{Name: "sleep_interval_after_launch", Kind: options.Duration},
		{Name: "sleep_on_finalize_interval", Kind: options.Duration},
		{Name: "kill_grace_period", Kind: options.Duration},
	}
}

func (t *Subprocess) Initialize(_ context.Context, st *state.State) error {
	if t.svc == nil || t.svc.Command == nil {
		return errors.New("no subprocess command configured")
	}
	// Task options override the engine-wide pool settings.
	cfg := t.svc.Subprocess.Normalize()
	if err := options.Decode(st.Options(), &cfg); err != nil {
		return err
	}
	t.pool = subprocess.NewPool(cfg, t.svc.Command).
		WithClock(t.svc.GetClock()).
		WithMetrics(t.svc.Metrics).
		WithLogger(t.svc.GetLogger())
	return nil
}

func (t *Subprocess) Execute(ctx context.Context, st *state.State) error {
	if t.pool == nil {
		if err := t.Initialize(ctx, st); err != nil {
			return err
		}
	}
	code, _ := st.Options()["process"].(string)
	b, err := record.Encode(st.Input())
	if err != nil {
		return err
	}
	if err := t.pool.Launch(ctx, code, b); err != nil {
		return t.fail(st, err)
	}
	st.SetOutput(st.Input())
	return nil
}

// Finalize waits for the remaining children.
func (t *Subprocess) Finalize(ctx context.Context, st *state.State) error {
	if t.pool == nil {
		return nil
	}
	if err := t.pool.Drain(ctx); err != nil {
		return t.fail(st, err)
	}
	return nil
}

// fail stops the run on a child failure. Other errors are returned.
func (t *Subprocess) fail(st *state.State, err error) error {
	var exit *subprocess.ExitError
	if !errors.As(err, &exit) {
		return err
	}
	ec := st.ErrorContext()
	ec.Set("subprocess", exit.Code)
	ec.Set("pid", exit.PID)
	ec.Set("exit_code", exit.ExitCode)
	if exit.Stderr != "" {
		ec.Set("stderr", exit.Stderr)
	}
	st.Stop(fmt.Errorf("subprocess failed: %w", err))
	return nil
}
