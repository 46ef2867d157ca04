package tasks

import (
	"context"
	"errors"

	"pipeflow/internal/options"
	"pipeflow/internal/state"
	"pipeflow/internal/task"
)

var errNoProcessRunner = errors.New("no process runner configured")

// Process runs another process in-process for every record and outputs
// the result of its end_point.
type Process struct {
	svc *task.Services
}

func (*Process) Options() options.Schema {
	return task.ErrorOptions.With(
		options.Option{Name: "process", Kind: options.String, Required: true},
	)
}

func (t *Process) Initialize(context.Context, *state.State) error {
	if t.svc == nil || t.svc.Processes == nil {
		return errNoProcessRunner
	}
	return nil
}

func (t *Process) Execute(ctx context.Context, st *state.State) error {
	if t.svc == nil || t.svc.Processes == nil {
		return errNoProcessRunner
	}
	code, _ := st.Options()["process"].(string)
	out, err := t.svc.Processes.Run(ctx, code, st.Input(), st.Context())
	if err != nil {
		st.ErrorContext().Set("process", code)
		return task.HandleError(st, t.svc.GetLogger(), err)
	}
	st.SetOutput(out)
	return nil
}
