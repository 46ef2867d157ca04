package tasks

import (
	"context"
	"errors"

	"pipeflow/internal/condition"
	"pipeflow/internal/options"
	"pipeflow/internal/state"
)

// Stop halts the run on the first record matching its condition (every
// record when no condition is set) and fails it, with the error message as
// the run exception when one is set. Other records pass through.
type Stop struct {
	cond *condition.Condition
}

func (*Stop) Options() options.Schema {
	return options.Schema{
		{Name: "condition", Kind: options.Any},
		{Name: "error", Kind: options.String, Default: ""},
	}
}

func (t *Stop) Initialize(_ context.Context, st *state.State) error {
	c, err := condition.Parse(st.Options()["condition"])
	if err != nil {
		return err
	}
	t.cond = c
	return nil
}

func (t *Stop) Execute(ctx context.Context, st *state.State) error {
	if t.cond == nil {
		if err := t.Initialize(ctx, st); err != nil {
			return err
		}
	}
	if !t.cond.Evaluate(st.Input()) {
		st.SetOutput(st.Input())
		return nil
	}
	var err error
	if msg, _ := st.Options()["error"].(string); msg != "" {
		err = errors.New(msg)
	}
	st.Stop(err)
	return nil
}
