package tasks

import (
	"context"

	"pipeflow/internal/condition"
	"pipeflow/internal/options"
	"pipeflow/internal/state"
)

// Filter forwards the records matching its condition and skips the others.
type Filter struct {
	cond *condition.Condition
}

func (*Filter) Options() options.Schema {
	return options.Schema{
		{Name: "condition", Kind: options.Any},
		{Name: "invert", Kind: options.Bool, Default: false},
	}
}

func (t *Filter) Initialize(_ context.Context, st *state.State) error {
	c, err := condition.Parse(st.Options()["condition"])
	if err != nil {
		return err
	}
	t.cond = c
	return nil
}

func (t *Filter) Execute(ctx context.Context, st *state.State) error {
	if t.cond == nil {
		if err := t.Initialize(ctx, st); err != nil {
			return err
		}
	}
	invert, _ := st.Options()["invert"].(bool)
	if t.cond.Evaluate(st.Input()) == invert {
		st.SetSkipped(true)
		return nil
	}
	st.SetOutput(st.Input())
	return nil
}
