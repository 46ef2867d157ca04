package tasks

import (
	"context"

	"pipeflow/internal/options"
	"pipeflow/internal/state"
	"pipeflow/internal/task"
)

// Counter forwards records unchanged and logs how many it saw, every
// log_every records and once when the run finalizes.
type Counter struct {
	svc   *task.Services
	count int
}

func (*Counter) Options() options.Schema {
	return options.Schema{
		{Name: "log_every", Kind: options.Int, Default: 0},
	}
}

// Count is the number of records seen so far.
func (t *Counter) Count() int { return t.count }

func (t *Counter) Execute(_ context.Context, st *state.State) error {
	t.count++
	if every, _ := st.Options()["log_every"].(int); every > 0 && t.count%every == 0 {
		t.svc.GetLogger().Info("records counted", "count", t.count)
	}
	st.SetOutput(st.Input())
	return nil
}

func (t *Counter) Finalize(context.Context, *state.State) error {
	t.svc.GetLogger().Info("records counted", "count", t.count, "final", true)
	return nil
}
