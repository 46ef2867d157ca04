package tasks

import (
	"context"

	"pipeflow/internal/options"
	"pipeflow/internal/state"
	"pipeflow/internal/task"
	"pipeflow/internal/transform"
)

// Transformer applies a transformer chain to every record.
type Transformer struct {
	svc   *task.Services
	chain transform.Chain
	ready bool
}

func (*Transformer) Options() options.Schema {
	return task.ErrorOptions.With(
		options.Option{Name: "transformers", Kind: options.Any},
	)
}

func (t *Transformer) Initialize(_ context.Context, st *state.State) error {
	return t.compose(st)
}

func (t *Transformer) compose(st *state.State) error {
	if t.svc == nil || t.svc.Transformers == nil {
		return transform.ErrUnknownTransformer
	}
	chain, err := transform.Compose(t.svc.Transformers, st.Options()["transformers"], st.Context())
	if err != nil {
		return err
	}
	t.chain, t.ready = chain, true
	return nil
}

func (t *Transformer) Execute(_ context.Context, st *state.State) error {
	if !t.ready {
		if err := t.compose(st); err != nil {
			return err
		}
	}
	out, err := t.chain.Apply(st.Input())
	if err != nil {
		return task.HandleError(st, t.svc.GetLogger(), err)
	}
	st.SetOutput(out)
	return nil
}
