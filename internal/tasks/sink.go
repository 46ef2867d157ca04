package tasks

import (
	"context"
	"fmt"

	"pipeflow/internal/options"
	"pipeflow/internal/property"
	"pipeflow/internal/state"
	"pipeflow/internal/task"
	"pipeflow/sink"
	_ "pipeflow/sink/kafka"
	_ "pipeflow/sink/stdout"
)

// Sink pushes every record to a sink adapter and forwards it unchanged.
type Sink struct {
	svc     *task.Services
	adapter sink.Adapter
}

func (*Sink) Options() options.Schema {
	return task.ErrorOptions.With(
		options.Option{Name: "adapter", Kind: options.String, Required: true},
		options.Option{Name: "config", Kind: options.Map},
		options.Option{Name: "path", Kind: options.String, Default: ""},
	)
}

func (t *Sink) Initialize(_ context.Context, st *state.State) error {
	name, _ := st.Options()["adapter"].(string)
	a, err := sink.NewAdapter(name)
	if err != nil {
		return err
	}
	cfg, _ := st.Options()["config"].(map[string]any)
	if err := a.Configure(cfg); err != nil {
		return fmt.Errorf("sink %q: %w", name, err)
	}
	t.adapter = a
	return nil
}

func (t *Sink) Execute(ctx context.Context, st *state.State) error {
	if t.adapter == nil {
		if err := t.Initialize(ctx, st); err != nil {
			return err
		}
	}
	rec := st.Input()
	if path, _ := st.Options()["path"].(string); path != "" {
		rec = property.GetOrNil(rec, path)
	}
	if err := t.adapter.Push(rec); err != nil {
		return task.HandleError(st, t.svc.GetLogger(), err)
	}
	st.SetOutput(st.Input())
	return nil
}

// Flush flushes buffering adapters. It never emits a record.
func (t *Sink) Flush(_ context.Context, st *state.State) error {
	st.SetSkipped(true)
	if f, ok := t.adapter.(sink.Flusher); ok {
		return f.Flush()
	}
	return nil
}

func (t *Sink) Finalize(context.Context, *state.State) error {
	if t.adapter == nil {
		return nil
	}
	return t.adapter.Close()
}
