package tasks

import (
	"context"

	"pipeflow/internal/options"
	"pipeflow/internal/property"
	"pipeflow/internal/state"
)

// Constant outputs a copy of its configured value for every record.
type Constant struct{}

func (*Constant) Options() options.Schema {
	return options.Schema{{Name: "value", Kind: options.Any}}
}

func (*Constant) Execute(_ context.Context, st *state.State) error {
	st.SetOutput(property.Clone(st.Options()["value"]))
	return nil
}

// ConstantIterable emits each configured value as a separate record. It is
// typically a root task feeding fixtures into a process.
type ConstantIterable struct {
	cursor
}

func (*ConstantIterable) Options() options.Schema {
	return options.Schema{{Name: "values", Kind: options.List, Required: true}}
}

func (t *ConstantIterable) Execute(_ context.Context, st *state.State) error {
	return t.emit(st, func() ([]any, error) {
		values, _ := st.Options()["values"].([]any)
		return property.Clone(values).([]any), nil
	})
}

func (t *ConstantIterable) Next(*state.State) bool { return t.next() }
