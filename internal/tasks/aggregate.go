package tasks

import (
	"context"
	"fmt"

	"dario.cat/mergo"

	"pipeflow/internal/options"
	"pipeflow/internal/property"
	"pipeflow/internal/state"
	"pipeflow/internal/task"
)

// Aggregate collects every record into one list emitted once all upstream
// tasks are exhausted.
type Aggregate struct {
	items []any
}

func (t *Aggregate) Execute(_ context.Context, st *state.State) error {
	t.items = append(t.items, st.Input())
	return nil
}

func (t *Aggregate) Proceed(_ context.Context, st *state.State) error {
	if len(t.items) == 0 {
		st.SetSkipped(true)
		return nil
	}
	st.SetOutput(t.items)
	t.items = nil
	return nil
}

const (
	MergeUnion    = "union"
	MergeOverride = "override"
	MergeAppend   = "append"
)

// Merge folds mapping records into one mapping with merge_function:
// union keeps the first value of a key, override the last one, append
// overrides scalars and concatenates lists.
type Merge struct {
	svc    *task.Services
	result map[string]any
}

func (*Merge) Options() options.Schema {
	return task.ErrorOptions.With(options.Option{
		Name: "merge_function", Kind: options.String, Default: MergeUnion,
		Allowed: []any{MergeUnion, MergeOverride, MergeAppend},
	})
}

func (t *Merge) Execute(_ context.Context, st *state.State) error {
	in, ok := st.Input().(map[string]any)
	if !ok {
		return task.HandleError(st, t.svc.GetLogger(), fmt.Errorf("merge: expected a mapping, got %T", st.Input()))
	}
	if t.result == nil {
		t.result = map[string]any{}
	}

	in = property.Clone(in).(map[string]any)

	var opts []func(*mergo.Config)
	switch st.Options()["merge_function"] {
	case MergeOverride:
		opts = append(opts, mergo.WithOverride)
	case MergeAppend:
		opts = append(opts, mergo.WithOverride, mergo.WithAppendSlice)
	default:
		// mergo fills zero-valued keys too; union only adds missing ones.
		for k, v := range in {
			if _, ok := t.result[k]; !ok {
				t.result[k] = v
			}
		}
		return nil
	}
	if err := mergo.Merge(&t.result, in, opts...); err != nil {
		return task.HandleError(st, t.svc.GetLogger(), fmt.Errorf("merge: %w", err))
	}
	return nil
}

func (t *Merge) Proceed(_ context.Context, st *state.State) error {
	if t.result == nil {
		st.SetSkipped(true)
		return nil
	}
	st.SetOutput(t.result)
	t.result = nil
	return nil
}

// GroupBy indexes records by the value at group_by_path, keeping the last
// record of every key.
type GroupBy struct {
	groups map[string]any
}

func (*GroupBy) Options() options.Schema {
	return options.Schema{{Name: "group_by_path", Kind: options.String, Required: true}}
}

func (t *GroupBy) Execute(_ context.Context, st *state.State) error {
	path, _ := st.Options()["group_by_path"].(string)
	if t.groups == nil {
		t.groups = map[string]any{}
	}
	t.groups[groupKey(property.GetOrNil(st.Input(), path))] = st.Input()
	return nil
}

func (t *GroupBy) Proceed(_ context.Context, st *state.State) error {
	if len(t.groups) == 0 {
		st.SetSkipped(true)
		return nil
	}
	st.SetOutput(t.groups)
	t.groups = nil
	return nil
}

func groupKey(v any) string {
	if v == nil {
		return ""
	}
	if f, ok := options.AsFloat(v); ok {
		return fmt.Sprint(f)
	}
	return fmt.Sprint(v)
}

// RowAggregate groups records by aggregate_by. Each group keeps the
// shared_columns of its first record and lists the item_columns of every
// record under aggregation_key. Groups are emitted as one list in the order
// their keys were first seen.
type RowAggregate struct {
	order  []string
	groups map[string]map[string]any
}

func (*RowAggregate) Options() options.Schema {
	return options.Schema{
		{Name: "aggregate_by", Kind: options.String, Required: true},
		{Name: "shared_columns", Kind: options.List, Default: []any{}},
		{Name: "item_columns", Kind: options.List, Default: []any{}},
		{Name: "aggregation_key", Kind: options.String, Default: "items"},
	}
}

func (t *RowAggregate) Execute(_ context.Context, st *state.State) error {
	opts := st.Options()
	by, _ := opts["aggregate_by"].(string)
	itemsKey, _ := opts["aggregation_key"].(string)
	in := st.Input()

	key := groupKey(property.GetOrNil(in, by))
	g, ok := t.groups[key]
	if !ok {
		if t.groups == nil {
			t.groups = map[string]map[string]any{}
		}
		g = pick(in, opts["shared_columns"])
		g[itemsKey] = []any{}
		t.groups[key] = g
		t.order = append(t.order, key)
	}
	g[itemsKey] = append(g[itemsKey].([]any), pick(in, opts["item_columns"]))
	return nil
}

func (t *RowAggregate) Proceed(_ context.Context, st *state.State) error {
	if len(t.order) == 0 {
		st.SetSkipped(true)
		return nil
	}
	out := make([]any, len(t.order))
	for i, key := range t.order {
		out[i] = t.groups[key]
	}
	st.SetOutput(out)
	t.order, t.groups = nil, nil
	return nil
}

// pick copies the listed columns of v; missing columns read as null.
func pick(v any, columns any) map[string]any {
	cols, _ := columns.([]any)
	out := make(map[string]any, len(cols)+1)
	for _, c := range cols {
		name, ok := c.(string)
		if !ok {
			continue
		}
		out[name] = property.Clone(property.GetOrNil(v, name))
	}
	return out
}
