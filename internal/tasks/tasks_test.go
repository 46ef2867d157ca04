package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipeflow/internal/definition"
	"pipeflow/internal/graph"
	"pipeflow/internal/options"
	"pipeflow/internal/state"
	"pipeflow/internal/task"
	"pipeflow/internal/transform"
)

// scheduled resolves raw against the options of tk and returns a state
// scheduled on a node named after the task.
func scheduled(t *testing.T, tk task.Task, raw map[string]any) *state.State {
	t.Helper()
	var schema options.Schema
	if c, ok := tk.(task.Configurable); ok {
		schema = c.Options()
	}
	opts, err := options.Resolve(schema, raw, nil)
	require.NoError(t, err)
	st := state.New(&definition.Process{Code: "test"}, nil)
	st.SetTask(&graph.Node{Code: "task"}, opts)
	return st
}

// feed executes tk once per input and returns the emitted outputs.
func feed(t *testing.T, tk task.Task, st *state.State, inputs ...any) []any {
	t.Helper()
	var out []any
	for _, in := range inputs {
		st.Reset(false)
		st.SetInput(in)
		require.NoError(t, tk.Execute(context.Background(), st))
		if !st.Skipped() {
			out = append(out, st.Output())
		}
	}
	return out
}

func proceed(t *testing.T, b task.Blocking, st *state.State) (any, bool) {
	t.Helper()
	st.Reset(true)
	require.NoError(t, b.Proceed(context.Background(), st))
	return st.Output(), !st.Skipped()
}

func TestRegisterDefaults(t *testing.T) {
	r := task.NewRegistry()
	RegisterDefaults(r)
	for _, code := range []string{
		"transformer", "iterate", "constant", "constant_iterable", "filter", "log", "stop",
		"batch", "iterable_batch", "aggregate", "merge", "group_by", "row_aggregate",
		"counter", "process", "subprocess", "sink", "source",
	} {
		assert.True(t, r.Has(code), code)
	}
}

func TestMerge_Union(t *testing.T) {
	m := &Merge{}
	st := scheduled(t, m, map[string]any{"merge_function": "union"})
	feed(t, m, st, map[string]any{"a": 1}, map[string]any{"b": 2}, map[string]any{"a": 3})

	out, ok := proceed(t, m, st)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, out)
}

func TestMerge_UnionKeepsFalsyFirstValues(t *testing.T) {
	m := &Merge{}
	st := scheduled(t, m, nil)
	feed(t, m, st,
		map[string]any{"a": 0, "b": "", "c": false, "d": nil},
		map[string]any{"a": 5, "b": "x", "c": true, "d": "set", "e": 1},
	)

	out, ok := proceed(t, m, st)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"a": 0, "b": "", "c": false, "d": nil, "e": 1}, out)
}

func TestMerge_Override(t *testing.T) {
	m := &Merge{}
	st := scheduled(t, m, map[string]any{"merge_function": "override"})
	feed(t, m, st, map[string]any{"a": 1}, map[string]any{"a": 3})

	out, _ := proceed(t, m, st)
	assert.Equal(t, map[string]any{"a": 3}, out)
}

func TestMerge_RejectsScalarsPerStrategy(t *testing.T) {
	m := &Merge{}
	st := scheduled(t, m, map[string]any{"error_strategy": "skip", "log_errors": false})
	st.SetInput("scalar")
	require.NoError(t, m.Execute(context.Background(), st))
	assert.True(t, st.Skipped())
	assert.Equal(t, "scalar", st.ErrorOutput())

	st = scheduled(t, m, nil)
	st.SetInput("scalar")
	require.Error(t, m.Execute(context.Background(), st))
}

func TestGroupBy_LastValueWins(t *testing.T) {
	g := &GroupBy{}
	st := scheduled(t, g, map[string]any{"group_by_path": "id"})
	feed(t, g, st,
		map[string]any{"id": 1, "v": "x"},
		map[string]any{"id": 1, "v": "y"},
		map[string]any{"id": 2, "v": "z"},
	)

	out, ok := proceed(t, g, st)
	require.True(t, ok)
	assert.Equal(t, map[string]any{
		"1": map[string]any{"id": 1, "v": "y"},
		"2": map[string]any{"id": 2, "v": "z"},
	}, out)
}

func TestRowAggregate(t *testing.T) {
	r := &RowAggregate{}
	st := scheduled(t, r, map[string]any{
		"aggregate_by":   "cat",
		"shared_columns": []any{"other"},
		"item_columns":   []any{"val"},
	})
	feed(t, r, st,
		map[string]any{"cat": "a", "val": 1, "other": "x"},
		map[string]any{"cat": "a", "val": 2, "other": "x"},
	)

	out, ok := proceed(t, r, st)
	require.True(t, ok)
	assert.Equal(t, []any{
		map[string]any{"other": "x", "items": []any{
			map[string]any{"val": 1},
			map[string]any{"val": 2},
		}},
	}, out)
}

func TestAggregators_SkipWhenEmpty(t *testing.T) {
	for _, b := range []interface {
		task.Task
		task.Blocking
	}{&Aggregate{}, &Merge{}, &GroupBy{}, &RowAggregate{}} {
		raw := map[string]any{}
		switch b.(type) {
		case *GroupBy:
			raw["group_by_path"] = "id"
		case *RowAggregate:
			raw["aggregate_by"] = "id"
		}
		_, ok := proceed(t, b, scheduled(t, b, raw))
		assert.False(t, ok, "%T", b)
	}
}

func TestAggregate_CollectsInOrder(t *testing.T) {
	a := &Aggregate{}
	st := scheduled(t, a, nil)
	feed(t, a, st, 1, 2, 3)
	out, ok := proceed(t, a, st)
	require.True(t, ok)
	assert.Equal(t, []any{1, 2, 3}, out)
}

func TestBatch(t *testing.T) {
	b := &Batch{}
	st := scheduled(t, b, map[string]any{"batch_count": 2})

	out := feed(t, b, st, "a", "b", "c")
	assert.Equal(t, []any{[]any{"a", "b"}}, out)

	st.Reset(false)
	require.NoError(t, b.Flush(context.Background(), st))
	assert.False(t, st.Skipped())
	assert.Equal(t, []any{"c"}, st.Output())

	st.Reset(false)
	require.NoError(t, b.Flush(context.Background(), st))
	assert.True(t, st.Skipped())
}

func TestBatch_RejectsZeroCount(t *testing.T) {
	_, err := options.Resolve((&Batch{}).Options(), map[string]any{"batch_count": 0}, nil)
	require.Error(t, err)
}

func TestIterableBatch_DrainsOneBatchPerIteration(t *testing.T) {
	b := &IterableBatch{}
	st := scheduled(t, b, map[string]any{"batch_count": 2})

	out := feed(t, b, st, 1, 2, 3, 4, 5)
	assert.Empty(t, out)
	assert.False(t, b.Next(st))

	var batches []any
	for {
		st.Reset(false)
		require.NoError(t, b.Flush(context.Background(), st))
		if !st.Skipped() {
			batches = append(batches, st.Output())
		}
		if !b.Next(st) {
			break
		}
	}
	assert.Equal(t, []any{[]any{1, 2}, []any{3, 4}, []any{5}}, batches)

	st.Reset(false)
	require.NoError(t, b.Flush(context.Background(), st))
	assert.True(t, st.Skipped())
}

// drain runs an iterable task the way the router does.
func drain(t *testing.T, tk interface {
	task.Task
	task.Iterable
}, st *state.State, input any) []any {
	t.Helper()
	var out []any
	st.SetInput(input)
	for {
		st.Reset(false)
		require.NoError(t, tk.Execute(context.Background(), st))
		if !st.Skipped() {
			out = append(out, st.Output())
		}
		if !tk.Next(st) {
			return out
		}
	}
}

func TestIterate(t *testing.T) {
	it := &Iterate{}
	st := scheduled(t, it, nil)
	assert.Equal(t, []any{1, 2, 3}, drain(t, it, st, []any{1, 2, 3}))
	assert.Equal(t, []any{"x"}, drain(t, it, st, []any{"x"}), "cursor restarts on the next input")
	assert.Nil(t, drain(t, it, st, []any{}))

	st = scheduled(t, it, map[string]any{"path": "rows", "with_keys": true})
	assert.Equal(t, []any{
		map[string]any{"key": "a", "value": 1},
		map[string]any{"key": "b", "value": 2},
	}, drain(t, it, st, map[string]any{"rows": map[string]any{"b": 2, "a": 1}}))
}

func TestConstantIterable(t *testing.T) {
	c := &ConstantIterable{}
	st := scheduled(t, c, map[string]any{"values": []any{map[string]any{"id": 1}, map[string]any{"id": 2}}})
	out := drain(t, c, st, nil)
	require.Len(t, out, 2)
	out[0].(map[string]any)["id"] = 9
	assert.Equal(t, []any{map[string]any{"id": 1}, map[string]any{"id": 2}}, drain(t, c, st, nil))
}

func TestConstant(t *testing.T) {
	c := &Constant{}
	st := scheduled(t, c, map[string]any{"value": map[string]any{"k": "v"}})
	assert.Equal(t, []any{map[string]any{"k": "v"}}, feed(t, c, st, "ignored"))
}

func TestFilter(t *testing.T) {
	f := &Filter{}
	st := scheduled(t, f, map[string]any{"condition": map[string]any{"match": map[string]any{"status": "active"}}})
	require.NoError(t, f.Initialize(context.Background(), st))
	out := feed(t, f, st,
		map[string]any{"status": "active", "id": 1},
		map[string]any{"status": "gone", "id": 2},
	)
	assert.Equal(t, []any{map[string]any{"status": "active", "id": 1}}, out)

	inv := &Filter{}
	st = scheduled(t, inv, map[string]any{"condition": map[string]any{"empty": []any{"id"}}, "invert": true})
	assert.Equal(t, []any{map[string]any{"id": 3}}, feed(t, inv, st, map[string]any{"id": 3}, map[string]any{}))
}

func TestFilter_InvalidCondition(t *testing.T) {
	f := &Filter{}
	st := scheduled(t, f, map[string]any{"condition": map[string]any{"equals": map[string]any{}}})
	require.Error(t, f.Initialize(context.Background(), st))
}

func TestStop(t *testing.T) {
	s := &Stop{}
	st := scheduled(t, s, map[string]any{
		"condition": map[string]any{"match": map[string]any{"id": 2}},
		"error":     "id 2 is not allowed",
	})
	out := feed(t, s, st, map[string]any{"id": 1})
	assert.Len(t, out, 1)
	assert.False(t, st.IsStopped())

	st.SetInput(map[string]any{"id": 2})
	require.NoError(t, s.Execute(context.Background(), st))
	assert.True(t, st.IsStopped())
	assert.EqualError(t, st.Exception(), "id 2 is not allowed")
	assert.Equal(t, 1, st.ReturnCode())
}

func TestStop_WithoutErrorFailsTheRun(t *testing.T) {
	s := &Stop{}
	st := scheduled(t, s, nil)
	st.SetInput("x")
	require.NoError(t, s.Execute(context.Background(), st))
	assert.True(t, st.IsStopped())
	assert.NoError(t, st.Exception())
	assert.Equal(t, 1, st.ReturnCode())
}

func transformerTask(t *testing.T, raw map[string]any) (*Transformer, *state.State) {
	t.Helper()
	reg := transform.NewRegistry()
	transform.RegisterDefaults(reg)
	tk := &Transformer{svc: &task.Services{Transformers: reg}}
	st := scheduled(t, tk, raw)
	require.NoError(t, tk.Initialize(context.Background(), st))
	return tk, st
}

func TestTransformer_AppliesChain(t *testing.T) {
	tk, st := transformerTask(t, map[string]any{
		"transformers": definition.Ordered{
			{Key: "trim", Value: nil},
			{Key: "uppercase", Value: nil},
		},
	})
	assert.Equal(t, []any{"ADA"}, feed(t, tk, st, "  ada "))
}

func TestTransformer_ErrorStrategies(t *testing.T) {
	chain := definition.Ordered{{Key: "uppercase", Value: nil}}

	tk, st := transformerTask(t, map[string]any{"transformers": chain, "error_strategy": "skip", "log_errors": false})
	out := feed(t, tk, st, 42, "ok")
	assert.Equal(t, []any{"OK"}, out)

	tk, st = transformerTask(t, map[string]any{"transformers": chain, "error_strategy": "stop", "log_errors": false})
	st.SetInput(42)
	require.NoError(t, tk.Execute(context.Background(), st))
	assert.True(t, st.IsStopped())
	assert.True(t, st.HasErrorOutput())
	assert.Equal(t, 42, st.ErrorOutput())
	var te *transform.Error
	require.True(t, errors.As(st.Exception(), &te))
	assert.Equal(t, "uppercase", te.Code)

	tk, st = transformerTask(t, map[string]any{"transformers": chain, "log_errors": false})
	st.SetInput(42)
	require.Error(t, tk.Execute(context.Background(), st))
}

func TestTransformer_UnknownCodeFailsInitialize(t *testing.T) {
	reg := transform.NewRegistry()
	tk := &Transformer{svc: &task.Services{Transformers: reg}}
	st := scheduled(t, tk, map[string]any{"transformers": map[string]any{"nope": nil}})
	require.ErrorIs(t, tk.Initialize(context.Background(), st), transform.ErrUnknownTransformer)
}

type runnerFunc func(ctx context.Context, code string, input any, runContext map[string]any) (any, error)

func (f runnerFunc) Run(ctx context.Context, code string, input any, runContext map[string]any) (any, error) {
	return f(ctx, code, input, runContext)
}

func TestProcess(t *testing.T) {
	var gotCode string
	p := &Process{svc: &task.Services{Processes: runnerFunc(func(_ context.Context, code string, input any, _ map[string]any) (any, error) {
		gotCode = code
		if input == "bad" {
			return nil, errors.New("child failed")
		}
		return map[string]any{"wrapped": input}, nil
	})}}
	st := scheduled(t, p, map[string]any{"process": "child", "error_strategy": "skip", "log_errors": false})
	require.NoError(t, p.Initialize(context.Background(), st))

	out := feed(t, p, st, "a", "bad")
	assert.Equal(t, "child", gotCode)
	assert.Equal(t, []any{map[string]any{"wrapped": "a"}}, out)
	v, _ := st.ErrorContext().Get("process")
	assert.Equal(t, "child", v)

	require.ErrorIs(t, (&Process{}).Initialize(context.Background(), st), errNoProcessRunner)
}

func TestCounter(t *testing.T) {
	c := &Counter{}
	st := scheduled(t, c, map[string]any{"log_every": 2})
	assert.Equal(t, []any{1, 2, 3}, feed(t, c, st, 1, 2, 3))
	assert.Equal(t, 3, c.Count())
	require.NoError(t, c.Finalize(context.Background(), st))
}

func TestLog_PassesThrough(t *testing.T) {
	l := &Log{}
	st := scheduled(t, l, map[string]any{"level": "debug", "path": "id"})
	assert.Equal(t, []any{map[string]any{"id": 1}}, feed(t, l, st, map[string]any{"id": 1}))

	_, err := options.Resolve(l.Options(), map[string]any{"level": "loud"}, nil)
	require.ErrorIs(t, err, options.ErrNotAllowed)
}
