package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"pipeflow/internal/config"
	"pipeflow/internal/definition"
	"pipeflow/internal/history"
	"pipeflow/internal/pipeline"
	"pipeflow/internal/task"
	"pipeflow/internal/tasks"
	"pipeflow/internal/telemetry"
	"pipeflow/internal/transform"
)

const processes = `
processes:
  upper:
    end_point: up
    tasks:
      up: { service: transformer, options: { transformers: { uppercase: ~ } } }

  letters:
    end_point: collect
    tasks:
      read:    { service: constant_iterable, options: { values: [a, b] }, outputs: call }
      call:    { service: process, options: { process: upper }, outputs: collect }
      collect: { service: aggregate }

  greet:
    end_point: hello
    tasks:
      hello: { service: constant, options: { value: "hello {{ name }}" } }

  guarded:
    tasks:
      read:  { service: constant_iterable, options: { values: [1, 2] }, outputs: guard }
      guard: { service: stop, options: { condition: { match: { ".": 2 } }, error: "two is not allowed" } }

  loop:
    tasks:
      again: { service: process, options: { process: loop } }
`

func newEngine(t *testing.T, doc string) (*Engine, *history.MemoryStore, *telemetry.Metrics) {
	t.Helper()
	var f definition.File
	require.NoError(t, yaml.Unmarshal([]byte(doc), &f))
	cat := definition.NewCatalog()
	require.NoError(t, cat.Add(&f))

	reg := task.NewRegistry()
	tasks.RegisterDefaults(reg)
	tr := transform.NewRegistry()
	transform.RegisterDefaults(tr)

	store := history.NewMemoryStore()
	rec := history.NewRecorder(store)
	t.Cleanup(rec.Close)
	m := telemetry.NewMetrics()
	return New(cat, reg, task.Services{Transformers: tr, Metrics: m}, rec), store, m
}

func TestExecute_NestedProcesses(t *testing.T) {
	e, store, m := newEngine(t, processes)
	res, err := e.Execute(context.Background(), "letters", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ReturnCode)
	assert.True(t, res.HasOutput)
	assert.Equal(t, []any{"A", "B"}, res.Output)

	runs, err := store.List()
	require.NoError(t, err)
	require.Len(t, runs, 3)
	for _, r := range runs {
		assert.Equal(t, history.StatusSuccess, r.Status, r.Process)
	}
	assert.Eventually(t, func() bool {
		return runsTotal(t, m, "letters", "success") == 1 && runsTotal(t, m, "upper", "success") == 2
	}, time.Second, 5*time.Millisecond)
	count, err := testutil.GatherAndCount(m.Registry, "pipeflow_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count) // one series per process
}

// runsTotal reads pipeflow_runs_total for one process and status.
func runsTotal(t *testing.T, m *telemetry.Metrics, process, status string) float64 {
	t.Helper()
	families, err := m.Registry.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "pipeflow_runs_total" {
			continue
		}
		for _, s := range f.GetMetric() {
			labels := map[string]string{}
			for _, l := range s.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["process"] == process && labels["status"] == status {
				return s.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestExecute_RunContext(t *testing.T) {
	e, _, _ := newEngine(t, processes)
	res, err := e.Execute(context.Background(), "greet", nil, map[string]any{"name": "ada"})
	require.NoError(t, err)
	assert.Equal(t, "hello ada", res.Output)

	out, err := e.Run(context.Background(), "upper", "x", nil)
	require.NoError(t, err)
	assert.Equal(t, "X", out)
}

func TestExecute_StopMarksHistoryFailed(t *testing.T) {
	e, store, m := newEngine(t, processes)
	res, err := e.Execute(context.Background(), "guarded", nil, nil)
	require.ErrorIs(t, err, pipeline.ErrStopped)
	assert.Equal(t, 1, res.ReturnCode)
	assert.Equal(t, "guard", res.StoppedBy)

	runs, err := store.List()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.RunID, runs[0].ID)
	assert.Equal(t, history.StatusFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "two is not allowed")

	assert.Eventually(t, func() bool {
		return runsTotal(t, m, "guarded", "failed") == 1
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, runsTotal(t, m, "guarded", "success"))
}

func TestExecute_RunOutcomesFollowRecorderEvents(t *testing.T) {
	e, _, m := newEngine(t, processes)
	for i := 0; i < 3; i++ {
		_, err := e.Execute(context.Background(), "upper", "x", nil)
		require.NoError(t, err)
	}
	_, err := e.Execute(context.Background(), "guarded", nil, nil)
	require.Error(t, err)

	// Closing the recorder waits for queued handlers.
	e.Recorder().Close()
	assert.Equal(t, 3.0, runsTotal(t, m, "upper", "success"))
	assert.Equal(t, 1.0, runsTotal(t, m, "guarded", "failed"))
}

func TestExecute_UnknownProcess(t *testing.T) {
	e, store, _ := newEngine(t, processes)
	res, err := e.Execute(context.Background(), "nope", nil, nil)
	require.ErrorIs(t, err, ErrUnknownProcess)
	assert.Equal(t, 1, res.ReturnCode)
	runs, _ := store.List()
	assert.Empty(t, runs)
}

func TestExecute_NestingIsBounded(t *testing.T) {
	e, store, _ := newEngine(t, processes)
	_, err := e.Execute(context.Background(), "loop", nil, nil)
	require.ErrorIs(t, err, ErrTooDeep)

	runs, err := store.List()
	require.NoError(t, err)
	assert.Len(t, runs, MaxDepth)
	for _, r := range runs {
		assert.Equal(t, history.StatusFailed, r.Status)
	}
}

func TestExecute_ConfigErrorIsRecorded(t *testing.T) {
	e, store, _ := newEngine(t, `
processes:
  bad:
    tasks:
      batch: { service: batch, options: { batch_count: 0 } }
`)
	res, err := e.Execute(context.Background(), "bad", nil, nil)
	var ce *pipeline.ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 1, res.ReturnCode)
	runs, _ := store.List()
	require.Len(t, runs, 1)
	assert.Equal(t, history.StatusFailed, runs[0].Status)
}

func TestValidate(t *testing.T) {
	e, _, _ := newEngine(t, processes)
	require.NoError(t, e.Validate())

	e, _, _ = newEngine(t, `
processes:
  broken:
    tasks:
      a: { service: teleport, outputs: missing }
  odd:
    tasks:
      a: { service: teleport }
`)
	err := e.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, task.ErrUnknownService)
	assert.Contains(t, err.Error(), `"broken"`)
}

func TestValidate_ShippedExamples(t *testing.T) {
	cat, err := config.LoadProcesses("../../examples/processes")
	require.NoError(t, err)
	reg := task.NewRegistry()
	tasks.RegisterDefaults(reg)
	e := New(cat, reg, task.Services{}, nil)
	require.NoError(t, e.Validate())

	g, err := e.Graph("customers.normalize")
	require.NoError(t, err)
	assert.Equal(t, "each", g.EntryPoint.Code)
}
