// Package engine runs processes from a definition catalog: it builds and
// caches their graphs, compiles a fresh runner per run and records every
// run in history.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"pipeflow/internal/definition"
	"pipeflow/internal/graph"
	"pipeflow/internal/history"
	"pipeflow/internal/pipeline"
	"pipeflow/internal/task"
	"pipeflow/internal/telemetry"
)

var (
	ErrUnknownProcess = errors.New("unknown process")
	ErrTooDeep        = errors.New("process nesting too deep")
)

// MaxDepth bounds processes running other processes in-process.
const MaxDepth = 16

type depthKey struct{}

// Result is the outcome of one Execute.
type Result struct {
	RunID      string
	Output     any
	HasOutput  bool
	ReturnCode int
	StoppedBy  string
}

// Engine executes the processes of a catalog. It is safe for concurrent
// use; each run gets its own task instances.
type Engine struct {
	catalog  *definition.Catalog
	tasks    *task.Registry
	services task.Services
	recorder *history.Recorder

	mu     sync.Mutex
	graphs map[string]*graph.Graph
}

// New builds an engine. svc is the template handed to task factories; its
// Processes field is set to the engine. A nil recorder keeps history in
// memory. The engine hooks the recorder's finish events to observe runs.
func New(catalog *definition.Catalog, tasks *task.Registry, svc task.Services, recorder *history.Recorder) *Engine {
	if recorder == nil {
		recorder = history.NewRecorder(history.NewMemoryStore())
	}
	e := &Engine{
		catalog:  catalog,
		tasks:    tasks,
		recorder: recorder,
		graphs:   map[string]*graph.Graph{},
	}
	svc.Processes = e
	e.services = svc
	for _, on := range []func(func(context.Context, history.Event) error) error{recorder.OnSucceeded, recorder.OnFailed} {
		if err := on(e.runFinished); err != nil {
			e.services.GetLogger().Error("run hooks not registered", "err", err)
		}
	}
	return e
}

// runFinished records the outcome of a closed run record.
func (e *Engine) runFinished(_ context.Context, ev history.Event) error {
	r := ev.Run
	e.services.Metrics.ObserveRun(r.Process, string(r.Status), r.Duration())
	log := e.services.GetLogger().With("process", r.Process, "run_id", r.ID)
	if r.Status == history.StatusFailed {
		log.Error("run failed", "duration", r.Duration(), "err", r.Error)
	} else {
		log.Info("run finished", "duration", r.Duration())
	}
	return nil
}

func (e *Engine) Catalog() *definition.Catalog { return e.catalog }
func (e *Engine) Recorder() *history.Recorder  { return e.recorder }
func (e *Engine) Metrics() *telemetry.Metrics  { return e.services.Metrics }

// Graph returns the validated graph of a process, building it once.
func (e *Engine) Graph(code string) (*graph.Graph, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if g, ok := e.graphs[code]; ok {
		return g, nil
	}
	p, ok := e.catalog.Get(code)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownProcess, code)
	}
	g, err := graph.Build(p)
	if err != nil {
		return nil, err
	}
	e.graphs[code] = g
	return g, nil
}

// Validate builds every graph of the catalog and checks that each task
// names a registered service. Options are checked per run, once the run
// context is known.
func (e *Engine) Validate() error {
	var errs []error
	for _, p := range e.catalog.Processes() {
		g, err := e.Graph(p.Code)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, n := range g.Nodes {
			if !e.tasks.Has(n.Service()) {
				errs = append(errs, fmt.Errorf("process %q: task %q: %w %q", p.Code, n.Code, task.ErrUnknownService, n.Service()))
			}
		}
	}
	return errors.Join(errs...)
}

// Execute runs process code once with input and runContext.
func (e *Engine) Execute(ctx context.Context, code string, input any, runContext map[string]any) (Result, error) {
	depth, _ := ctx.Value(depthKey{}).(int)
	if depth >= MaxDepth {
		return Result{ReturnCode: 1}, fmt.Errorf("%w: %q at depth %d", ErrTooDeep, code, depth)
	}
	ctx = context.WithValue(ctx, depthKey{}, depth+1)

	g, err := e.Graph(code)
	if err != nil {
		return Result{ReturnCode: 1}, err
	}

	entry, err := e.recorder.Start(ctx, code)
	if err != nil {
		return Result{ReturnCode: 1}, fmt.Errorf("history: %w", err)
	}
	svc := e.services
	svc.Logger = e.services.GetLogger().With("process", code, "run_id", entry.ID())
	svc.Logger.Info("run started")

	res := Result{RunID: entry.ID()}
	runner, err := pipeline.Compile(g, e.tasks, &svc, runContext)
	if err != nil {
		entry.SetFailed(err)
		res.ReturnCode = 1
	} else {
		var out pipeline.Result
		out, err = runner.Run(ctx, input, entry)
		res.Output, res.HasOutput = out.Output, out.HasOutput
		res.ReturnCode, res.StoppedBy = out.ReturnCode, out.StoppedBy
	}
	return res, err
}

// Run executes a nested process and returns its output. It serves the
// "process" task.
func (e *Engine) Run(ctx context.Context, code string, input any, runContext map[string]any) (any, error) {
	res, err := e.Execute(ctx, code, input, runContext)
	return res.Output, err
}
