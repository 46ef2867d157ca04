package pipeline

import (
	"pipeflow/internal/graph"
	"pipeflow/internal/options"
	"pipeflow/internal/task"
)

// step is a task node bound to its service instance for one run.
type step struct {
	node    *graph.Node
	task    task.Task
	options map[string]any

	init     task.Initializable
	iterable task.Iterable
	blocking task.Blocking
	flusher  task.Flushable
	final    task.Finalizable
}

// Compile instantiates a fresh service for every node of g and resolves its
// options against runContext. The returned Runner executes exactly one run.
func Compile(g *graph.Graph, tasks *task.Registry, svc *task.Services, runContext map[string]any) (*Runner, error) {
	if svc == nil {
		svc = &task.Services{}
	}
	r := &Runner{
		graph:      g,
		steps:      make(map[*graph.Node]*step, len(g.Nodes)),
		svc:        svc,
		runContext: runContext,
	}
	for _, n := range g.Order {
		s, err := compileStep(n, tasks, svc, runContext)
		if err != nil {
			return nil, err
		}
		r.steps[n] = s
	}
	return r, nil
}

func compileStep(n *graph.Node, tasks *task.Registry, svc *task.Services, runContext map[string]any) (*step, error) {
	scoped := *svc
	scoped.Logger = svc.GetLogger().With("task", n.Code)
	t, err := tasks.New(n.Service(), &scoped)
	if err != nil {
		return nil, &ConfigError{Task: n.Code, Err: err}
	}

	var raw map[string]any
	if n.Task != nil {
		raw = n.Task.EffectiveOptions()
	}
	var opts map[string]any
	if c, ok := t.(task.Configurable); ok {
		opts, err = options.Resolve(c.Options(), raw, runContext)
		if err != nil {
			return nil, &ConfigError{Task: n.Code, Err: err}
		}
	} else if raw != nil {
		opts, _ = options.Substitute(raw, runContext).(map[string]any)
	}

	s := &step{node: n, task: t, options: opts}
	s.init, _ = t.(task.Initializable)
	s.iterable, _ = t.(task.Iterable)
	s.blocking, _ = t.(task.Blocking)
	s.flusher, _ = t.(task.Flushable)
	s.final, _ = t.(task.Finalizable)
	return s, nil
}
