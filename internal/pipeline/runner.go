package pipeline

import (
	"context"
	"errors"

	"pipeflow/internal/graph"
	"pipeflow/internal/state"
	"pipeflow/internal/task"
	"pipeflow/internal/telemetry"
)

// Result is the outcome of one run.
type Result struct {
	// Output is the last output of the end_point task.
	Output    any
	HasOutput bool

	ReturnCode int
	StoppedBy  string
}

// Runner routes the records of one run through a compiled graph. Routing is
// depth-first and single-threaded: a record reaches every branch below a
// task before the task sees the next record.
type Runner struct {
	graph      *graph.Graph
	steps      map[*graph.Node]*step
	svc        *task.Services
	runContext map[string]any

	result Result
}

// Run feeds input to the entry point, drains the graph and finalizes every
// task, then marks history as succeeded or failed. A stopped run always
// fails. It must be called once.
func (r *Runner) Run(ctx context.Context, input any, history state.History) (Result, error) {
	root := state.New(r.graph.Process, history)
	_ = root.SetContext(r.runContext)

	err := r.run(ctx, root, input)
	if ferr := r.finalize(ctx, root); ferr != nil {
		err = errors.Join(err, ferr)
	}

	if root.IsStopped() {
		r.result.StoppedBy = root.StoppedBy()
		err = errors.Join(&StoppedError{Task: root.StoppedBy(), Err: root.Exception()}, err)
	}
	r.result.ReturnCode = root.ReturnCode()
	if err != nil && r.result.ReturnCode == 0 {
		r.result.ReturnCode = 1
	}

	if history != nil {
		if err != nil {
			history.SetFailed(err)
		} else {
			history.SetSuccess()
		}
	}
	return r.result, err
}

func (r *Runner) run(ctx context.Context, root *state.State, input any) error {
	g := r.graph
	if input != nil && g.EntryPoint == nil {
		return ErrAmbiguousInput
	}

	for _, n := range g.Order {
		s := r.steps[n]
		if s.init == nil {
			continue
		}
		st := r.scheduled(root, s)
		if err := s.init.Initialize(ctx, st); err != nil {
			return &ConfigError{Task: n.Code, Err: err}
		}
	}

	for _, n := range g.Roots {
		st := root.Fork()
		if n == g.EntryPoint {
			st.SetInput(input)
		} else {
			st.SetInput(nil)
		}
		if err := r.visit(ctx, n, st); err != nil {
			return err
		}
		if root.IsStopped() {
			return nil
		}
		if err := r.endPass(ctx, root, n); err != nil {
			return err
		}
	}

	// Every source is exhausted: drain buffers and let blocking tasks emit,
	// upstream first.
	for _, n := range g.Order {
		if root.IsStopped() {
			return nil
		}
		s := r.steps[n]
		if s.flusher != nil {
			if err := r.flush(ctx, root, s); err != nil {
				return err
			}
		}
		if s.blocking != nil {
			if err := r.proceed(ctx, root, s); err != nil {
				return err
			}
		}
	}
	return nil
}

// endPass flushes the flushable non-blocking tasks below a root once the
// root's records have all been routed.
func (r *Runner) endPass(ctx context.Context, root *state.State, from *graph.Node) error {
	for _, n := range append([]*graph.Node{from}, r.graph.Descendants(from)...) {
		s := r.steps[n]
		if s.flusher == nil || s.blocking != nil {
			continue
		}
		if err := r.flush(ctx, root, s); err != nil {
			return err
		}
		if root.IsStopped() {
			return nil
		}
	}
	return nil
}

// visit runs the task of n on st and routes what it produced. Blocking
// tasks only accumulate here.
func (r *Runner) visit(ctx context.Context, n *graph.Node, st *state.State) error {
	if st.IsStopped() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s := r.steps[n]
	st.SetTask(n, s.options)

	if s.blocking != nil {
		st.Reset(false)
		if err := r.call(ctx, s, st, "execute", s.task.Execute); err != nil {
			return err
		}
		return r.routeErrors(ctx, n, st)
	}
	// Each cursor position starts from the error context the record arrived
	// with.
	base := st.ErrorContext().Clone()
	for {
		st.Reset(false)
		st.SetErrorContext(base)
		if err := r.call(ctx, s, st, "execute", s.task.Execute); err != nil {
			return err
		}
		if err := r.route(ctx, n, st); err != nil {
			return err
		}
		if s.iterable == nil || st.IsStopped() || !s.iterable.Next(st) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// flush drains a flushable task, looping while an iterable flusher reports
// more buffered output.
func (r *Runner) flush(ctx context.Context, root *state.State, s *step) error {
	st := r.scheduled(root, s)
	base := st.ErrorContext().Clone()
	for {
		st.Reset(false)
		st.SetErrorContext(base)
		if err := r.call(ctx, s, st, "flush", s.flusher.Flush); err != nil {
			return err
		}
		if err := r.route(ctx, s.node, st); err != nil {
			return err
		}
		if s.iterable == nil || st.IsStopped() || !s.iterable.Next(st) {
			return nil
		}
	}
}

func (r *Runner) proceed(ctx context.Context, root *state.State, s *step) error {
	st := r.scheduled(root, s)
	if err := r.call(ctx, s, st, "proceed", s.blocking.Proceed); err != nil {
		return err
	}
	return r.route(ctx, s.node, st)
}

// route forwards the outcome of st: the error output along error edges and,
// unless the record was skipped, the output along next edges.
func (r *Runner) route(ctx context.Context, n *graph.Node, st *state.State) error {
	if err := r.routeErrors(ctx, n, st); err != nil {
		return err
	}
	if st.IsStopped() || st.Skipped() {
		return nil
	}
	if n == r.graph.EndPoint {
		r.result.Output, r.result.HasOutput = st.Output(), true
	}
	for _, next := range n.Next {
		child := st.Fork()
		child.SetInput(st.Output())
		if err := r.visit(ctx, next, child); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) routeErrors(ctx context.Context, n *graph.Node, st *state.State) error {
	if st.IsStopped() || !st.HasErrorOutput() {
		return nil
	}
	for _, e := range n.Errors {
		child := st.Fork()
		child.SetInput(st.ErrorOutput())
		if err := r.visit(ctx, e, child); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) finalize(ctx context.Context, root *state.State) error {
	var errs []error
	for _, n := range r.graph.Order {
		s := r.steps[n]
		if s.final == nil {
			continue
		}
		st := r.scheduled(root, s)
		// Finalize runs even when ctx is already cancelled.
		if err := s.final.Finalize(context.WithoutCancel(ctx), st); err != nil {
			errs = append(errs, &TaskError{Task: n.Code, Phase: "finalize", Err: err})
		}
	}
	return errors.Join(errs...)
}

// scheduled returns a fresh state scheduled on s, with no input.
func (r *Runner) scheduled(root *state.State, s *step) *state.State {
	st := root.Fork()
	st.SetInput(nil)
	st.SetTask(s.node, s.options)
	return st
}

// call moves st through the status lifecycle around fn and records the
// outcome.
func (r *Runner) call(ctx context.Context, s *step, st *state.State, phase string, fn func(context.Context, *state.State) error) error {
	_ = st.SetStatus(state.StatusPending)
	_ = st.SetStatus(state.StatusProcessing)
	err := fn(ctx, st)
	_ = st.SetStatus(state.StatusResolved)

	outcome := telemetry.OutcomeOutput
	switch {
	case err != nil:
		outcome = telemetry.OutcomeError
	case st.IsStopped():
		outcome = telemetry.OutcomeStopped
	case st.Skipped():
		outcome = telemetry.OutcomeSkipped
	}
	r.svc.Metrics.ObserveTask(r.graph.Process.Code, s.node.Code, outcome)

	if err != nil {
		return &TaskError{Task: s.node.Code, Phase: phase, Err: err}
	}
	if st.IsStopped() && st.StoppedBy() == s.node.Code {
		r.svc.GetLogger().Warn("run stopped", "task", s.node.Code, "err", st.Exception())
	}
	return nil
}
