// Package state holds the per-record context threaded through task
// invocations during a process run.
package state

import (
	"errors"
	"fmt"

	"pipeflow/internal/definition"
	"pipeflow/internal/graph"
)

var (
	ErrContextAlreadySet = errors.New("state context already set")
	ErrInvalidStatus     = errors.New("invalid state status")
	ErrStatusRegression  = errors.New("state status cannot go backwards")
)

type Status int

const (
	StatusNew Status = iota
	StatusPending
	StatusProcessing
	StatusResolved
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusPending:
		return "pending"
	case StatusProcessing:
		return "processing"
	case StatusResolved:
		return "resolved"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// History is the run record the engine reports to.
type History interface {
	ID() string
	SetFailed(err error)
	SetSuccess()
}

// run is shared by every state forked within one process run so that a stop
// in any branch halts the whole run.
type run struct {
	stopped    bool
	exception  error
	returnCode int
	stoppedBy  string
}

type State struct {
	run     *run
	process *definition.Process
	history History
	node    *graph.Node
	options map[string]any

	input          any
	output         any
	errorOutput    any
	hasErrorOutput bool
	skipped        bool
	errorContext   *ErrorContext

	context    map[string]any
	contextSet bool

	status Status
	parent *State
}

// New creates the root state of a run.
func New(process *definition.Process, history History) *State {
	return &State{
		run:          &run{},
		process:      process,
		history:      history,
		errorContext: NewErrorContext(),
	}
}

// Fork clones s for a downstream step. The fork shares the run flags, the
// context and the history record, copies the error context and points back
// to s.
func (s *State) Fork() *State {
	return &State{
		run:          s.run,
		process:      s.process,
		history:      s.history,
		node:         s.node,
		options:      s.options,
		input:        s.input,
		output:       s.output,
		errorContext: s.errorContext.Clone(),
		context:      s.context,
		contextSet:   s.contextSet,
		status:       StatusNew,
		parent:       s,
	}
}

// Reset clears the per-step fields before the state enters a task again.
// With cleanInput it also drops the input, the lineage and the error context
// so the state can carry a fresh top-level record.
func (s *State) Reset(cleanInput bool) {
	s.output = nil
	s.errorOutput = nil
	s.hasErrorOutput = false
	s.skipped = false
	s.status = StatusNew
	if cleanInput {
		s.input = nil
		s.parent = nil
		s.errorContext.Clear()
	}
}

func (s *State) Process() *definition.Process { return s.process }
func (s *State) History() History { return s.history }
func (s *State) Parent() *State { return s.parent }

// Node is the task node the state is currently scheduled on.
func (s *State) Node() *graph.Node { return s.node }

// TaskCode returns the code of the current task node, or "".
func (s *State) TaskCode() string {
	if s.node == nil {
		return ""
	}
	return s.node.Code
}

// Options returns the resolved options of the current task.
func (s *State) Options() map[string]any { return s.options }

// SetTask schedules the state on node with its resolved options.
func (s *State) SetTask(node *graph.Node, options map[string]any) {
	s.node = node
	s.options = options
}

func (s *State) Input() any { return s.input }
func (s *State) SetInput(v any) { s.input = v }
func (s *State) Output() any { return s.output }
func (s *State) SetOutput(v any) { s.output = v }
func (s *State) ErrorOutput() any { return s.errorOutput }
func (s *State) HasErrorOutput() bool { return s.hasErrorOutput }

func (s *State) SetErrorOutput(v any) {
	s.errorOutput = v
	s.hasErrorOutput = true
}

func (s *State) Skipped() bool { return s.skipped }
func (s *State) SetSkipped(b bool) { s.skipped = b }
func (s *State) ErrorContext() *ErrorContext { return s.errorContext }

// SetErrorContext replaces the error context with a copy of c.
func (s *State) SetErrorContext(c *ErrorContext) { s.errorContext = c.Clone() }

// Stop halts the run and fails it. A non-nil err is kept as the run
// exception; the first one wins.
func (s *State) Stop(err error) {
	s.run.stopped = true
	s.run.returnCode = 1
	if s.run.stoppedBy == "" {
		s.run.stoppedBy = s.TaskCode()
	}
	if err != nil && s.run.exception == nil {
		s.run.exception = err
	}
}

func (s *State) IsStopped() bool { return s.run.stopped }
func (s *State) Exception() error { return s.run.exception }
func (s *State) StoppedBy() string { return s.run.stoppedBy }
func (s *State) ReturnCode() int { return s.run.returnCode }

// Context is the run context, set once when the run starts.
func (s *State) Context() map[string]any { return s.context }

func (s *State) SetContext(ctx map[string]any) error {
	if s.contextSet {
		return ErrContextAlreadySet
	}
	s.context = ctx
	s.contextSet = true
	return nil
}

func (s *State) Status() Status { return s.status }

// SetStatus moves the state forward. Unknown values and backward moves are
// rejected.
func (s *State) SetStatus(st Status) error {
	if st < StatusNew || st > StatusResolved {
		return fmt.Errorf("%w: %d", ErrInvalidStatus, int(st))
	}
	if st < s.status {
		return fmt.Errorf("%w: %s -> %s", ErrStatusRegression, s.status, st)
	}
	s.status = st
	return nil
}
