package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrStopped is matched by the error of a run halted by a task.
	ErrStopped = errors.New("run stopped")
	// ErrAmbiguousInput is returned when a run input is given to a process
	// with several roots and no entry_point.
	ErrAmbiguousInput = errors.New("process has several roots and no entry_point")
)

// ConfigError reports a task whose options or initialization failed before
// any record ran.
type ConfigError struct {
	Task string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("task %q: configuration: %v", e.Task, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// TaskError wraps an error a task returned instead of handling.
type TaskError struct {
	Task  string
	Phase string
	Err   error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %q: %s: %v", e.Task, e.Phase, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// StoppedError is returned when a task stopped the run. Err is the
// exception the task stopped with, or nil.
type StoppedError struct {
	Task string
	Err  error
}

func (e *StoppedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("run stopped by task %q", e.Task)
	}
	return fmt.Sprintf("run stopped by task %q: %v", e.Task, e.Err)
}

func (e *StoppedError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrStopped}
	}
	return []error{ErrStopped, e.Err}
}
