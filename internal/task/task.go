// Package task defines the execution protocol implemented by task services.
//
// Execute is mandatory. The other capabilities are optional and detected by
// type assertion when a process is compiled.
package task

import (
	"context"

	"pipeflow/internal/options"
	"pipeflow/internal/state"
)

// Task handles one record. It sets the output, marks the state skipped, or
// stops the run. A returned error is fatal for the run.
type Task interface {
	Execute(ctx context.Context, st *state.State) error
}

// Initializable tasks validate their configuration once before the first
// record.
type Initializable interface {
	Initialize(ctx context.Context, st *state.State) error
}

// Iterable tasks emit several outputs per input. While Next returns true the
// task is executed again on the same input; it clears its cursor when Next
// returns false.
type Iterable interface {
	Next(st *state.State) bool
}

// Blocking tasks accumulate every input and emit once through Proceed after
// all upstream tasks are exhausted.
type Blocking interface {
	Proceed(ctx context.Context, st *state.State) error
}

// Flushable tasks drain a buffer at the end of each upstream pass and once
// more when the run finalizes.
type Flushable interface {
	Flush(ctx context.Context, st *state.State) error
}

// Finalizable tasks release resources once at the end of the run.
type Finalizable interface {
	Finalize(ctx context.Context, st *state.State) error
}

// Configurable tasks declare the options they accept. Options are resolved
// against the schema when the process is compiled.
type Configurable interface {
	Options() options.Schema
}
