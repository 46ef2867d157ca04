package task

import (
	"log/slog"

	"pipeflow/internal/options"
	"pipeflow/internal/state"
)

const (
	StrategySkip = "skip"
	StrategyStop = "stop"
)

// ErrorOptions are accepted by every task that applies the error strategy
// convention.
var ErrorOptions = options.Schema{
	{Name: "error_strategy", Kind: options.String, Default: ""},
	{Name: "log_errors", Kind: options.Bool, Default: true},
}

// HandleError records the original input as the error output, then skips
// the record, stops the run, or returns err for any other strategy.
func HandleError(st *state.State, logger *slog.Logger, err error) error {
	opts := st.Options()
	strategy, _ := opts["error_strategy"].(string)
	logErrors, ok := opts["log_errors"].(bool)
	if !ok {
		logErrors = true
	}

	st.SetErrorOutput(st.Input())
	st.ErrorContext().Set("error", err.Error())
	if logErrors {
		args := append([]any{"task", st.TaskCode(), "strategy", strategy, "err", err}, st.ErrorContext().Attrs()...)
		logger.Error("task failed", args...)
	}

	switch strategy {
	case StrategySkip:
		st.SetSkipped(true)
		return nil
	case StrategyStop:
		st.Stop(err)
		return nil
	}
	return err
}
