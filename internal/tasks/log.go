package tasks

import (
	"context"
	"log/slog"

	"pipeflow/internal/options"
	"pipeflow/internal/property"
	"pipeflow/internal/state"
	"pipeflow/internal/task"
)

// Log writes every record to the engine logger and forwards it unchanged.
// The error context of the record is logged along, which makes it the usual
// target of error edges.
type Log struct {
	svc *task.Services
}

func (*Log) Options() options.Schema {
	return options.Schema{
		{Name: "level", Kind: options.String, Default: "info", Allowed: []any{"debug", "info", "warn", "error"}},
		{Name: "message", Kind: options.String, Default: "record"},
		{Name: "path", Kind: options.String, Default: ""},
	}
}

func (t *Log) Execute(ctx context.Context, st *state.State) error {
	opts := st.Options()
	v := st.Input()
	if path, _ := opts["path"].(string); path != "" {
		v = property.GetOrNil(v, path)
	}
	msg, _ := opts["message"].(string)
	args := append([]any{"record", v}, st.ErrorContext().Attrs()...)
	t.svc.GetLogger().Log(ctx, logLevel(opts["level"]), msg, args...)
	st.SetOutput(st.Input())
	return nil
}

func logLevel(v any) slog.Level {
	switch v {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
