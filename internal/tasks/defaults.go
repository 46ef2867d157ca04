package tasks

import "pipeflow/internal/task"

// RegisterDefaults registers the built-in services on r.
func RegisterDefaults(r *task.Registry) {
	r.Register("transformer", func(svc *task.Services) task.Task { return &Transformer{svc: svc} })
	r.Register("iterate", func(svc *task.Services) task.Task { return &Iterate{} })
	r.Register("constant", func(svc *task.Services) task.Task { return &Constant{} })
	r.Register("constant_iterable", func(svc *task.Services) task.Task { return &ConstantIterable{} })
	r.Register("filter", func(svc *task.Services) task.Task { return &Filter{} })
	r.Register("log", func(svc *task.Services) task.Task { return &Log{svc: svc} })
	r.Register("stop", func(svc *task.Services) task.Task { return &Stop{} })
	r.Register("batch", func(svc *task.Services) task.Task { return &Batch{} })
	r.Register("iterable_batch", func(svc *task.Services) task.Task { return &IterableBatch{} })
	r.Register("aggregate", func(svc *task.Services) task.Task { return &Aggregate{} })
	r.Register("merge", func(svc *task.Services) task.Task { return &Merge{svc: svc} })
	r.Register("group_by", func(svc *task.Services) task.Task { return &GroupBy{} })
	r.Register("row_aggregate", func(svc *task.Services) task.Task { return &RowAggregate{} })
	r.Register("counter", func(svc *task.Services) task.Task { return &Counter{svc: svc} })
	r.Register("process", func(svc *task.Services) task.Task { return &Process{svc: svc} })
	r.Register("subprocess", func(svc *task.Services) task.Task { return &Subprocess{svc: svc} })
	r.Register("sink", func(svc *task.Services) task.Task { return &Sink{svc: svc} })
	r.Register("source", func(svc *task.Services) task.Task { return &Source{svc: svc} })
}
