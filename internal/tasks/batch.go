package tasks

import (
	"context"
	"errors"

	"pipeflow/internal/options"
	"pipeflow/internal/state"
)

var batchOptions = options.Schema{
	{Name: "batch_count", Kind: options.Int, Default: 10, Validate: func(v any) error {
		if v.(int) < 1 {
			return errors.New("must be at least 1")
		}
		return nil
	}},
}

func batchCount(st *state.State) int {
	if n, ok := st.Options()["batch_count"].(int); ok && n > 0 {
		return n
	}
	return 10
}

// Batch groups records into lists of batch_count. Records that do not
// complete a batch are skipped; the remainder is emitted on flush.
type Batch struct {
	buffer []any
}

func (*Batch) Options() options.Schema { return batchOptions }

func (t *Batch) Execute(_ context.Context, st *state.State) error {
	t.buffer = append(t.buffer, st.Input())
	if len(t.buffer) < batchCount(st) {
		st.SetSkipped(true)
		return nil
	}
	st.SetOutput(t.buffer)
	t.buffer = nil
	return nil
}

func (t *Batch) Flush(_ context.Context, st *state.State) error {
	if len(t.buffer) == 0 {
		st.SetSkipped(true)
		return nil
	}
	st.SetOutput(t.buffer)
	t.buffer = nil
	return nil
}

// IterableBatch buffers every record into batches of batch_count and emits
// them only when flushed, one batch per flush iteration.
type IterableBatch struct {
	current  []any
	batches  [][]any
	flushing bool
}

func (*IterableBatch) Options() options.Schema { return batchOptions }

func (t *IterableBatch) Execute(_ context.Context, st *state.State) error {
	t.current = append(t.current, st.Input())
	if len(t.current) >= batchCount(st) {
		t.batches = append(t.batches, t.current)
		t.current = nil
	}
	st.SetSkipped(true)
	return nil
}

func (t *IterableBatch) Flush(_ context.Context, st *state.State) error {
	if !t.flushing && len(t.current) > 0 {
		t.batches = append(t.batches, t.current)
		t.current = nil
	}
	if len(t.batches) == 0 {
		t.flushing = false
		st.SetSkipped(true)
		return nil
	}
	t.flushing = true
	st.SetOutput(t.batches[0])
	t.batches = t.batches[1:]
	return nil
}

// Next reports whether a flush has more batches to emit. It is always false
// outside a flush.
func (t *IterableBatch) Next(*state.State) bool {
	if t.flushing && len(t.batches) > 0 {
		return true
	}
	t.flushing = false
	return false
}
