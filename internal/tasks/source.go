package tasks

import (
	"context"
	"errors"
	"fmt"

	"dario.cat/mergo"

	"pipeflow/internal/options"
	"pipeflow/internal/record"
	"pipeflow/internal/state"
	"pipeflow/internal/task"
	"pipeflow/source/kafka"
)

const (
	FormatJSON   = "json"
	FormatString = "string"
	FormatBytes  = "bytes"
)

// Source reads a bounded run of Kafka messages and emits one record per
// message. The reader goroutine hands messages over one at a time, so the
// records are still routed from a single goroutine.
type Source struct {
	svc     *task.Services
	adapter kafka.Adapter

	cancel   context.CancelFunc
	messages chan kafka.Message
	done     chan error
	current  *kafka.Message
}

func (*Source) Options() options.Schema {
	return task.ErrorOptions.With(
		options.Option{Name: "driver", Kind: options.String, Default: "sarama"},
		options.Option{Name: "config_file", Kind: options.String, Default: ""},
		options.Option{Name: "brokers", Kind: options.List},
		options.Option{Name: "topics", Kind: options.List},
		options.Option{Name: "start_from", Kind: options.String, Allowed: []any{"oldest", "newest"}},
		options.Option{Name: "version", Kind: options.String},
		options.Option{Name: "max_messages", Kind: options.Int},
		options.Option{Name: "idle_timeout", Kind: options.Duration},
		options.Option{Name: "value_format", Kind: options.String, Default: FormatJSON,
			Allowed: []any{FormatJSON, FormatString, FormatBytes}},
		options.Option{Name: "envelope", Kind: options.Bool, Default: false},
	)
}

// Initialize merges the inline options over the config file and configures
// the driver.
func (t *Source) Initialize(_ context.Context, st *state.State) error {
	opts := st.Options()
	file, _ := opts["config_file"].(string)
	cfg, err := kafka.LoadConfig(file)
	if err != nil {
		return err
	}
	var inline kafka.Config
	if err := options.DecodeTagged(opts, &inline, "koanf"); err != nil {
		return err
	}
	if err := mergo.Merge(&cfg, inline, mergo.WithOverride); err != nil {
		return err
	}

	driver, _ := opts["driver"].(string)
	a, err := kafka.NewAdapter(driver)
	if err != nil {
		return err
	}
	if err := a.Configure(cfg); err != nil {
		return err
	}
	t.adapter = a
	return nil
}

func (t *Source) Execute(ctx context.Context, st *state.State) error {
	if t.adapter == nil {
		if err := t.Initialize(ctx, st); err != nil {
			return err
		}
	}
	if t.current == nil {
		t.start(ctx)
		if !t.pull(st) {
			st.SetSkipped(true)
			return nil
		}
	}
	rec, err := t.record(st, *t.current)
	if err != nil {
		return task.HandleError(st, t.svc.GetLogger(), err)
	}
	st.SetOutput(rec)
	return nil
}

func (t *Source) Next(st *state.State) bool {
	if t.current == nil {
		return false
	}
	return t.pull(st)
}

func (t *Source) start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)
	t.messages = make(chan kafka.Message)
	t.done = make(chan error, 1)
	go func() {
		defer close(t.messages)
		t.done <- t.adapter.Run(ctx, func(m kafka.Message) error {
			select {
			case t.messages <- m:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()
}

// pull waits for the next message. When the reader is done it stops the run
// on a read error and reports false.
func (t *Source) pull(st *state.State) bool {
	m, ok := <-t.messages
	if ok {
		t.current = &m
		return true
	}
	t.current = nil
	if err := <-t.done; err != nil && !errors.Is(err, context.Canceled) {
		st.Stop(fmt.Errorf("source: %w", err))
	}
	return false
}

func (t *Source) record(st *state.State, m kafka.Message) (any, error) {
	var value any
	switch st.Options()["value_format"] {
	case FormatString:
		value = string(m.Value)
	case FormatBytes:
		value = m.Value
	default:
		v, err := record.Decode(m.Value)
		if err != nil {
			return nil, err
		}
		value = v
	}
	if envelope, _ := st.Options()["envelope"].(bool); !envelope {
		return value, nil
	}
	headers := make(map[string]any, len(m.Headers))
	for k, v := range m.Headers {
		headers[k] = string(v)
	}
	return map[string]any{
		"topic":     m.Topic,
		"partition": int(m.Partition),
		"offset":    m.Offset,
		"key":       string(m.Key),
		"value":     value,
		"headers":   headers,
		"timestamp": m.Timestamp,
	}, nil
}

// Finalize stops the reader and closes the driver.
func (t *Source) Finalize(context.Context, *state.State) error {
	if t.cancel != nil {
		t.cancel()
		for range t.messages {
		}
		t.cancel = nil
	}
	if t.adapter == nil {
		return nil
	}
	return t.adapter.Close()
}
