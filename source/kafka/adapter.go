package kafka

import (
	"context"
	"time"
)

// Message is one consumed Kafka record.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string][]byte
	Timestamp time.Time
}

type EmitFunc func(Message) error

// Adapter reads a bounded slice of one or more topics. Run returns once
// MaxMessages were emitted, once no message arrived for IdleTimeout, or
// when ctx is done.
type Adapter interface {
	Configure(Config) error
	Run(context.Context, EmitFunc) error
	Close() error
}
