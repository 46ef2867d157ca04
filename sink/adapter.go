package sink

import "fmt"

// Adapter is the common behaviour every sink exposes.
type Adapter interface {
	Configure(any) error   // driver-specific options ⇒ struct
	Push(record any) error // consume one record
	Close() error          // idempotent
}

// Flusher is optional; sinks that buffer records implement it. The sink
// task flushes at the end of every upstream pass.
type Flusher interface {
	Flush() error
}

/*──────── registry ───────*/

type factory = func() Adapter

var reg = map[string]factory{}

func Register(name string, f factory) { reg[name] = f }

func NewAdapter(name string) (Adapter, error) {
	if f, ok := reg[name]; ok {
		return f(), nil
	}
	return nil, fmt.Errorf("unknown sink %q", name)
}
