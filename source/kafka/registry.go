package kafka

import "fmt"

// Factory builds an Adapter.
type Factory func() Adapter

var registry = map[string]Factory{
	"sarama": func() Adapter { return &SaramaDriver{} },
}

// Register adds or replaces a driver.
func Register(name string, f Factory) {
	registry[name] = f
}

// NewAdapter returns a driver by name ("sarama" is built in).
func NewAdapter(name string) (Adapter, error) {
	if f, ok := registry[name]; ok {
		return f(), nil
	}
	return nil, fmt.Errorf("kafka: unsupported driver %q", name)
}
