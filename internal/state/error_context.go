package state

// ErrorContext is an ordered set of diagnostic values attached to a state
// when a task fails.
type ErrorContext struct {
	keys   []string
	values map[string]any
}

func NewErrorContext() *ErrorContext {
	return &ErrorContext{values: map[string]any{}}
}

func (c *ErrorContext) Set(key string, value any) {
	if _, ok := c.values[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.values[key] = value
}

func (c *ErrorContext) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

func (c *ErrorContext) Delete(key string) {
	if _, ok := c.values[key]; !ok {
		return
	}
	delete(c.values, key)
	for i, k := range c.keys {
		if k == key {
			c.keys = append(c.keys[:i:i], c.keys[i+1:]...)
			break
		}
	}
}

func (c *ErrorContext) Keys() []string {
	return append([]string(nil), c.keys...)
}

func (c *ErrorContext) Len() int { return len(c.keys) }

func (c *ErrorContext) Clear() {
	c.keys = nil
	c.values = map[string]any{}
}

func (c *ErrorContext) Clone() *ErrorContext {
	out := &ErrorContext{keys: append([]string(nil), c.keys...), values: make(map[string]any, len(c.values))}
	for k, v := range c.values {
		out.values[k] = v
	}
	return out
}

// Attrs flattens the context into slog key/value pairs.
func (c *ErrorContext) Attrs() []any {
	out := make([]any, 0, 2*len(c.keys))
	for _, k := range c.keys {
		out = append(out, k, c.values[k])
	}
	return out
}
