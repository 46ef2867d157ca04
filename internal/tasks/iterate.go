package tasks

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"pipeflow/internal/definition"
	"pipeflow/internal/options"
	"pipeflow/internal/property"
	"pipeflow/internal/state"
)

// cursor walks the items of one input. It is active between the first
// Execute of a pass and the Next call that exhausts it.
type cursor struct {
	items  []any
	pos    int
	active bool
}

func (c *cursor) start(items []any) bool {
	c.items, c.pos, c.active = items, 0, len(items) > 0
	return c.active
}

func (c *cursor) current() any { return c.items[c.pos] }

func (c *cursor) next() bool {
	if !c.active {
		return false
	}
	c.pos++
	if c.pos < len(c.items) {
		return true
	}
	c.items, c.pos, c.active = nil, 0, false
	return false
}

// emit sets the current item as the output, starting the cursor from items
// when it is not active. An empty input skips the record.
func (c *cursor) emit(st *state.State, items func() ([]any, error)) error {
	if !c.active {
		list, err := items()
		if err != nil {
			return err
		}
		if !c.start(list) {
			st.SetSkipped(true)
			return nil
		}
	}
	st.SetOutput(c.current())
	return nil
}

// Iterate emits every element of its input (or of the list found at path)
// as a separate record.
type Iterate struct {
	cursor
}

func (*Iterate) Options() options.Schema {
	return options.Schema{
		{Name: "path", Kind: options.String, Default: ""},
		{Name: "with_keys", Kind: options.Bool, Default: false},
	}
}

func (t *Iterate) Execute(_ context.Context, st *state.State) error {
	return t.emit(st, func() ([]any, error) {
		v := st.Input()
		if path, _ := st.Options()["path"].(string); path != "" {
			v = property.GetOrNil(v, path)
		}
		withKeys, _ := st.Options()["with_keys"].(bool)
		return items(v, withKeys)
	})
}

func (t *Iterate) Next(*state.State) bool { return t.next() }

// items lists the elements of a collection. Mappings yield their values in
// key order, or {key, value} pairs with withKeys. null yields nothing and a
// scalar yields itself.
func items(v any, withKeys bool) ([]any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []any:
		return x, nil
	case definition.Ordered:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = pair(e.Key, e.Value, withKeys)
		}
		return out, nil
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = pair(k, x[k], withKeys)
		}
		return out, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, nil
	case reflect.Map, reflect.Chan, reflect.Func:
		return nil, fmt.Errorf("cannot iterate over %T", v)
	}
	return []any{v}, nil
}

func pair(k string, v any, withKeys bool) any {
	if withKeys {
		return map[string]any{"key": k, "value": v}
	}
	return v
}
