package transform

import (
	"errors"
	"fmt"

	"pipeflow/internal/condition"
	"pipeflow/internal/options"
)

// ArrayMap applies a nested chain to every element of a list, or to every
// value of a mapping.
type ArrayMap struct{}

func (ArrayMap) Code() string { return "array_map" }

func (ArrayMap) Options() options.Schema {
	return options.Schema{{Name: "transformers", Kind: options.Any, Required: true}}
}

func (ArrayMap) Compile(r *Registry, resolved map[string]any) (map[string]any, error) {
	chain, err := Compose(r, resolved["transformers"], nil)
	if err != nil {
		return nil, err
	}
	return map[string]any{"transformers": chain}, nil
}

func (ArrayMap) Transform(value any, opts map[string]any) (any, error) {
	chain, _ := opts["transformers"].(Chain)
	switch c := value.(type) {
	case nil:
		return nil, nil
	case []any:
		out := make([]any, len(c))
		for i, item := range c {
			v, err := chain.Apply(item)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			out[i] = v
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(c))
		for k, item := range c {
			v, err := chain.Apply(item)
			if err != nil {
				return nil, fmt.Errorf("item %q: %w", k, err)
			}
			out[k] = v
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a list or a mapping, got %T", value)
}

// ArrayFilter keeps the elements of a list matching a condition.
type ArrayFilter struct{}

func (ArrayFilter) Code() string { return "array_filter" }

func (ArrayFilter) Options() options.Schema {
	return options.Schema{{Name: "condition", Kind: options.Map, Required: true}}
}

func (ArrayFilter) Compile(_ *Registry, resolved map[string]any) (map[string]any, error) {
	c, err := condition.Parse(resolved["condition"])
	if err != nil {
		return nil, err
	}
	return map[string]any{"condition": c}, nil
}

func (ArrayFilter) Transform(value any, opts map[string]any) (any, error) {
	c, ok := opts["condition"].(*condition.Condition)
	if !ok {
		return nil, errors.New("array_filter options were not compiled")
	}
	switch l := value.(type) {
	case nil:
		return nil, nil
	case []any:
		out := make([]any, 0, len(l))
		for _, item := range l {
			if c.Evaluate(item) {
				out = append(out, item)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a list, got %T", value)
}

var ArrayFirst = Func("array_first", func(v any) (any, error) {
	switch l := v.(type) {
	case nil:
		return nil, nil
	case []any:
		if len(l) == 0 {
			return nil, nil
		}
		return l[0], nil
	}
	return nil, fmt.Errorf("expected a list, got %T", v)
})
