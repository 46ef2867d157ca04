package transform

import (
	"fmt"
	"strconv"
	"strings"

	"pipeflow/internal/condition"
	"pipeflow/internal/options"
	"pipeflow/internal/property"
)

// simple adapts a function to a Transformer.
type simple struct {
	code   string
	schema options.Schema
	fn     func(value any, opts map[string]any) (any, error)
}

func (s simple) Code() string { return s.code }

func (s simple) Transform(value any, opts map[string]any) (any, error) {
	return s.fn(value, opts)
}

type configurable struct{ simple }

func (c configurable) Options() options.Schema { return c.schema }

// Func builds a transformer without options.
func Func(code string, fn func(value any) (any, error)) Transformer {
	return simple{code: code, fn: func(v any, _ map[string]any) (any, error) { return fn(v) }}
}

// ConfigurableFunc builds a transformer accepting the options of schema.
func ConfigurableFunc(code string, schema options.Schema, fn func(value any, opts map[string]any) (any, error)) Transformer {
	return configurable{simple{code: code, schema: schema, fn: fn}}
}

func stringFunc(code string, fn func(string) string) Transformer {
	return Func(code, func(v any) (any, error) {
		switch s := v.(type) {
		case nil:
			return nil, nil
		case string:
			return fn(s), nil
		}
		return nil, fmt.Errorf("expected a string, got %T", v)
	})
}

var (
	Uppercase = stringFunc("uppercase", strings.ToUpper)
	Lowercase = stringFunc("lowercase", strings.ToLower)
)

var Property = ConfigurableFunc("property", options.Schema{
	{Name: "property_path", Kind: options.String, Required: true},
	{Name: "ignore_missing", Kind: options.Bool, Default: false},
}, func(v any, opts map[string]any) (any, error) {
	path := opts["property_path"].(string)
	out, ok := property.Get(v, path)
	if !ok && opts["ignore_missing"] != true {
		return nil, fmt.Errorf("%w: %q", ErrMissingProperty, path)
	}
	return out, nil
})

var Default = ConfigurableFunc("default", options.Schema{
	{Name: "value", Kind: options.Any, Required: true, Nullable: true},
}, func(v any, opts map[string]any) (any, error) {
	if v == nil {
		return opts["value"], nil
	}
	return v, nil
})

var Constant = ConfigurableFunc("constant", options.Schema{
	{Name: "constant", Kind: options.Any, Required: true, Nullable: true},
}, func(_ any, opts map[string]any) (any, error) {
	return opts["constant"], nil
})

var Trim = ConfigurableFunc("trim", options.Schema{
	{Name: "characters", Kind: options.String, Default: ""},
}, func(v any, opts map[string]any) (any, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case string:
		if chars := opts["characters"].(string); chars != "" {
			return strings.Trim(s, chars), nil
		}
		return strings.TrimSpace(s), nil
	}
	return nil, fmt.Errorf("expected a string, got %T", v)
})

var Cast = ConfigurableFunc("cast", options.Schema{
	{Name: "type", Kind: options.String, Required: true, Allowed: []any{"string", "int", "float", "bool"}},
}, func(v any, opts map[string]any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch opts["type"] {
	case "string":
		return condition.Stringify(v), nil
	case "int":
		if i, ok := options.AsInt(v); ok {
			return i, nil
		}
		if f, ok := options.AsFloat(v); ok {
			return int(f), nil
		}
		if b, ok := v.(bool); ok {
			if b {
				return 1, nil
			}
			return 0, nil
		}
		return strconv.Atoi(strings.TrimSpace(condition.Stringify(v)))
	case "float":
		if f, ok := options.AsFloat(v); ok {
			return f, nil
		}
		return strconv.ParseFloat(strings.TrimSpace(condition.Stringify(v)), 64)
	case "bool":
		if s, ok := v.(string); ok {
			if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
				return b, nil
			}
		}
		return !condition.IsEmptyValue(v), nil
	}
	return nil, fmt.Errorf("unsupported cast type %v", opts["type"])
})

var Explode = ConfigurableFunc("explode", options.Schema{
	{Name: "delimiter", Kind: options.String, Default: ","},
}, func(v any, opts map[string]any) (any, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case string:
		if s == "" {
			return []any{}, nil
		}
		parts := strings.Split(s, opts["delimiter"].(string))
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a string, got %T", v)
})

var Implode = ConfigurableFunc("implode", options.Schema{
	{Name: "separator", Kind: options.String, Default: ","},
}, func(v any, opts map[string]any) (any, error) {
	switch l := v.(type) {
	case nil:
		return nil, nil
	case []any:
		parts := make([]string, len(l))
		for i, item := range l {
			parts[i] = condition.Stringify(item)
		}
		return strings.Join(parts, opts["separator"].(string)), nil
	}
	return nil, fmt.Errorf("expected a list, got %T", v)
})

var Sprintf = ConfigurableFunc("sprintf", options.Schema{
	{Name: "format", Kind: options.String, Required: true},
}, func(v any, opts map[string]any) (any, error) {
	format := opts["format"].(string)
	if l, ok := v.([]any); ok {
		return fmt.Sprintf(format, l...), nil
	}
	return fmt.Sprintf(format, v), nil
})
