package transform

import (
	"errors"
	"fmt"
	"sort"

	"pipeflow/internal/definition"
	"pipeflow/internal/options"
	"pipeflow/internal/property"
)

var ErrMissingProperty = errors.New("source property not found")

// MergeFunc writes value at target inside result and returns the result to
// keep using.
type MergeFunc func(result any, target string, value any) (any, error)

// Mapping builds a new value property by property:
//
//	mapping:
//	  keep_input_data: false
//	  mapping:
//	    id: ~                          # same path as the target
//	    name: { code: customer.name, transformers: { trim: ~ } }
//	    address: { code: { city: addr.city, zip: addr.zip } }
//	    source: { constant: crm }
//	    deleted: { set_null: true }
type Mapping struct{}

type mappingTarget struct {
	property      string
	code          any
	constant      any
	hasConstant   bool
	setNull       bool
	ignoreMissing *bool
	chain         Chain
}

var targetSchema = options.Schema{
	{Name: "code", Kind: options.Any},
	{Name: "constant", Kind: options.Any},
	{Name: "set_null", Kind: options.Bool, Default: false},
	{Name: "ignore_missing", Kind: options.Bool, Nullable: true},
	{Name: "transformers", Kind: options.Any},
}

func (Mapping) Code() string { return "mapping" }

func (Mapping) Options() options.Schema {
	return options.Schema{
		{Name: "mapping", Kind: options.Map, Required: true},
		{Name: "ignore_missing", Kind: options.Bool, Default: false},
		{Name: "keep_input_data", Kind: options.Bool, Default: false},
		{Name: "initial_value", Kind: options.Any},
		{Name: "merge_callback", Kind: options.Any, Validate: func(v any) error {
			if _, ok := mergeFunc(v); !ok {
				return fmt.Errorf("%w: merge_callback must be a MergeFunc, got %T", options.ErrInvalidType, v)
			}
			return nil
		}},
	}
}

func mergeFunc(v any) (MergeFunc, bool) {
	switch f := v.(type) {
	case MergeFunc:
		return f, true
	case func(any, string, any) (any, error):
		return f, true
	}
	return nil, false
}

func (Mapping) Compile(r *Registry, resolved map[string]any) (map[string]any, error) {
	if keep, _ := resolved["keep_input_data"].(bool); keep && resolved["initial_value"] != nil {
		return nil, errors.New("keep_input_data and initial_value are mutually exclusive")
	}

	var decls definition.Ordered
	switch m := resolved["mapping"].(type) {
	case definition.Ordered:
		decls = m
	case map[string]any:
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			decls = append(decls, definition.Entry{Key: k, Value: m[k]})
		}
	}

	targets := make([]mappingTarget, 0, len(decls))
	for _, d := range decls {
		t, err := compileTarget(r, d.Key, d.Value)
		if err != nil {
			return nil, &Error{Property: d.Key, Err: err}
		}
		targets = append(targets, t)
	}

	out := make(map[string]any, len(resolved))
	for k, v := range resolved {
		out[k] = v
	}
	out["mapping"] = targets
	return out, nil
}

func compileTarget(r *Registry, target string, decl any) (mappingTarget, error) {
	t := mappingTarget{property: target}
	var raw map[string]any
	switch d := decl.(type) {
	case nil:
		t.code = target
		return t, nil
	case string:
		t.code = d
		return t, nil
	case []any:
		t.code = d
		return t, nil
	case definition.Ordered:
		raw = d.Map()
	case map[string]any:
		raw = d
	default:
		return t, fmt.Errorf("unsupported mapping declaration %T", decl)
	}

	opts, err := options.Resolve(targetSchema, raw, nil)
	if err != nil {
		return t, err
	}
	_, t.hasConstant = raw["constant"]
	t.constant = opts["constant"]
	t.setNull = opts["set_null"].(bool)
	if im, ok := opts["ignore_missing"].(bool); ok {
		t.ignoreMissing = &im
	}
	switch c := opts["code"].(type) {
	case nil:
		if !t.hasConstant && !t.setNull {
			t.code = target
		}
	case string, []any, map[string]any:
		t.code = c
	case definition.Ordered:
		t.code = c.Map()
	default:
		return t, fmt.Errorf("%w: code must be a path, a list or a mapping of paths, got %T", options.ErrInvalidType, c)
	}
	if t.chain, err = Compose(r, opts["transformers"], nil); err != nil {
		return t, err
	}
	return t, nil
}

func (Mapping) Transform(value any, opts map[string]any) (any, error) {
	targets, ok := opts["mapping"].([]mappingTarget)
	if !ok {
		return nil, errors.New("mapping options were not compiled")
	}
	ignoreMissing, _ := opts["ignore_missing"].(bool)
	merge, _ := mergeFunc(opts["merge_callback"])

	var result any
	switch {
	case opts["keep_input_data"] == true:
		result = property.Clone(value)
	case opts["initial_value"] != nil:
		result = property.Clone(opts["initial_value"])
	default:
		result = map[string]any{}
	}

	for _, t := range targets {
		ignore := ignoreMissing
		if t.ignoreMissing != nil {
			ignore = *t.ignoreMissing
		}
		v, found, err := t.source(value, ignore)
		if err != nil {
			return nil, &Error{Property: t.property, Err: err}
		}
		if !found {
			continue
		}
		if v, err = t.chain.Apply(v); err != nil {
			return nil, &Error{Property: t.property, Err: err}
		}
		if result, err = write(result, t.property, v, merge); err != nil {
			return nil, &Error{Property: t.property, Err: err}
		}
	}
	return result, nil
}

// source resolves the value for one target. found is false when a missing
// source is ignored.
func (t mappingTarget) source(input any, ignoreMissing bool) (any, bool, error) {
	switch {
	case t.setNull:
		return nil, true, nil
	case t.hasConstant:
		return t.constant, true, nil
	}
	switch code := t.code.(type) {
	case string:
		v, ok := property.Get(input, code)
		if !ok {
			if ignoreMissing {
				return nil, false, nil
			}
			return nil, false, fmt.Errorf("%w: %q", ErrMissingProperty, code)
		}
		return v, true, nil
	case []any:
		out := make(map[string]any, len(code))
		for _, p := range code {
			path := fmt.Sprint(p)
			v, ok := property.Get(input, path)
			if !ok {
				if ignoreMissing {
					continue
				}
				return nil, false, fmt.Errorf("%w: %q", ErrMissingProperty, path)
			}
			out[path] = v
		}
		return out, true, nil
	case map[string]any:
		out := make(map[string]any, len(code))
		for name, p := range code {
			path := fmt.Sprint(p)
			v, ok := property.Get(input, path)
			if !ok {
				if ignoreMissing {
					continue
				}
				return nil, false, fmt.Errorf("%w: %q", ErrMissingProperty, path)
			}
			out[name] = v
		}
		return out, true, nil
	}
	return nil, true, nil
}

func write(result any, target string, v any, merge MergeFunc) (any, error) {
	if merge != nil {
		return merge(result, target, v)
	}
	if property.Writable(result, target) {
		return result, property.Set(result, target, v)
	}
	switch r := result.(type) {
	case nil:
		return map[string]any{target: v}, nil
	case map[string]any:
		r[target] = v
		return r, nil
	}
	return nil, fmt.Errorf("%w: cannot write into %T", property.ErrNotWritable, result)
}
