// Package options validates task and transformer options against a declared
// schema and substitutes run-context placeholders in option values.
package options

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
	"sort"
	"time"

	"pipeflow/internal/definition"
)

var (
	ErrMissing     = errors.New("required option missing")
	ErrUndefined   = errors.New("undefined option")
	ErrInvalidType = errors.New("invalid option type")
	ErrNotAllowed  = errors.New("option value not allowed")
)

// Error names the option that failed validation.
type Error struct {
	Option string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("option %q: %v", e.Option, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type Kind int

const (
	Any Kind = iota
	String
	Int
	Float
	Bool
	List
	Map
	Duration
)

func (k Kind) String() string {
	switch k {
	case String:
		return "string"
	case Int:
		return "int"
	case Float:
		return "float"
	case Bool:
		return "bool"
	case List:
		return "list"
	case Map:
		return "map"
	case Duration:
		return "duration"
	}
	return "any"
}

// Option declares one accepted option.
type Option struct {
	Name     string
	Kind     Kind
	Required bool
	Default  any
	// Nullable accepts an explicit null whatever the kind.
	Nullable bool
	// Allowed restricts the value to a fixed set when non-empty.
	Allowed []any
	// Validate runs after the type check.
	Validate func(any) error
}

// Schema is the set of options a task or transformer accepts.
type Schema []Option

// Lookup returns the declaration of name.
func (s Schema) Lookup(name string) (Option, bool) {
	for _, o := range s {
		if o.Name == name {
			return o, true
		}
	}
	return Option{}, false
}

// With returns a copy of s extended with more options.
func (s Schema) With(more ...Option) Schema {
	out := make(Schema, 0, len(s)+len(more))
	out = append(out, s...)
	return append(out, more...)
}

// Resolve substitutes runContext placeholders in raw, then validates the
// result against schema and fills defaults. raw is never modified. A nil
// schema skips validation.
func Resolve(schema Schema, raw map[string]any, runContext map[string]any) (map[string]any, error) {
	resolved, _ := Substitute(raw, runContext).(map[string]any)
	if resolved == nil {
		resolved = map[string]any{}
	}
	if schema == nil {
		return resolved, nil
	}

	var undefined []string
	for name := range resolved {
		if _, ok := schema.Lookup(name); !ok {
			undefined = append(undefined, name)
		}
	}
	if len(undefined) > 0 {
		sort.Strings(undefined)
		return nil, &Error{Option: undefined[0], Err: ErrUndefined}
	}

	for _, o := range schema {
		v, present := resolved[o.Name]
		if !present {
			if o.Required {
				return nil, &Error{Option: o.Name, Err: ErrMissing}
			}
			if o.Default != nil {
				resolved[o.Name] = o.Default
			} else if o.Nullable || o.Kind == Any {
				resolved[o.Name] = nil
			}
			continue
		}
		if v == nil {
			if o.Required && !o.Nullable {
				return nil, &Error{Option: o.Name, Err: ErrMissing}
			}
			if o.Default != nil && !o.Nullable {
				resolved[o.Name] = o.Default
			}
			continue
		}
		norm, err := checkKind(o.Kind, v)
		if err != nil {
			return nil, &Error{Option: o.Name, Err: err}
		}
		if len(o.Allowed) > 0 && !slices.ContainsFunc(o.Allowed, func(a any) bool { return reflect.DeepEqual(a, norm) }) {
			return nil, &Error{Option: o.Name, Err: fmt.Errorf("%w: %v (allowed: %v)", ErrNotAllowed, norm, o.Allowed)}
		}
		if o.Validate != nil {
			if err := o.Validate(norm); err != nil {
				return nil, &Error{Option: o.Name, Err: err}
			}
		}
		resolved[o.Name] = norm
	}
	return resolved, nil
}

func checkKind(k Kind, v any) (any, error) {
	switch k {
	case Any:
		return v, nil
	case String:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case Bool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case Int:
		if i, ok := AsInt(v); ok {
			return i, nil
		}
	case Float:
		if f, ok := AsFloat(v); ok {
			return f, nil
		}
	case List:
		switch l := v.(type) {
		case []any:
			return l, nil
		case []string:
			out := make([]any, len(l))
			for i, s := range l {
				out[i] = s
			}
			return out, nil
		}
	case Map:
		switch m := v.(type) {
		case map[string]any:
			return m, nil
		case definition.Ordered:
			return m, nil
		}
	case Duration:
		switch d := v.(type) {
		case time.Duration:
			return d, nil
		case string:
			parsed, err := time.ParseDuration(d)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidType, err)
			}
			return parsed, nil
		}
		if ms, ok := AsInt(v); ok {
			return time.Duration(ms) * time.Millisecond, nil
		}
	}
	return nil, fmt.Errorf("%w: want %s, got %T", ErrInvalidType, k, v)
}

// AsInt converts integral numbers of any width to int.
func AsInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case float32:
		if float64(n) == math.Trunc(float64(n)) {
			return int(n), true
		}
	case float64:
		if n == math.Trunc(n) {
			return int(n), true
		}
	}
	return 0, false
}

// AsFloat converts any number to float64.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	if i, ok := AsInt(v); ok {
		return float64(i), true
	}
	return 0, false
}
