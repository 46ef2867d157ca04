// Package condition evaluates the small predicate language shared by tasks
// and transformers:
//
//	match:            { status: active }   # equality, a missing path reads as null
//	not_match:        { type: ~ }
//	match_regexp:     { email: '/@example\.com$/i' }
//	not_match_regexp: { name: '^test' }
//	empty:            [ deleted_at ]
//	not_empty:        [ id, name ]
//
// Every configured family must hold; an empty condition is always true.
package condition

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"pipeflow/internal/definition"
	"pipeflow/internal/options"
	"pipeflow/internal/property"
)

const (
	Match          = "match"
	NotMatch       = "not_match"
	MatchRegexp    = "match_regexp"
	NotMatchRegexp = "not_match_regexp"
	Empty          = "empty"
	NotEmpty       = "not_empty"
)

type Condition struct {
	match          map[string]any
	notMatch       map[string]any
	matchRegexp    map[string]*regexp.Regexp
	notMatchRegexp map[string]*regexp.Regexp
	empty          []string
	notEmpty       []string
}

// Parse builds a condition from its declaration. nil yields an empty
// condition.
func Parse(raw any) (*Condition, error) {
	c := &Condition{}
	var decl map[string]any
	switch r := raw.(type) {
	case nil:
		return c, nil
	case map[string]any:
		decl = r
	case definition.Ordered:
		decl = r.Map()
	default:
		return nil, fmt.Errorf("condition must be a mapping, got %T", raw)
	}

	for family, v := range decl {
		var err error
		switch family {
		case Match:
			c.match, err = valueMap(family, v)
		case NotMatch:
			c.notMatch, err = valueMap(family, v)
		case MatchRegexp:
			c.matchRegexp, err = regexpMap(family, v)
		case NotMatchRegexp:
			c.notMatchRegexp, err = regexpMap(family, v)
		case Empty:
			c.empty, err = pathList(family, v)
		case NotEmpty:
			c.notEmpty, err = pathList(family, v)
		default:
			err = fmt.Errorf("unknown condition %q", family)
		}
		if err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustParse is Parse for declarations known to be valid.
func MustParse(raw any) *Condition {
	c, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return c
}

// IsEmpty reports whether no predicate is configured.
func (c *Condition) IsEmpty() bool {
	return c == nil || len(c.match)+len(c.notMatch)+len(c.matchRegexp)+
		len(c.notMatchRegexp)+len(c.empty)+len(c.notEmpty) == 0
}

// Evaluate reports whether input satisfies every configured predicate.
func (c *Condition) Evaluate(input any) bool {
	if c == nil {
		return true
	}
	for path, want := range c.match {
		if !Equal(property.GetOrNil(input, path), want) {
			return false
		}
	}
	for path, unwanted := range c.notMatch {
		if Equal(property.GetOrNil(input, path), unwanted) {
			return false
		}
	}
	for path, re := range c.matchRegexp {
		if !re.MatchString(Stringify(property.GetOrNil(input, path))) {
			return false
		}
	}
	for path, re := range c.notMatchRegexp {
		if re.MatchString(Stringify(property.GetOrNil(input, path))) {
			return false
		}
	}
	for _, path := range c.empty {
		if !IsEmptyValue(property.GetOrNil(input, path)) {
			return false
		}
	}
	for _, path := range c.notEmpty {
		if IsEmptyValue(property.GetOrNil(input, path)) {
			return false
		}
	}
	return true
}

func valueMap(family string, v any) (map[string]any, error) {
	switch m := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return m, nil
	case definition.Ordered:
		return m.Map(), nil
	}
	return nil, fmt.Errorf("%s: expected path → value mapping, got %T", family, v)
}

func regexpMap(family string, v any) (map[string]*regexp.Regexp, error) {
	values, err := valueMap(family, v)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*regexp.Regexp, len(values))
	for path, p := range values {
		pattern, ok := p.(string)
		if !ok {
			return nil, fmt.Errorf("%s.%s: pattern must be a string, got %T", family, path, p)
		}
		re, err := CompilePattern(pattern)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", family, path, err)
		}
		out[path] = re
	}
	return out, nil
}

// pathList accepts a list of paths or a mapping whose keys are paths.
func pathList(family string, v any) ([]string, error) {
	switch l := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{l}, nil
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s: paths must be strings, got %T", family, item)
			}
			out = append(out, s)
		}
		return out, nil
	case map[string]any:
		out := make([]string, 0, len(l))
		for path := range l {
			out = append(out, path)
		}
		sort.Strings(out)
		return out, nil
	}
	return nil, fmt.Errorf("%s: expected a list of paths, got %T", family, v)
}

// CompilePattern accepts Go patterns and delimited "/pattern/flags" patterns
// (flags i, m, s, U).
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	if len(pattern) >= 2 && pattern[0] == '/' {
		if end := strings.LastIndex(pattern, "/"); end > 0 {
			body, flags := pattern[1:end], pattern[end+1:]
			if strings.Trim(flags, "imsU") == "" {
				if flags != "" {
					body = "(?" + flags + ")" + body
				}
				return regexp.Compile(body)
			}
		}
	}
	return regexp.Compile(pattern)
}

// Equal compares decoded values, treating numbers of any type by value.
func Equal(a, b any) bool {
	if fa, ok := options.AsFloat(a); ok {
		if fb, ok := options.AsFloat(b); ok {
			return fa == fb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// Stringify renders a value for regexp matching; null renders as "".
func Stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	case bool:
		if s {
			return "1"
		}
		return ""
	}
	return fmt.Sprint(v)
}

// IsEmptyValue follows the usual loose-emptiness rules: null, false, zero
// numbers, "", "0" and empty collections are empty.
func IsEmptyValue(v any) bool {
	switch s := v.(type) {
	case nil:
		return true
	case string:
		return s == "" || s == "0"
	case bool:
		return !s
	}
	if f, ok := options.AsFloat(v); ok {
		return f == 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
