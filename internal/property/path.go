// Package property reads and writes values addressed by dot-separated paths
// ("customer.address.0.city") inside decoded records: string-keyed maps and
// slices, as produced by the YAML/JSON decoders and the record codec.
package property

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

var (
	ErrNotWritable = errors.New("property path is not writable")
	ErrEmptyPath   = errors.New("empty property path")
)

// Self is the path addressing the value itself.
const Self = "."

// Split breaks a path into its segments. "" and "." yield no segments.
func Split(path string) []string {
	path = strings.TrimSpace(path)
	if path == "" || path == Self {
		return nil
	}
	path = strings.TrimPrefix(path, ".")
	// a[0].b is accepted as a.0.b
	path = strings.NewReplacer("[", ".", "]", "").Replace(path)
	return strings.Split(path, ".")
}

// Get resolves path against root. The boolean is false when a segment is
// missing or the value at that point is not a container.
func Get(root any, path string) (any, bool) {
	cur := root
	for _, seg := range Split(path) {
		next, ok := child(cur, seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Has reports whether path resolves against root.
func Has(root any, path string) bool {
	_, ok := Get(root, path)
	return ok
}

// GetOrNil resolves path and returns nil for missing values.
func GetOrNil(root any, path string) any {
	v, _ := Get(root, path)
	return v
}

func child(cur any, seg string) (any, bool) {
	switch c := cur.(type) {
	case nil:
		return nil, false
	case map[string]any:
		v, ok := c[seg]
		return v, ok
	case []any:
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= len(c) {
			return nil, false
		}
		return c[i], true
	}

	rv := reflect.ValueOf(cur)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		v := rv.MapIndex(reflect.ValueOf(seg).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, false
		}
		return v.Interface(), true
	case reflect.Slice, reflect.Array:
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= rv.Len() {
			return nil, false
		}
		return rv.Index(i).Interface(), true
	case reflect.Struct:
		f := rv.FieldByNameFunc(func(name string) bool { return strings.EqualFold(name, seg) })
		if !f.IsValid() || !f.CanInterface() {
			return nil, false
		}
		return f.Interface(), true
	}
	return nil, false
}

// Writable reports whether Set can write path into root without replacing
// root itself.
func Writable(root any, path string) bool {
	segs := Split(path)
	if len(segs) == 0 {
		return false
	}
	cur := root
	for i, seg := range segs {
		last := i == len(segs)-1
		switch c := cur.(type) {
		case map[string]any:
			if last {
				return true
			}
			next, ok := c[seg]
			if !ok || next == nil {
				// intermediate maps are created on demand
				return true
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(c) {
				return false
			}
			if last {
				return true
			}
			cur = c[idx]
		default:
			return false
		}
	}
	return false
}

// Set writes value at path inside root, creating intermediate maps as needed.
// Slices are written in place; their length never changes.
func Set(root any, path string, value any) error {
	segs := Split(path)
	if len(segs) == 0 {
		return ErrEmptyPath
	}
	cur := root
	for i, seg := range segs {
		last := i == len(segs)-1
		switch c := cur.(type) {
		case map[string]any:
			if last {
				c[seg] = value
				return nil
			}
			next, ok := c[seg]
			if !ok || next == nil {
				next = map[string]any{}
				c[seg] = next
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(c) {
				return fmt.Errorf("%w: index %q out of range at %q", ErrNotWritable, seg, path)
			}
			if last {
				c[idx] = value
				return nil
			}
			cur = c[idx]
		default:
			return fmt.Errorf("%w: %q traverses a %T", ErrNotWritable, path, cur)
		}
	}
	return nil
}

// Delete removes the last segment of path from its parent map.
func Delete(root any, path string) bool {
	segs := Split(path)
	if len(segs) == 0 {
		return false
	}
	parent, ok := Get(root, strings.Join(segs[:len(segs)-1], "."))
	if !ok {
		return false
	}
	m, ok := parent.(map[string]any)
	if !ok {
		return false
	}
	if _, exists := m[segs[len(segs)-1]]; !exists {
		return false
	}
	delete(m, segs[len(segs)-1])
	return true
}

// Clone deep-copies the maps and slices of a decoded record. Other values
// are shared.
func Clone(v any) any {
	switch c := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(c))
		for k, item := range c {
			out[k] = Clone(item)
		}
		return out
	case []any:
		out := make([]any, len(c))
		for i, item := range c {
			out[i] = Clone(item)
		}
		return out
	}
	return v
}
