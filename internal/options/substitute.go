package options

import (
	"fmt"
	"regexp"
	"strings"

	"pipeflow/internal/definition"
)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// Substitute returns a deep copy of value where "{{ key }}" placeholders in
// strings are replaced by runContext entries. A string made of a single
// placeholder takes the context value as is (keeping its type); unknown keys
// are left untouched.
func Substitute(value any, runContext map[string]any) any {
	switch v := value.(type) {
	case string:
		return substituteString(v, runContext)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = Substitute(item, runContext)
		}
		return out
	case definition.Ordered:
		out := make(definition.Ordered, len(v))
		for i, e := range v {
			out[i] = definition.Entry{Key: e.Key, Value: Substitute(e.Value, runContext)}
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Substitute(item, runContext)
		}
		return out
	}
	return value
}

func substituteString(s string, runContext map[string]any) any {
	if len(runContext) == 0 || !strings.Contains(s, "{{") {
		return s
	}
	if m := placeholder.FindStringSubmatch(s); m != nil && m[0] == strings.TrimSpace(s) {
		if v, ok := runContext[m[1]]; ok {
			return v
		}
		return s
	}
	return placeholder.ReplaceAllStringFunc(s, func(match string) string {
		key := placeholder.FindStringSubmatch(match)[1]
		if v, ok := runContext[key]; ok {
			return fmt.Sprint(v)
		}
		return match
	})
}
