package definition

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Entry is one key of an Ordered mapping.
type Entry struct {
	Key   string
	Value any
}

// Ordered is a mapping whose key order is significant. Option mappings
// declared under a "transformers" (or "*_transformers") or "mapping" key
// decode into it.
type Ordered []Entry

// Keys returns the keys in declaration order.
func (o Ordered) Keys() []string {
	keys := make([]string, len(o))
	for i, e := range o {
		keys[i] = e.Key
	}
	return keys
}

// Get returns the value stored under key.
func (o Ordered) Get(key string) (any, bool) {
	for _, e := range o {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Map converts o into an unordered map.
func (o Ordered) Map() map[string]any {
	m := make(map[string]any, len(o))
	for _, e := range o {
		m[e.Key] = e.Value
	}
	return m
}

// IsChainKey reports whether an option key declares a transformer chain.
func IsChainKey(key string) bool {
	return key == "transformers" || strings.HasSuffix(key, "_transformers")
}

func (p *Process) UnmarshalYAML(n *yaml.Node) error {
	var raw struct {
		Description string    `yaml:"description"`
		Help        string    `yaml:"help"`
		Public      *bool     `yaml:"public"`
		EntryPoint  string    `yaml:"entry_point"`
		EndPoint    string    `yaml:"end_point"`
		Tasks       yaml.Node `yaml:"tasks"`
	}
	if err := n.Decode(&raw); err != nil {
		return err
	}
	p.Description, p.Help, p.Public = raw.Description, raw.Help, raw.Public
	p.EntryPoint, p.EndPoint = raw.EntryPoint, raw.EndPoint
	p.Tasks = nil

	tasks := &raw.Tasks
	if tasks.Kind == 0 {
		return nil
	}
	if tasks.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: tasks must be a mapping", tasks.Line)
	}
	seen := map[string]bool{}
	for i := 0; i+1 < len(tasks.Content); i += 2 {
		code := tasks.Content[i].Value
		if seen[code] {
			return fmt.Errorf("line %d: task %q declared twice", tasks.Content[i].Line, code)
		}
		seen[code] = true
		t := &Task{}
		if err := tasks.Content[i+1].Decode(t); err != nil {
			return fmt.Errorf("task %q: %w", code, err)
		}
		t.Code = code
		p.Tasks = append(p.Tasks, t)
	}
	return nil
}

func (t *Task) UnmarshalYAML(n *yaml.Node) error {
	var raw struct {
		Service     string    `yaml:"service"`
		Description string    `yaml:"description"`
		Help        string    `yaml:"help"`
		Options     yaml.Node `yaml:"options"`
		Outputs     yaml.Node `yaml:"outputs"`
		Errors      yaml.Node `yaml:"errors"`

		ErrorStrategy string `yaml:"error_strategy"`
		LogErrors     *bool  `yaml:"log_errors"`
	}
	if err := n.Decode(&raw); err != nil {
		return err
	}
	t.Service, t.Description, t.Help = raw.Service, raw.Description, raw.Help
	t.ErrorStrategy, t.LogErrors = raw.ErrorStrategy, raw.LogErrors

	var err error
	if t.Outputs, err = stringList(&raw.Outputs); err != nil {
		return fmt.Errorf("outputs: %w", err)
	}
	if t.Errors, err = stringList(&raw.Errors); err != nil {
		return fmt.Errorf("errors: %w", err)
	}

	t.Options = map[string]any{}
	if raw.Options.Kind == 0 {
		return nil
	}
	v, err := NodeValue(&raw.Options)
	if err != nil {
		return fmt.Errorf("options: %w", err)
	}
	switch opts := v.(type) {
	case nil:
	case map[string]any:
		t.Options = opts
	default:
		return fmt.Errorf("line %d: options must be a mapping", raw.Options.Line)
	}
	return nil
}

// stringList accepts a scalar or a sequence of scalars.
func stringList(n *yaml.Node) ([]string, error) {
	switch n.Kind {
	case 0:
		return nil, nil
	case yaml.ScalarNode:
		if n.Tag == "!!null" || n.Value == "" {
			return nil, nil
		}
		return []string{n.Value}, nil
	case yaml.SequenceNode:
		var out []string
		if err := n.Decode(&out); err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("line %d: expected a task code or a list of codes", n.Line)
}

func isOrderedKey(key string) bool {
	return IsChainKey(key) || key == "mapping"
}

// NodeValue converts a YAML node into plain Go values. Mappings become
// map[string]any except chain declarations, which become Ordered.
func NodeValue(n *yaml.Node) (any, error) {
	return nodeValue(n, false)
}

func nodeValue(n *yaml.Node, ordered bool) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return nodeValue(n.Content[0], ordered)
	case yaml.AliasNode:
		return nodeValue(n.Alias, ordered)
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, item := range n.Content {
			v, err := nodeValue(item, ordered)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.MappingNode:
		if ordered {
			out := make(Ordered, 0, len(n.Content)/2)
			for i := 0; i+1 < len(n.Content); i += 2 {
				key := n.Content[i].Value
				if _, dup := out.Get(key); dup {
					return nil, fmt.Errorf("line %d: key %q declared twice", n.Content[i].Line, key)
				}
				v, err := nodeValue(n.Content[i+1], false)
				if err != nil {
					return nil, err
				}
				out = append(out, Entry{Key: key, Value: v})
			}
			return out, nil
		}
		out := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			if _, dup := out[key]; dup {
				return nil, fmt.Errorf("line %d: key %q declared twice", n.Content[i].Line, key)
			}
			v, err := nodeValue(n.Content[i+1], isOrderedKey(key))
			if err != nil {
				return nil, err
			}
			out[key] = v
		}
		return out, nil
	}
	return nil, fmt.Errorf("line %d: unsupported yaml node", n.Line)
}
