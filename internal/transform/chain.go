package transform

import (
	"fmt"
	"regexp"

	"pipeflow/internal/definition"
	"pipeflow/internal/options"
)

var suffix = regexp.MustCompile(`#\d+$`)

// BaseCode strips the "#N" disambiguation suffix from a chain code.
func BaseCode(code string) string {
	return suffix.ReplaceAllString(code, "")
}

// Entry is one declared, not yet bound, chain element.
type Entry struct {
	Code    string
	Options map[string]any
}

// Call is a transformer bound to its resolved options.
type Call struct {
	Code        string
	Options     map[string]any
	Transformer Transformer
}

func (c Call) Apply(value any) (any, error) {
	return c.Transformer.Transform(value, c.Options)
}

// Chain is an ordered list of calls. The zero Chain returns its input.
type Chain []Call

// Apply pipes value through every call in order. A failure is wrapped in an
// *Error carrying the declared code of the failing entry.
func (c Chain) Apply(value any) (any, error) {
	var err error
	for _, call := range c {
		value, err = call.Apply(value)
		if err != nil {
			if te, ok := err.(*Error); ok && te.Code == "" {
				te.Code = call.Code
				return nil, te
			}
			return nil, &Error{Code: call.Code, Err: err}
		}
	}
	return value, nil
}

func (c Chain) Codes() []string {
	codes := make([]string, len(c))
	for i, call := range c {
		codes[i] = call.Code
	}
	return codes
}

// ParseChain reads a chain declaration. Accepted forms:
//
//	{trim: ~, sprintf: {format: "%s!"}}      ordered mapping
//	[trim, {sprintf: {format: "%s!"}}]       sequence of codes or single-key mappings
//
// A plain map is accepted when it holds at most one entry since its order
// is otherwise lost.
func ParseChain(raw any) ([]Entry, error) {
	switch r := raw.(type) {
	case nil:
		return nil, nil
	case []Entry:
		return r, nil
	case definition.Ordered:
		out := make([]Entry, 0, len(r))
		for _, e := range r {
			opts, err := entryOptions(e.Key, e.Value)
			if err != nil {
				return nil, err
			}
			out = append(out, Entry{Code: e.Key, Options: opts})
		}
		return out, nil
	case map[string]any:
		if len(r) > 1 {
			return nil, fmt.Errorf("chain declared as an unordered mapping of %d entries", len(r))
		}
		out := make([]Entry, 0, 1)
		for code, v := range r {
			opts, err := entryOptions(code, v)
			if err != nil {
				return nil, err
			}
			out = append(out, Entry{Code: code, Options: opts})
		}
		return out, nil
	case []any:
		var out []Entry
		for i, item := range r {
			if code, ok := item.(string); ok {
				out = append(out, Entry{Code: code, Options: map[string]any{}})
				continue
			}
			entries, err := ParseChain(item)
			if err != nil {
				return nil, fmt.Errorf("chain item %d: %w", i, err)
			}
			out = append(out, entries...)
		}
		return out, nil
	case string:
		return []Entry{{Code: r, Options: map[string]any{}}}, nil
	}
	return nil, fmt.Errorf("unsupported chain declaration %T", raw)
}

func entryOptions(code string, v any) (map[string]any, error) {
	switch o := v.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return o, nil
	case definition.Ordered:
		return o.Map(), nil
	}
	return nil, fmt.Errorf("options of %q must be a mapping, got %T", code, v)
}

// Compose binds a chain declaration to registered transformers. Options are
// resolved against each transformer's schema after run-context substitution.
// A raw value that is already a Chain is returned as is.
func Compose(r *Registry, raw any, runContext map[string]any) (Chain, error) {
	if c, ok := raw.(Chain); ok {
		return c, nil
	}
	entries, err := ParseChain(raw)
	if err != nil {
		return nil, err
	}
	chain := make(Chain, 0, len(entries))
	for _, e := range entries {
		call, err := bind(r, e, runContext)
		if err != nil {
			return nil, fmt.Errorf("transformer %q: %w", e.Code, err)
		}
		chain = append(chain, call)
	}
	return chain, nil
}

func bind(r *Registry, e Entry, runContext map[string]any) (Call, error) {
	t, err := r.Get(BaseCode(e.Code))
	if err != nil {
		return Call{}, err
	}
	var resolved map[string]any
	if schema, ok := r.Schema(t.Code()); ok {
		if resolved, err = options.Resolve(schema, e.Options, runContext); err != nil {
			return Call{}, err
		}
	} else {
		if len(e.Options) > 0 {
			return Call{}, fmt.Errorf("%w: transformer accepts no options", options.ErrUndefined)
		}
		resolved = map[string]any{}
	}
	if c, ok := t.(Compiler); ok {
		if resolved, err = c.Compile(r, resolved); err != nil {
			return Call{}, err
		}
	}
	return Call{Code: e.Code, Options: resolved, Transformer: t}, nil
}
