package transform

import (
	"errors"
	"fmt"

	"pipeflow/internal/condition"
	"pipeflow/internal/definition"
	"pipeflow/internal/options"
)

// Rules returns the outcome of the first rule whose condition matches:
//
//	rules:
//	  rules_set:
//	    - { condition: { match: { type: b2b } }, constant: business }
//	    - { condition: { not_empty: [company] }, transformers: { property: { property_path: company } } }
//	    - { default: true, constant: consumer }
//
// A default rule has no condition and must come last. Without a match the
// result is null, or the value itself when use_value_as_default is set.
type Rules struct{}

type rule struct {
	condition   *condition.Condition
	isDefault   bool
	constant    any
	hasConstant bool
	setNull     bool
	chain       Chain
}

var ruleSchema = options.Schema{
	{Name: "condition", Kind: options.Map, Nullable: true},
	{Name: "default", Kind: options.Bool, Default: false},
	{Name: "constant", Kind: options.Any},
	{Name: "set_null", Kind: options.Bool, Default: false},
	{Name: "transformers", Kind: options.Any},
}

func (Rules) Code() string { return "rules" }

func (Rules) Options() options.Schema {
	return options.Schema{
		{Name: "rules_set", Kind: options.List, Required: true},
		{Name: "use_value_as_default", Kind: options.Bool, Default: false},
	}
}

func (Rules) Compile(r *Registry, resolved map[string]any) (map[string]any, error) {
	decls := resolved["rules_set"].([]any)
	rules := make([]rule, 0, len(decls))
	for i, d := range decls {
		var raw map[string]any
		switch m := d.(type) {
		case map[string]any:
			raw = m
		case definition.Ordered:
			raw = m.Map()
		default:
			return nil, fmt.Errorf("rule %d: expected a mapping, got %T", i, d)
		}
		opts, err := options.Resolve(ruleSchema, raw, nil)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		ru := rule{isDefault: opts["default"].(bool), setNull: opts["set_null"].(bool), constant: opts["constant"]}
		_, ru.hasConstant = raw["constant"]
		if opts["condition"] != nil {
			if ru.isDefault {
				return nil, fmt.Errorf("rule %d: a default rule cannot have a condition", i)
			}
			if ru.condition, err = condition.Parse(opts["condition"]); err != nil {
				return nil, fmt.Errorf("rule %d: %w", i, err)
			}
		} else if !ru.isDefault {
			return nil, fmt.Errorf("rule %d: a condition is required unless the rule is the default", i)
		}
		if ru.isDefault && i != len(decls)-1 {
			return nil, errors.New("the default rule must be the last one")
		}
		if ru.chain, err = Compose(r, opts["transformers"], nil); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rules = append(rules, ru)
	}

	out := make(map[string]any, len(resolved))
	for k, v := range resolved {
		out[k] = v
	}
	out["rules_set"] = rules
	return out, nil
}

func (Rules) Transform(value any, opts map[string]any) (any, error) {
	rules, ok := opts["rules_set"].([]rule)
	if !ok {
		return nil, errors.New("rules options were not compiled")
	}
	for _, ru := range rules {
		if !ru.isDefault && !ru.condition.Evaluate(value) {
			continue
		}
		switch {
		case ru.setNull:
			return nil, nil
		case ru.hasConstant:
			return ru.constant, nil
		}
		return ru.chain.Apply(value)
	}
	if opts["use_value_as_default"] == true {
		return value, nil
	}
	return nil, nil
}
