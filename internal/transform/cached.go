package transform

import (
	"fmt"
	"time"

	"pipeflow/internal/logging"
	"pipeflow/internal/options"
)

// Cached memoizes a nested chain. The cache key is the result of
// cache_key_transformers applied to the value, prefixed with
// cache_key_prefix. Cache failures fall back to computing the value.
type Cached struct {
	cache Cache
}

func NewCached(cache Cache) *Cached {
	return &Cached{cache: cache}
}

func (*Cached) Code() string { return "cached" }

func (*Cached) Options() options.Schema {
	return options.Schema{
		{Name: "cache_key_transformers", Kind: options.Any, Required: true},
		{Name: "transformers", Kind: options.Any, Required: true},
		{Name: "expires_after", Kind: options.Duration, Default: time.Duration(0)},
		{Name: "cache_key_prefix", Kind: options.String, Default: ""},
	}
}

func (*Cached) Compile(r *Registry, resolved map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(resolved))
	for k, v := range resolved {
		out[k] = v
	}
	for _, key := range []string{"cache_key_transformers", "transformers"} {
		chain, err := Compose(r, resolved[key], nil)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		out[key] = chain
	}
	return out, nil
}

func (c *Cached) Transform(value any, opts map[string]any) (any, error) {
	keyChain, _ := opts["cache_key_transformers"].(Chain)
	chain, _ := opts["transformers"].(Chain)
	ttl, _ := opts["expires_after"].(time.Duration)
	prefix, _ := opts["cache_key_prefix"].(string)

	k, err := keyChain.Apply(value)
	if err != nil {
		return nil, err
	}
	key := prefix + fmt.Sprint(k)

	cached, hit, err := c.cache.Get(key)
	if err != nil {
		logging.L().Warn("cache read failed, computing directly", "key", key, "err", err)
		return chain.Apply(value)
	}
	if hit {
		return cached, nil
	}

	result, err := chain.Apply(value)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(key, result, ttl); err != nil {
		logging.L().Warn("cache write failed", "key", key, "err", err)
	}
	return result, nil
}
