package transform

// RegisterDefaults registers the built-in transformers. The cached
// transformer stores its results in a process-local MemoryCache.
func RegisterDefaults(r *Registry) {
	for _, t := range []Transformer{
		Mapping{},
		Rules{},
		NewCached(NewMemoryCache()),
		Property,
		Default,
		Constant,
		Trim,
		Uppercase,
		Lowercase,
		Cast,
		Explode,
		Implode,
		Sprintf,
		ArrayMap{},
		ArrayFilter{},
		ArrayFirst,
	} {
		r.Register(t)
	}
}
