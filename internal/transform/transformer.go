package transform

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"pipeflow/internal/options"
)

var ErrUnknownTransformer = errors.New("unknown transformer")

// Transformer is a pure value-to-value function identified by a stable code.
type Transformer interface {
	Code() string
	Transform(value any, options map[string]any) (any, error)
}

// Configurable transformers declare the options they accept. Transformers
// that are not configurable reject any option.
type Configurable interface {
	Options() options.Schema
}

// Compiler is implemented by transformers whose options embed nested chains
// or conditions. Compile runs once when the chain is composed and returns
// the options Transform will receive.
type Compiler interface {
	Compile(r *Registry, resolved map[string]any) (map[string]any, error)
}

type registered struct {
	t      Transformer
	schema options.Schema
}

type Registry struct {
	mu      sync.RWMutex
	entries map[string]registered
}

func NewRegistry() *Registry {
	return &Registry{entries: map[string]registered{}}
}

// Register adds t under its code. It panics on a duplicate code or on an
// empty code.
func (r *Registry) Register(t Transformer) {
	code := t.Code()
	if code == "" {
		panic("transform: empty transformer code")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.entries[code]; dup {
		panic(fmt.Sprintf("transform: transformer %q already registered", code))
	}
	e := registered{t: t}
	if c, ok := t.(Configurable); ok {
		e.schema = c.Options()
		if e.schema == nil {
			e.schema = options.Schema{}
		}
	}
	r.entries[code] = e
}

func (r *Registry) Has(code string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[code]
	return ok
}

func (r *Registry) Get(code string) (Transformer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[code]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownTransformer, code)
	}
	return e.t, nil
}

// Schema returns the option schema of a configurable transformer.
func (r *Registry) Schema(code string) (options.Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[code]
	if !ok || e.schema == nil {
		return nil, false
	}
	return e.schema, true
}

func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]string, 0, len(r.entries))
	for code := range r.entries {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
