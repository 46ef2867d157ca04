package task

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrUnknownService = errors.New("unknown task service")

// Factory creates a fresh task instance for one run.
type Factory func(svc *Services) Task

type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register adds a factory under code. It panics on duplicates.
func (r *Registry) Register(code string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[code]; dup {
		panic(fmt.Sprintf("task: service %q already registered", code))
	}
	r.factories[code] = f
}

func (r *Registry) Has(code string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[code]
	return ok
}

// New instantiates the service registered under code.
func (r *Registry) New(code string, svc *Services) (Task, error) {
	r.mu.RLock()
	f, ok := r.factories[code]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownService, code)
	}
	return f(svc), nil
}

func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]string, 0, len(r.factories))
	for code := range r.factories {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
