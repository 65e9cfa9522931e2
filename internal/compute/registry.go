// Package compute holds the registry of computation functions workers
// are allowed to run. Function names travel on the worker command line,
// so the mapping from name to callable is explicit and validated at
// startup instead of resolved lazily per invocation.
package compute

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/me/stardis/pkg/model"
)

// Func is one computation over a task. It mutates the task's system in
// place (filling synthetic datasets) and may consult Args and Kwargs.
type Func func(ctx context.Context, task *model.Task) error

// Registry maps function names to their implementations.
// Registration happens at startup before concurrent access, so no
// mutex is needed.
type Registry struct {
	funcs  map[string]Func
	logger *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		funcs:  make(map[string]Func),
		logger: logger.With("component", "compute-registry"),
	}
}

// Register adds a function under the given name, replacing any
// previous registration.
func (r *Registry) Register(name string, fn Func) {
	r.funcs[name] = fn
	r.logger.Info("compute function registered", "name", name)
}

// Get returns the function for the given name or an error if none is
// registered.
func (r *Registry) Get(name string) (Func, error) {
	fn, ok := r.funcs[name]
	if !ok {
		return nil, fmt.Errorf("no compute function registered for %q", name)
	}
	return fn, nil
}

// Validate checks that every requested name is registered. Workers run
// this before touching any artifact so an unknown name fails fast with
// a clear error instead of a late lookup failure.
func (r *Registry) Validate(names ...string) error {
	for _, name := range names {
		if _, ok := r.funcs[name]; !ok {
			return fmt.Errorf("unknown compute function %q (registered: %v)", name, r.Names())
		}
	}
	return nil
}

// Names returns the registered function names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
