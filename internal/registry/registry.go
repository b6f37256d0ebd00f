package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/specialistvlad/taskgrid/internal/buildfile"
)

// Module is the interface that all action modules implement to be registered.
type Module interface {
	Register(r *Registry)
}

// RegisteredAction holds the compiled Go parts of one action.
type RegisteredAction struct {
	// NewInput returns a pointer to a fresh input struct with `cty` tags.
	NewInput func() any
	// Run performs the action with a decoded input.
	Run func(ctx context.Context, task *buildfile.Task, input any) error
}

// Registry stores all registered actions.
type Registry struct {
	actions map[string]*RegisteredAction
}

// New creates a registry and registers the given modules with it.
func New(modules ...Module) *Registry {
	r := &Registry{actions: make(map[string]*RegisteredAction)}
	for _, m := range modules {
		m.Register(r)
	}
	return r
}

// RegisterAction adds an action. Registering a name twice panics.
func (r *Registry) RegisterAction(name string, action *RegisteredAction) {
	if _, exists := r.actions[name]; exists {
		panic(fmt.Sprintf("action with name '%s' already registered", name))
	}
	slog.Debug("Registering action.", "name", name)
	r.actions[name] = action
}

// Register is the typed form of RegisterAction.
func Register[T any](r *Registry, name string, fn func(ctx context.Context, task *buildfile.Task, input *T) error) {
	r.RegisterAction(name, &RegisteredAction{
		NewInput: func() any { return new(T) },
		Run: func(ctx context.Context, task *buildfile.Task, input any) error {
			return fn(ctx, task, input.(*T))
		},
	})
}

// Lookup returns the action registered under name.
func (r *Registry) Lookup(name string) (*RegisteredAction, bool) {
	a, ok := r.actions[name]
	return a, ok
}

// Names returns the registered action names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
