package fail

import (
	"context"
	"errors"

	"github.com/specialistvlad/taskgrid/internal/buildfile"
	"github.com/specialistvlad/taskgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the fail action.
type Input struct {
	Message *string `cty:"message"`
}

// Run always fails. It is useful for rehearsing failure handling.
func Run(_ context.Context, _ *buildfile.Task, input *Input) error {
	if input.Message != nil && *input.Message != "" {
		return errors.New(*input.Message)
	}
	return errors.New("task failed")
}

// Register registers the action with the registry.
func (m *Module) Register(r *registry.Registry) {
	registry.Register(r, "fail", Run)
}
