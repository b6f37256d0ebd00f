package print

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/specialistvlad/taskgrid/internal/buildfile"
	"github.com/specialistvlad/taskgrid/internal/ctxlog"
	"github.com/specialistvlad/taskgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct {
	// Out receives the printed lines. It defaults to os.Stdout.
	Out io.Writer

	mu sync.Mutex
}

// Input defines the arguments for the print action.
type Input struct {
	Message *string           `cty:"message"`
	Values  map[string]string `cty:"values"`
}

// Run writes the task's message, followed by its values in key order.
func (m *Module) Run(ctx context.Context, task *buildfile.Task, input *Input) error {
	ctxlog.FromContext(ctx).Debug("Printing input")

	message := task.Path.String()
	if input.Message != nil {
		message = *input.Message
	}

	keys := make([]string, 0, len(input.Values))
	for k := range input.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := m.Out
	if out == nil {
		out = os.Stdout
	}

	// Lines of one task stay together when tasks print concurrently.
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := fmt.Fprintf(out, "[%s] %s\n", task.Path, message); err != nil {
		return err
	}
	for _, k := range keys {
		if _, err := fmt.Fprintf(out, "      %s = %q\n", k, input.Values[k]); err != nil {
			return err
		}
	}
	return nil
}

// Register registers the action with the registry.
func (m *Module) Register(r *registry.Registry) {
	registry.Register(r, "print", m.Run)
}
