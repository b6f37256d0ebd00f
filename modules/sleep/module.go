package sleep

import (
	"context"
	"fmt"
	"time"

	"github.com/specialistvlad/taskgrid/internal/buildfile"
	"github.com/specialistvlad/taskgrid/internal/ctxlog"
	"github.com/specialistvlad/taskgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the sleep action.
type Input struct {
	Duration string `cty:"duration"`
}

// Run waits for the configured duration or until ctx is done.
func Run(ctx context.Context, _ *buildfile.Task, input *Input) error {
	d, err := time.ParseDuration(input.Duration)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", input.Duration, err)
	}
	if d < 0 {
		return fmt.Errorf("duration must not be negative: %s", d)
	}
	ctxlog.FromContext(ctx).Debug("Sleeping.", "duration", d)

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Register registers the action with the registry.
func (m *Module) Register(r *registry.Registry) {
	registry.Register(r, "sleep", Run)
}
