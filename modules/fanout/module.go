package fanout

import (
	"context"
	"fmt"
	"time"

	"github.com/specialistvlad/taskgrid/internal/buildfile"
	"github.com/specialistvlad/taskgrid/internal/ctxlog"
	"github.com/specialistvlad/taskgrid/internal/executor"
	"github.com/specialistvlad/taskgrid/internal/registry"
	"golang.org/x/sync/errgroup"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the fanout action.
type Input struct {
	Count    int     `cty:"count"`
	Duration *string `cty:"duration"`
}

// Run splits the task into Count concurrent parts. Each part holds a nested
// lease below the task's worker lease. One part at a time runs on the task's
// own slot and the rest compete for the worker budget with ordinary tasks.
func Run(ctx context.Context, task *buildfile.Task, input *Input) error {
	if input.Count < 1 {
		return fmt.Errorf("count must be at least 1, got %d", input.Count)
	}
	var d time.Duration
	if input.Duration != nil {
		parsed, err := time.ParseDuration(*input.Duration)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", *input.Duration, err)
		}
		d = parsed
	}

	logger := ctxlog.FromContext(ctx)
	g, gctx := errgroup.WithContext(ctx)
	for i := range input.Count {
		g.Go(func() error {
			return executor.RunNested(gctx, func(ctx context.Context) error {
				logger.Debug("Running part.", "part", i)
				select {
				case <-time.After(d):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			})
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("%s: %w", task.Path, err)
	}
	logger.Debug("All parts finished.", "parts", input.Count)
	return nil
}

// Register registers the action with the registry.
func (m *Module) Register(r *registry.Registry) {
	registry.Register(r, "fanout", Run)
}
