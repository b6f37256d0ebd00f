package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/taskgrid/internal/buildfile"
	"github.com/specialistvlad/taskgrid/internal/ctxlog"
	"github.com/specialistvlad/taskgrid/internal/executor"
	"github.com/specialistvlad/taskgrid/internal/plan"
)

// Validate checks that every task names a registered action and that its
// arguments decode. All problems are reported together.
func (r *Registry) Validate(ctx context.Context, model *buildfile.Model) error {
	logger := ctxlog.FromContext(ctx)
	var errs []error
	for _, task := range model.Tasks {
		action, ok := r.actions[task.Action]
		if !ok {
			errs = append(errs, fmt.Errorf("%s: task %s: unknown action %q (available: %v)", task.Source, task.Path, task.Action, r.Names()))
			continue
		}
		if err := DecodeArgs(task.Args, action.NewInput()); err != nil {
			errs = append(errs, fmt.Errorf("%s: task %s: %w", task.Source, task.Path, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("build definition is invalid: %w", errors.Join(errs...))
	}
	logger.Debug("Build definition validated.", "tasks", len(model.Tasks))
	return nil
}

// Callback returns the executor callback that runs a task's action. Node
// payloads must be *buildfile.Task.
func (r *Registry) Callback() executor.Callback {
	return func(ctx context.Context, n *plan.Node) error {
		task, ok := n.Payload().(*buildfile.Task)
		if !ok {
			return fmt.Errorf("task %s has no build definition (payload %T)", n.Path(), n.Payload())
		}
		action, ok := r.actions[task.Action]
		if !ok {
			return fmt.Errorf("unknown action %q", task.Action)
		}
		input := action.NewInput()
		if err := DecodeArgs(task.Args, input); err != nil {
			return err
		}
		ctxlog.FromContext(ctx).Debug("Running action.", "action", task.Action)
		return action.Run(ctx, task, input)
	}
}
