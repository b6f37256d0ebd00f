package plan

import (
	"errors"
	"fmt"
	"strings"

	"github.com/specialistvlad/taskgrid/internal/taskpath"
)

var (
	// ErrDuplicateTask is returned when a task path is registered twice.
	ErrDuplicateTask = errors.New("duplicate task")
	// ErrUnknownTask is returned when a dependency names a task that was never added.
	ErrUnknownTask = errors.New("unknown task")
	// ErrCycle is returned when the dependency graph is not acyclic.
	ErrCycle = errors.New("dependency cycle")
	// ErrAborted wraps the cause of an aborted plan.
	ErrAborted = errors.New("execution aborted")
	// ErrNotExecuting is returned when completing a node that is not executing.
	ErrNotExecuting = errors.New("task is not executing")
)

// TaskFailure pairs a failed task with its error.
type TaskFailure struct {
	Path taskpath.Path
	Err  error
}

// ExecutionError is returned by AwaitCompletion when any task failed or the
// plan was aborted.
type ExecutionError struct {
	// Failed lists failed tasks in the order they failed.
	Failed []TaskFailure
	// Skipped lists tasks that never ran, in plan order.
	Skipped []taskpath.Path
	// Aborted holds the abort cause, wrapped in ErrAborted.
	Aborted error
}

func (e *ExecutionError) Error() string {
	var parts []string
	if len(e.Failed) > 0 {
		names := make([]string, len(e.Failed))
		for i, f := range e.Failed {
			names[i] = f.Path.String()
		}
		parts = append(parts, fmt.Sprintf("execution failed for %s: %v", strings.Join(names, ", "), e.Failed[0].Err))
	}
	if e.Aborted != nil {
		parts = append(parts, e.Aborted.Error())
	}
	return strings.Join(parts, "; ")
}

// Unwrap exposes every task error and the abort cause to errors.Is and errors.As.
func (e *ExecutionError) Unwrap() []error {
	out := make([]error, 0, len(e.Failed)+1)
	for _, f := range e.Failed {
		out = append(out, f.Err)
	}
	if e.Aborted != nil {
		out = append(out, e.Aborted)
	}
	return out
}

// FailedPaths returns the paths of the failed tasks.
func (e *ExecutionError) FailedPaths() []taskpath.Path {
	out := make([]taskpath.Path, len(e.Failed))
	for i, f := range e.Failed {
		out[i] = f.Path
	}
	return out
}
