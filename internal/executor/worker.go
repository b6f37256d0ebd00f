package executor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/specialistvlad/taskgrid/internal/coordination"
	"github.com/specialistvlad/taskgrid/internal/ctxlog"
	"github.com/specialistvlad/taskgrid/internal/lease"
	"github.com/specialistvlad/taskgrid/internal/plan"
)

// runWorker is the life of one pool worker.
func (e *Executor) runWorker(ctx context.Context, ws *workerStats) error {
	logger := ctxlog.FromContext(ctx).With("workerID", ws.id)
	logger.Debug("Worker started.")

	h, err := e.coord.NewChildLease(e.coord.Root())
	if err != nil {
		return fmt.Errorf("worker %d: failed to create lease: %w", ws.id, err)
	}
	defer func() {
		if err := e.coord.RemoveLease(h); err != nil {
			logger.Warn("Failed to discard worker lease.", "lease", h, "error", err)
		}
	}()

	ws.begin()
	for e.executeWithTask(logger, h, ws) {
	}
	ws.end()

	s := ws.snapshot()
	logger.Debug("Worker finished.", "tasks", s.Tasks, "busy", s.Busy, "idle", s.Idle())
	return nil
}

// executeWithTask selects at most one task, runs it and reports the outcome.
// It returns false once the worker should exit.
func (e *Executor) executeWithTask(logger *slog.Logger, h lease.Handle, ws *workerStats) bool {
	var (
		reg  *registration
		node *plan.Node
		more bool
	)
	e.coord.WithStateLock(func(st *coordination.State) coordination.Disposition {
		reg, node, more = nil, nil, false
		cur := e.current
		if e.stopping || cur == nil || !cur.plan.HasWorkRemaining(st) {
			return coordination.Finished
		}
		n, err := cur.plan.SelectNextTask(st, h)
		if err != nil {
			logger.Error("Task selection failed, aborting plan.", "error", err)
			cur.plan.Abort(st, fmt.Errorf("task selection failed: %w", err))
			return coordination.Finished
		}
		if n == nil {
			return coordination.Retry
		}
		reg, node, more = cur, n, true
		return coordination.Finished
	})
	if node == nil {
		return more
	}

	started := time.Now()
	taskErr := e.execute(logger, reg, node, h)
	ws.record(time.Since(started))

	e.coord.WithStateLock(func(st *coordination.State) coordination.Disposition {
		if err := reg.plan.TaskComplete(st, node, taskErr); err != nil {
			logger.Error("Failed to record task completion.", "task", node.Path().String(), "error", err)
		} else if taskErr == nil && node.State() == plan.Failed {
			logger.Error("❌ Task failed after returning", "task", node.Path().String(), "error", node.Err())
		}
		return coordination.Finished
	})
	return true
}

// execute runs the callback for n outside the coordination lock. Panics are
// recovered into a PanicError.
func (e *Executor) execute(logger *slog.Logger, reg *registration, n *plan.Node, h lease.Handle) (err error) {
	ctx := ctxlog.With(ctxlog.WithLogger(reg.ctx, logger), "task", n.Path().String())
	ctx = withWorkerLease(ctx, e, h)
	taskLogger := ctxlog.FromContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
		if err != nil {
			taskLogger.Error("❌ Task failed", "error", err)
		}
	}()

	taskLogger.Info("▶️ Starting task")
	started := time.Now()
	if err = reg.fn(ctx, n); err != nil {
		return err
	}
	taskLogger.Info("✅ Finished task", "duration", time.Since(started))
	return nil
}
