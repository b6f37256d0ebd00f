package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/specialistvlad/taskgrid/internal/coordination"
	"github.com/specialistvlad/taskgrid/internal/ctxlog"
	"github.com/specialistvlad/taskgrid/internal/plan"
	"golang.org/x/sync/errgroup"
)

// Callback performs the work of one task. A returned error or a panic fails
// the task; neither stops the worker.
type Callback func(ctx context.Context, n *plan.Node) error

// registration is the plan currently being processed. It is guarded by the
// coordination lock.
type registration struct {
	ctx  context.Context
	plan *plan.Plan
	fn   Callback
}

// pool is one generation of running workers.
type pool struct {
	group *errgroup.Group
}

// Executor owns the worker pool and the coordination service its plans run on.
type Executor struct {
	workers int
	coord   *coordination.Service

	// runMu admits one Process call at a time.
	runMu sync.Mutex
	// poolMu guards pool. It is never taken inside a transaction.
	poolMu sync.Mutex
	pool   *pool

	statsMu sync.Mutex
	stats   []*workerStats

	// Guarded by the coordination lock.
	current  *registration
	stopping bool
}

// New creates an executor with a fixed number of workers. The pool itself is
// started lazily by Process.
func New(workers int) (*Executor, error) {
	if workers < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWorkerCount, workers)
	}
	coord, err := coordination.NewService(workers)
	if err != nil {
		return nil, err
	}
	return &Executor{workers: workers, coord: coord}, nil
}

// Workers returns the configured pool size.
func (e *Executor) Workers() int { return e.workers }

// Coordination returns the service that guards the executor's scheduling
// state. Plans processed by the executor must only be inspected through it.
func (e *Executor) Coordination() *coordination.Service { return e.coord }

// Process runs p to completion using fn for every task and returns the
// plan's result. The pool is stopped before Process returns. Cancelling ctx
// aborts the plan; tasks already executing finish first.
func (e *Executor) Process(ctx context.Context, p *plan.Plan, fn Callback) (err error) {
	if p == nil || fn == nil {
		return errors.New("executor: plan and callback are required")
	}
	e.runMu.Lock()
	defer e.runMu.Unlock()

	logger := ctxlog.FromContext(ctx)
	reg := &registration{ctx: ctx, plan: p, fn: fn}
	e.coord.WithStateLock(func(st *coordination.State) coordination.Disposition {
		e.current = reg
		e.stopping = false
		st.Signal()
		return coordination.Finished
	})
	defer e.coord.WithStateLock(func(st *coordination.State) coordination.Disposition {
		e.current = nil
		return coordination.Finished
	})

	defer func() {
		if stopErr := e.Stop(); stopErr != nil {
			err = errors.Join(err, stopErr)
		}
	}()

	e.start(ctx)

	started := time.Now()
	logger.Info("Waiting for all tasks to complete...", "tasks", p.Len(), "workers", e.workers)
	err = p.AwaitCompletion(ctx, e.coord)
	logger.Info("All tasks completed.", "duration", time.Since(started))
	return err
}

// start launches the pool unless it is already running.
func (e *Executor) start(ctx context.Context) {
	e.poolMu.Lock()
	defer e.poolMu.Unlock()
	if e.pool != nil {
		return
	}

	logger := ctxlog.FromContext(ctx)
	logger.Debug("Starting worker pool.", "workers", e.workers)

	workerCtx := context.WithoutCancel(ctx)
	stats := make([]*workerStats, e.workers)
	group := new(errgroup.Group)
	for i := range e.workers {
		ws := &workerStats{id: i}
		stats[i] = ws
		group.Go(func() error {
			return e.runWorker(workerCtx, ws)
		})
	}

	e.statsMu.Lock()
	e.stats = stats
	e.statsMu.Unlock()
	e.pool = &pool{group: group}
}

// Stop tells every worker to exit after its current task and waits for them.
// A plan that is still being processed is aborted with ErrStopped. Stopping
// an executor that is not running does nothing, and a later Process starts
// a fresh pool.
func (e *Executor) Stop() error {
	e.poolMu.Lock()
	defer e.poolMu.Unlock()
	if e.pool == nil {
		return nil
	}

	e.coord.WithStateLock(func(st *coordination.State) coordination.Disposition {
		e.stopping = true
		if e.current != nil {
			e.current.plan.Abort(st, ErrStopped)
		}
		st.Signal()
		return coordination.Finished
	})

	err := e.pool.group.Wait()
	e.pool = nil
	if err != nil {
		return fmt.Errorf("worker pool: %w", err)
	}
	return nil
}

// Running reports whether the pool is started.
func (e *Executor) Running() bool {
	e.poolMu.Lock()
	defer e.poolMu.Unlock()
	return e.pool != nil
}
