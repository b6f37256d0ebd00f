package executor

import (
	"context"
	"fmt"

	"github.com/specialistvlad/taskgrid/internal/ctxlog"
	"github.com/specialistvlad/taskgrid/internal/lease"
)

type leaseKey struct{}

type workerLease struct {
	exec   *Executor
	handle lease.Handle
}

func withWorkerLease(ctx context.Context, e *Executor, h lease.Handle) context.Context {
	return context.WithValue(ctx, leaseKey{}, workerLease{exec: e, handle: h})
}

// LeaseFromContext returns the lease the current task runs under.
func LeaseFromContext(ctx context.Context) (lease.Handle, bool) {
	wl, ok := ctx.Value(leaseKey{}).(workerLease)
	if !ok {
		return lease.NoLease, false
	}
	return wl.handle, true
}

// RunNested runs fn under a child of the calling task's lease. The first
// concurrent nested call of a lease runs on that lease's own slot. Further
// concurrent calls wait for free budget shared with the workers, or until
// ctx is done. Nested calls may themselves nest.
//
// Nested work must finish before the task returns. Leases still held at
// that point are released and the task fails.
func RunNested(ctx context.Context, fn func(ctx context.Context) error) error {
	wl, ok := ctx.Value(leaseKey{}).(workerLease)
	if !ok {
		return ErrNoWorkerLease
	}
	h, err := wl.exec.coord.AcquireLease(ctx, wl.handle)
	if err != nil {
		return fmt.Errorf("nested work: %w", err)
	}
	defer func() {
		if err := wl.exec.coord.ReleaseLease(h); err != nil {
			ctxlog.FromContext(ctx).Warn("Failed to release nested lease.", "lease", h, "error", err)
		}
	}()

	ctxlog.FromContext(ctx).Debug("Nested lease acquired.", "lease", h, "parent", wl.handle)
	return fn(withWorkerLease(ctx, wl.exec, h))
}
