package plan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/specialistvlad/taskgrid/internal/coordination"
	"github.com/specialistvlad/taskgrid/internal/lease"
	"github.com/specialistvlad/taskgrid/internal/taskpath"
)

// Plan is the execution state of one build graph.
type Plan struct {
	nodes  []*Node
	byPath map[taskpath.Path]*Node
	policy FailurePolicy
	hooks  []TransitionHook

	// cursor is the index of the first node that may still be selectable.
	cursor     int
	incomplete int
	executing  int
	failures   []*Node
	aborted    error

	now func() time.Time
}

// Len returns the number of nodes in the plan.
func (p *Plan) Len() int { return len(p.nodes) }

// Policy returns the failure policy.
func (p *Plan) Policy() FailurePolicy { return p.policy }

// Nodes returns the nodes in selection order.
func (p *Plan) Nodes() []*Node {
	out := make([]*Node, len(p.nodes))
	copy(out, p.nodes)
	return out
}

// Node looks a node up by path.
func (p *Plan) Node(path taskpath.Path) (*Node, bool) {
	n, ok := p.byPath[path]
	return n, ok
}

func (p *Plan) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}

func (p *Plan) transition(n *Node, to State) {
	from := n.state
	n.state = to
	for _, hook := range p.hooks {
		hook(n, from, to)
	}
}

// HasWorkRemaining reports whether any node is not yet terminal.
func (p *Plan) HasWorkRemaining(_ *coordination.State) bool {
	return p.incomplete > 0
}

// Executing returns the number of nodes currently executing.
func (p *Plan) Executing(_ *coordination.State) int { return p.executing }

// Aborted returns the abort cause, or nil.
func (p *Plan) Aborted(_ *coordination.State) error { return p.aborted }

// SelectNextTask finds the first selectable node, in plan order, whose
// project lock is free, and starts it under worker lease h. It returns nil
// when nothing can start right now. An error means the plan state or the
// lease request is inconsistent and the caller should abort the plan.
func (p *Plan) SelectNextTask(st *coordination.State, h lease.Handle) (*Node, error) {
	if p.aborted != nil || p.incomplete == 0 {
		return nil, nil
	}
	ok, err := st.Leases().CanAcquire(h)
	if err != nil {
		return nil, fmt.Errorf("worker lease %d cannot be used: %w", h, err)
	}
	if !ok {
		return nil, nil
	}

	for p.cursor < len(p.nodes) && p.nodes[p.cursor].state.IsTerminal() {
		p.cursor++
	}
	for _, n := range p.nodes[p.cursor:] {
		if n.state != Selectable {
			continue
		}
		for _, dep := range n.deps {
			if dep.state != Complete {
				return nil, fmt.Errorf("task %s is selectable but dependency %s is %s", n.path, dep.path, dep.state)
			}
		}
		lock := st.ProjectLock(n.path.Project)
		if lock.Held() {
			continue
		}
		if err := st.AcquireLease(h); err != nil {
			return nil, fmt.Errorf("failed to acquire lease for %s: %w", n.path, err)
		}
		st.TryLockProject(lock, h)

		n.lease = h
		n.projectLock = lock
		n.started = p.clock()
		p.executing++
		p.transition(n, Executing)
		return n, nil
	}
	return nil, nil
}

// TaskComplete records the outcome of an executing node and releases its
// lease and project lock. A non-nil taskErr fails the node and skips every
// node downstream of it. A node whose nested leases were still active when
// it finished fails as well.
func (p *Plan) TaskComplete(st *coordination.State, n *Node, taskErr error) error {
	if n.state != Executing {
		return fmt.Errorf("%w: %s is %s", ErrNotExecuting, n.path, n.state)
	}
	if err := st.ReleaseLeaseAndLock(n.lease, n.projectLock); err != nil {
		taskErr = errors.Join(taskErr, fmt.Errorf("task %s: %w", n.path, err))
	}
	n.lease = lease.NoLease
	n.projectLock = nil
	n.finished = p.clock()
	p.executing--
	p.incomplete--

	if taskErr != nil {
		n.err = taskErr
		p.failures = append(p.failures, n)
		p.transition(n, Failed)
		p.skipDependents(n)
		if p.policy == FailFast {
			p.skipRemaining(n.path, fmt.Errorf("skipped after failure of '%s'", n.path))
		}
	} else {
		p.transition(n, Complete)
		for _, d := range n.dependents {
			d.pendingDeps--
			if d.pendingDeps == 0 && d.state == Pending {
				p.transition(d, Selectable)
			}
		}
	}

	st.Signal()
	return nil
}

// skipDependents marks everything downstream of source as skipped. A skipped
// node is the failure source for its own dependents.
func (p *Plan) skipDependents(source *Node) {
	for _, d := range source.dependents {
		if d.state.IsTerminal() || d.state == Executing {
			continue
		}
		d.err = fmt.Errorf("skipped due to upstream failure of '%s'", source.path)
		d.skippedBy = source.path
		p.incomplete--
		p.transition(d, Skipped)
		p.skipDependents(d)
	}
}

// skipRemaining skips every node that has not started.
func (p *Plan) skipRemaining(by taskpath.Path, cause error) {
	for _, n := range p.nodes {
		if n.state != Pending && n.state != Selectable {
			continue
		}
		n.err = cause
		n.skippedBy = by
		p.incomplete--
		p.transition(n, Skipped)
	}
}

// Abort stops all further selection. Nodes that have not started are
// skipped, executing nodes finish normally. Aborting a finished or already
// aborted plan does nothing.
func (p *Plan) Abort(st *coordination.State, cause error) {
	if p.aborted != nil || p.incomplete == 0 {
		return
	}
	p.aborted = fmt.Errorf("%w: %w", ErrAborted, cause)
	p.skipRemaining(taskpath.Path{}, p.aborted)
	st.Signal()
}

// AwaitCompletion blocks until every node is terminal. Cancelling ctx aborts
// the plan; the call still waits for executing nodes to finish. The result
// is nil when every node completed, and an *ExecutionError otherwise.
func (p *Plan) AwaitCompletion(ctx context.Context, svc *coordination.Service) error {
	stop := context.AfterFunc(ctx, svc.Wake)
	defer stop()

	var result error
	svc.WithStateLock(func(st *coordination.State) coordination.Disposition {
		if ctx.Err() != nil {
			p.Abort(st, context.Cause(ctx))
		}
		if p.incomplete > 0 {
			return coordination.Retry
		}
		result = p.result()
		return coordination.Finished
	})
	return result
}

func (p *Plan) result() error {
	if len(p.failures) == 0 && p.aborted == nil {
		return nil
	}
	e := &ExecutionError{Aborted: p.aborted}
	for _, n := range p.failures {
		e.Failed = append(e.Failed, TaskFailure{Path: n.path, Err: n.err})
	}
	for _, n := range p.nodes {
		if n.state == Skipped {
			e.Skipped = append(e.Skipped, n.path)
		}
	}
	return e
}
