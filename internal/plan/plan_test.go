package plan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/specialistvlad/taskgrid/internal/coordination"
	"github.com/specialistvlad/taskgrid/internal/lease"
	"github.com/specialistvlad/taskgrid/internal/taskpath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixture drives a plan from a single goroutine, one transaction at a time.
type fixture struct {
	t       *testing.T
	svc     *coordination.Service
	plan    *Plan
	workers []lease.Handle
}

type edge struct{ task, dependsOn string }

func newFixture(t *testing.T, maxWorkers int, tasks []string, edges []edge, opts ...Option) *fixture {
	t.Helper()
	svc, err := coordination.NewService(maxWorkers)
	require.NoError(t, err)

	b := NewBuilder()
	for _, task := range tasks {
		require.NoError(t, b.AddTask(tp(task), task))
	}
	for _, e := range edges {
		require.NoError(t, b.AddDependency(tp(e.task), tp(e.dependsOn)))
	}
	plan, err := b.Build(opts...)
	require.NoError(t, err)

	f := &fixture{t: t, svc: svc, plan: plan}
	for range maxWorkers {
		h, err := svc.NewChildLease(svc.Root())
		require.NoError(t, err)
		f.workers = append(f.workers, h)
	}
	return f
}

func (f *fixture) selectNext(worker int) *Node {
	f.t.Helper()
	var n *Node
	var err error
	f.svc.WithStateLock(func(st *coordination.State) coordination.Disposition {
		n, err = f.plan.SelectNextTask(st, f.workers[worker])
		return coordination.Finished
	})
	require.NoError(f.t, err)
	return n
}

func (f *fixture) complete(n *Node, taskErr error) {
	f.t.Helper()
	var err error
	f.svc.WithStateLock(func(st *coordination.State) coordination.Disposition {
		err = f.plan.TaskComplete(st, n, taskErr)
		return coordination.Finished
	})
	require.NoError(f.t, err)
}

func (f *fixture) state(raw string) State {
	n, ok := f.plan.Node(tp(raw))
	require.True(f.t, ok)
	return n.State()
}

func (f *fixture) hasWork() bool {
	return coordination.Transact(f.svc, func(st *coordination.State) (bool, coordination.Disposition) {
		return f.plan.HasWorkRemaining(st), coordination.Finished
	})
}

func TestSelectNextTask_DeterministicOrderAndDependencies(t *testing.T) {
	// --- Arrange ---
	f := newFixture(t, 2,
		[]string{"core:a", "web:b", "app:c"},
		[]edge{{"app:c", "core:a"}, {"app:c", "web:b"}},
	)

	// --- Act & Assert ---
	a := f.selectNext(0)
	require.NotNil(t, a)
	assert.Equal(t, "core:a", a.Path().String(), "first eligible node in insertion order")
	b := f.selectNext(1)
	require.NotNil(t, b)
	assert.Equal(t, "web:b", b.Path().String())
	assert.Equal(t, Executing, a.State())
	assert.Equal(t, f.workers[0], a.Lease())

	f.complete(a, nil)
	assert.Equal(t, Pending, f.state("app:c"), "c still waits for b")
	assert.Nil(t, f.selectNext(0))

	f.complete(b, nil)
	assert.Equal(t, Selectable, f.state("app:c"))

	c := f.selectNext(0)
	require.NotNil(t, c)
	assert.Equal(t, "app:c", c.Path().String())
	f.complete(c, nil)

	assert.False(t, f.hasWork())
	require.NoError(t, f.plan.AwaitCompletion(context.Background(), f.svc))
}

func TestSelectNextTask_ProjectLockSerializesProject(t *testing.T) {
	f := newFixture(t, 2, []string{"p:a", "p:b", "q:c"}, nil)

	a := f.selectNext(0)
	require.NotNil(t, a)
	next := f.selectNext(1)
	require.NotNil(t, next)
	assert.Equal(t, "q:c", next.Path().String(), "p:b is skipped over while project p is locked")

	f.complete(next, nil)
	assert.Nil(t, f.selectNext(1), "p:b must wait for p:a")

	f.complete(a, nil)
	b := f.selectNext(1)
	require.NotNil(t, b)
	assert.Equal(t, "p:b", b.Path().String())
}

func TestSelectNextTask_RespectsLeaseBudget(t *testing.T) {
	f := newFixture(t, 1, []string{"a:x", "b:y"}, nil)
	extra, err := f.svc.NewChildLease(f.svc.Root())
	require.NoError(t, err)

	x := f.selectNext(0)
	require.NotNil(t, x)

	var n *Node
	f.svc.WithStateLock(func(st *coordination.State) coordination.Disposition {
		n, err = f.plan.SelectNextTask(st, extra)
		return coordination.Finished
	})
	require.NoError(t, err)
	assert.Nil(t, n, "no lease slot left")
	assert.True(t, f.hasWork())
}

func TestSelectNextTask_InvalidLeaseIsAnError(t *testing.T) {
	f := newFixture(t, 1, []string{"a:x"}, nil)

	var err error
	f.svc.WithStateLock(func(st *coordination.State) coordination.Disposition {
		_, err = f.plan.SelectNextTask(st, lease.Handle(99))
		return coordination.Finished
	})
	assert.ErrorIs(t, err, lease.ErrUnknownLease)
}

func TestTaskComplete_FailureSkipsDownstream(t *testing.T) {
	// --- Arrange ---
	// a -> b -> c, d independent
	f := newFixture(t, 2,
		[]string{"core:a", "core:b", "web:c", "web:d"},
		[]edge{{"core:b", "core:a"}, {"web:c", "core:b"}},
	)
	boom := errors.New("boom")

	// --- Act ---
	a := f.selectNext(0)
	d := f.selectNext(1)
	require.Equal(t, "web:d", d.Path().String())
	f.complete(a, boom)
	f.complete(d, nil)

	// --- Assert ---
	assert.Equal(t, Failed, f.state("core:a"))
	assert.Equal(t, Skipped, f.state("core:b"))
	assert.Equal(t, Skipped, f.state("web:c"))
	assert.Equal(t, Complete, f.state("web:d"))

	c, _ := f.plan.Node(tp("web:c"))
	assert.Equal(t, tp("core:b"), c.SkippedBy(), "a skipped node is the failure source for its dependents")
	assert.False(t, f.hasWork())

	err := f.plan.AwaitCompletion(context.Background(), f.svc)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "execution failed for core:a: boom", err.Error())

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, []taskpath.Path{tp("core:a")}, execErr.FailedPaths())
	assert.Equal(t, []taskpath.Path{tp("core:b"), tp("web:c")}, execErr.Skipped)
}

func TestTaskComplete_FailFastSkipsEverythingNotStarted(t *testing.T) {
	f := newFixture(t, 2, []string{"a:x", "b:y", "c:z"}, nil, WithFailurePolicy(FailFast))

	x := f.selectNext(0)
	y := f.selectNext(1)
	f.complete(x, errors.New("x broke"))

	assert.Equal(t, Skipped, f.state("c:z"))
	assert.Equal(t, Executing, f.state("b:y"), "executing nodes finish normally")
	assert.True(t, f.hasWork())
	assert.Nil(t, f.selectNext(0))

	f.complete(y, nil)
	assert.Equal(t, Complete, f.state("b:y"))
	assert.False(t, f.hasWork())
}

func TestTaskComplete_RejectsNodesThatAreNotExecuting(t *testing.T) {
	f := newFixture(t, 1, []string{"a:x"}, nil)
	n, _ := f.plan.Node(tp("a:x"))

	var err error
	f.svc.WithStateLock(func(st *coordination.State) coordination.Disposition {
		err = f.plan.TaskComplete(st, n, nil)
		return coordination.Finished
	})
	assert.ErrorIs(t, err, ErrNotExecuting)
}

func TestTaskComplete_ReleasesLeaseAndProjectLock(t *testing.T) {
	f := newFixture(t, 1, []string{"a:x"}, nil)
	x := f.selectNext(0)

	f.svc.WithStateLock(func(st *coordination.State) coordination.Disposition {
		assert.Equal(t, 1, st.Leases().Active())
		assert.True(t, st.ProjectLock("a").Held())
		return coordination.Finished
	})

	f.complete(x, nil)

	f.svc.WithStateLock(func(st *coordination.State) coordination.Disposition {
		assert.Equal(t, 0, st.Leases().Active())
		assert.False(t, st.ProjectLock("a").Held())
		assert.Equal(t, lease.NoLease, x.Lease())
		return coordination.Finished
	})
}

func TestTaskComplete_FailsNodeWithActiveNestedLeases(t *testing.T) {
	// --- Arrange ---
	f := newFixture(t, 2, []string{"a:x", "b:y"}, []edge{{"b:y", "a:x"}})
	x := f.selectNext(0)
	nested, err := f.svc.AcquireLease(context.Background(), x.Lease())
	require.NoError(t, err)

	// --- Act ---
	f.complete(x, nil)

	// --- Assert ---
	assert.Equal(t, Failed, x.State())
	require.ErrorIs(t, x.Err(), lease.ErrHasActiveChildren)
	assert.Contains(t, x.Err().Error(), "task a:x")
	assert.Equal(t, Skipped, f.state("b:y"))
	f.svc.WithStateLock(func(st *coordination.State) coordination.Disposition {
		assert.Equal(t, 0, st.Leases().Active(), "leaked leases give their budget back")
		assert.False(t, st.Leases().IsActive(nested))
		assert.False(t, st.ProjectLock("a").Held())
		return coordination.Finished
	})
	assert.ErrorIs(t, f.svc.ReleaseLease(nested), lease.ErrNotActive)
	assert.False(t, f.hasWork())
}

func TestAbort(t *testing.T) {
	f := newFixture(t, 2, []string{"a:x", "b:y", "c:z"}, []edge{{"c:z", "a:x"}})
	x := f.selectNext(0)
	cause := errors.New("selection blew up")

	f.svc.WithStateLock(func(st *coordination.State) coordination.Disposition {
		f.plan.Abort(st, cause)
		f.plan.Abort(st, errors.New("second abort is ignored"))
		return coordination.Finished
	})

	assert.Equal(t, Skipped, f.state("b:y"))
	assert.Equal(t, Skipped, f.state("c:z"))
	assert.Nil(t, f.selectNext(1), "aborted plans select nothing")

	f.complete(x, nil)
	err := f.plan.AwaitCompletion(context.Background(), f.svc)
	require.ErrorIs(t, err, ErrAborted)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, context.Canceled)
}

func TestAwaitCompletion(t *testing.T) {
	t.Run("empty plan returns immediately", func(t *testing.T) {
		f := newFixture(t, 1, nil, nil)
		assert.NoError(t, f.plan.AwaitCompletion(context.Background(), f.svc))
	})

	t.Run("blocks until the last executing node completes", func(t *testing.T) {
		f := newFixture(t, 1, []string{"a:x"}, nil)
		x := f.selectNext(0)

		done := make(chan error, 1)
		go func() { done <- f.plan.AwaitCompletion(context.Background(), f.svc) }()

		select {
		case <-done:
			t.Fatal("returned while a node was executing")
		case <-time.After(20 * time.Millisecond):
		}

		f.complete(x, nil)
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("AwaitCompletion did not return")
		}
	})

	t.Run("cancellation aborts and waits for executing nodes", func(t *testing.T) {
		f := newFixture(t, 1, []string{"a:x", "b:y"}, nil)
		x := f.selectNext(0)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- f.plan.AwaitCompletion(ctx, f.svc) }()
		cancel()

		require.Eventually(t, func() bool {
			return coordination.Transact(f.svc, func(st *coordination.State) (bool, coordination.Disposition) {
				return f.plan.Aborted(st) != nil, coordination.Finished
			})
		}, time.Second, time.Millisecond)
		assert.Equal(t, Skipped, f.state("b:y"))

		f.complete(x, nil)
		err := <-done
		require.ErrorIs(t, err, ErrAborted)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestTransitionHook(t *testing.T) {
	type change struct {
		path     string
		from, to State
	}
	var changes []change
	hook := func(n *Node, from, to State) {
		changes = append(changes, change{n.Path().String(), from, to})
	}
	f := newFixture(t, 1, []string{"a:x", "a:y"}, []edge{{"a:y", "a:x"}}, WithTransitionHook(hook))

	f.complete(f.selectNext(0), nil)
	f.complete(f.selectNext(0), nil)

	assert.Equal(t, []change{
		{"a:x", Selectable, Executing},
		{"a:x", Executing, Complete},
		{"a:y", Pending, Selectable},
		{"a:y", Selectable, Executing},
		{"a:y", Executing, Complete},
	}, changes)
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t, 1, []string{"a:x", "a:y", "b:z"}, []edge{{"a:y", "a:x"}})
	f.complete(f.selectNext(0), errors.New("nope"))
	z := f.selectNext(0)

	statuses := f.plan.Snapshot(f.svc)
	require.Len(t, statuses, 3)
	assert.Equal(t, "failed", statuses[0].StateName)
	assert.Equal(t, "nope", statuses[0].Error)
	assert.Equal(t, "a:x", statuses[1].SkippedBy)
	assert.Equal(t, Executing, statuses[2].State)

	assert.Equal(t, Summary{Total: 3, Failed: 1, Skipped: 1, Executing: 1}, Summarize(statuses))
	f.complete(z, nil)
}

func TestExecutionError_Message(t *testing.T) {
	e := &ExecutionError{
		Failed: []TaskFailure{
			{Path: tp("a:x"), Err: errors.New("first")},
			{Path: tp("b:y"), Err: errors.New("second")},
		},
		Aborted: errors.Join(ErrAborted, errors.New("stopped")),
	}
	assert.Contains(t, e.Error(), "execution failed for a:x, b:y: first")
	assert.Contains(t, e.Error(), "stopped")
	assert.Len(t, e.Unwrap(), 3)
}
