package executor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/specialistvlad/taskgrid/internal/coordination"
	"github.com/specialistvlad/taskgrid/internal/lease"
	"github.com/specialistvlad/taskgrid/internal/plan"
	"github.com/specialistvlad/taskgrid/internal/taskpath"
	"github.com/specialistvlad/taskgrid/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type edge struct{ task, dependsOn string }

func buildPlan(t *testing.T, tasks []string, edges []edge, opts ...plan.Option) *plan.Plan {
	t.Helper()
	b := plan.NewBuilder()
	for _, task := range tasks {
		p, err := taskpath.Parse(task)
		require.NoError(t, err)
		require.NoError(t, b.AddTask(p, task))
	}
	for _, e := range edges {
		require.NoError(t, b.AddDependency(taskpath.MustNew(split(e.task)), taskpath.MustNew(split(e.dependsOn))))
	}
	pl, err := b.Build(opts...)
	require.NoError(t, err)
	return pl
}

func split(raw string) (string, string) {
	p, err := taskpath.Parse(raw)
	if err != nil {
		panic(err)
	}
	return p.Project, p.Task
}

func newExecutor(t *testing.T, workers int) *Executor {
	t.Helper()
	e, err := New(workers)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Stop() })
	return e
}

func stateOf(t *testing.T, pl *plan.Plan, raw string) plan.State {
	t.Helper()
	p, err := taskpath.Parse(raw)
	require.NoError(t, err)
	n, ok := pl.Node(p)
	require.True(t, ok)
	return n.State()
}

func sleepFor(d time.Duration) Callback {
	return func(ctx context.Context, _ *plan.Node) error {
		time.Sleep(d)
		return nil
	}
}

func TestNew_RejectsInvalidWorkerCount(t *testing.T) {
	for _, n := range []int{0, -3} {
		e, err := New(n)
		require.ErrorIs(t, err, ErrInvalidWorkerCount)
		assert.Nil(t, e)
	}
}

func TestProcess_RequiresPlanAndCallback(t *testing.T) {
	e := newExecutor(t, 1)
	assert.Error(t, e.Process(context.Background(), nil, sleepFor(0)))
	assert.Error(t, e.Process(context.Background(), buildPlan(t, nil, nil), nil))
}

func TestProcess_JoinWaitsForBothDependencies(t *testing.T) {
	// --- Arrange ---
	// {A, B, C}, C depends on A and B, two workers.
	probe := testutil.NewExecutionProbe()
	pl := buildPlan(t, []string{"a:A", "b:B", "c:C"}, []edge{{"c:C", "a:A"}, {"c:C", "b:B"}}, probe.Option())
	e := newExecutor(t, 2)

	// A and B each wait for the other to start, which only works if they
	// run concurrently.
	var startedA, startedB = make(chan struct{}), make(chan struct{})
	rendezvous := func(mine, theirs chan struct{}) error {
		close(mine)
		select {
		case <-theirs:
			return nil
		case <-time.After(2 * time.Second):
			return errors.New("peer never started")
		}
	}

	// --- Act ---
	err := e.Process(context.Background(), pl, func(ctx context.Context, n *plan.Node) error {
		switch n.Path().String() {
		case "a:A":
			return rendezvous(startedA, startedB)
		case "b:B":
			return rendezvous(startedB, startedA)
		}
		return nil
	})

	// --- Assert ---
	require.NoError(t, err)
	for _, task := range []string{"a:A", "b:B", "c:C"} {
		assert.Equal(t, plan.Complete, stateOf(t, pl, task))
	}
	assert.Equal(t, 2, probe.MaxExecuting())
	assert.Empty(t, probe.Violations())
	assert.Equal(t, "c:C", probe.Started()[2])
}

func TestProcess_IndependentBranchSurvivesFailure(t *testing.T) {
	pl := buildPlan(t, []string{"a:A", "b:B"}, nil)
	e := newExecutor(t, 2)
	boom := errors.New("boom")

	err := e.Process(context.Background(), pl, func(ctx context.Context, n *plan.Node) error {
		if n.Path().Task == "A" {
			return boom
		}
		return nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var execErr *plan.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, []taskpath.Path{taskpath.MustNew("a", "A")}, execErr.FailedPaths())
	assert.NotContains(t, err.Error(), "b:B")
	assert.Equal(t, plan.Failed, stateOf(t, pl, "a:A"))
	assert.Equal(t, plan.Complete, stateOf(t, pl, "b:B"))
}

func TestProcess_SameProjectNeverOverlaps(t *testing.T) {
	probe := testutil.NewExecutionProbe()
	pl := buildPlan(t, []string{"p:A", "p:B"}, nil, probe.Option())
	e := newExecutor(t, 2)

	var running, overlap atomic.Int32
	err := e.Process(context.Background(), pl, func(ctx context.Context, n *plan.Node) error {
		if running.Add(1) > 1 {
			overlap.Store(1)
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int32(0), overlap.Load())
	assert.Equal(t, 1, probe.MaxPerProject("p"))
	assert.Equal(t, 1, probe.MaxExecuting())
}

func TestProcess_SingleWorkerRunsATopologicalOrder(t *testing.T) {
	probe := testutil.NewExecutionProbe()
	b := testutil.RandomGraph(t, testutil.GraphShape{Tasks: 60, Projects: 6, MaxDeps: 3, Seed: 7})
	pl, err := b.Build(probe.Option())
	require.NoError(t, err)
	e := newExecutor(t, 1)

	var running, overlap atomic.Int32
	err = e.Process(context.Background(), pl, func(ctx context.Context, n *plan.Node) error {
		if running.Add(1) > 1 {
			overlap.Store(1)
		}
		running.Add(-1)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int32(0), overlap.Load())
	assert.Equal(t, 1, probe.MaxExecuting())
	assert.Empty(t, probe.Violations())
	assert.Len(t, probe.Started(), 60)
}

func TestProcess_FailureCascadeAcrossProjects(t *testing.T) {
	pl := buildPlan(t,
		[]string{"core:compile", "core:test", "api:compile", "web:bundle", "docs:build"},
		[]edge{
			{"core:test", "core:compile"},
			{"api:compile", "core:compile"},
			{"web:bundle", "api:compile"},
		})
	e := newExecutor(t, 3)

	var ran atomic.Int32
	err := e.Process(context.Background(), pl, func(ctx context.Context, n *plan.Node) error {
		ran.Add(1)
		if n.Path().String() == "core:compile" {
			return errors.New("compiler crashed")
		}
		return nil
	})

	require.Error(t, err)
	assert.Equal(t, int32(2), ran.Load(), "only core:compile and docs:build run")
	assert.Equal(t, plan.Failed, stateOf(t, pl, "core:compile"))
	for _, skipped := range []string{"core:test", "api:compile", "web:bundle"} {
		assert.Equal(t, plan.Skipped, stateOf(t, pl, skipped), skipped)
	}
	assert.Equal(t, plan.Complete, stateOf(t, pl, "docs:build"))
}

func TestProcess_FailFast(t *testing.T) {
	pl := buildPlan(t, []string{"a:x", "b:y", "c:z"}, []edge{{"c:z", "b:y"}}, plan.WithFailurePolicy(plan.FailFast))
	e := newExecutor(t, 1)

	err := e.Process(context.Background(), pl, func(ctx context.Context, n *plan.Node) error {
		return errors.New("first task fails")
	})

	require.Error(t, err)
	assert.Equal(t, plan.Failed, stateOf(t, pl, "a:x"))
	assert.Equal(t, plan.Skipped, stateOf(t, pl, "b:y"))
	assert.Equal(t, plan.Skipped, stateOf(t, pl, "c:z"))
}

func TestProcess_RecoversPanics(t *testing.T) {
	pl := buildPlan(t, []string{"a:x", "b:y", "c:z"}, nil)
	e := newExecutor(t, 1)

	err := e.Process(context.Background(), pl, func(ctx context.Context, n *plan.Node) error {
		if n.Path().Project == "a" {
			panic("kaboom")
		}
		return nil
	})

	var panicErr *PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, "kaboom", panicErr.Value)
	assert.NotEmpty(t, panicErr.Stack)
	assert.Equal(t, plan.Complete, stateOf(t, pl, "b:y"), "the worker survives the panic")
	assert.Equal(t, plan.Complete, stateOf(t, pl, "c:z"))
}

func TestProcess_EmptyPlan(t *testing.T) {
	e := newExecutor(t, 4)
	require.NoError(t, e.Process(context.Background(), buildPlan(t, nil, nil), sleepFor(0)))
	assert.False(t, e.Running())
}

func TestStop_IsIdempotentAndProcessRestartsThePool(t *testing.T) {
	e := newExecutor(t, 2)
	require.NoError(t, e.Stop())
	require.NoError(t, e.Stop())

	for round := range 3 {
		pl := buildPlan(t, []string{"a:x", "b:y"}, nil)
		require.NoError(t, e.Process(context.Background(), pl, sleepFor(time.Millisecond)), "round %d", round)
		assert.False(t, e.Running(), "Process stops the pool before returning")
		require.NoError(t, e.Stop())
	}
}

func TestStop_AbortsRunningPlan(t *testing.T) {
	// --- Arrange ---
	pl := buildPlan(t, []string{"a:slow", "a:later", "b:after"}, []edge{{"b:after", "a:slow"}})
	e := newExecutor(t, 2)
	started := make(chan struct{})
	release := make(chan struct{})

	done := make(chan error, 1)
	go func() {
		done <- e.Process(context.Background(), pl, func(ctx context.Context, n *plan.Node) error {
			if n.Path().Task == "slow" {
				close(started)
				<-release
			}
			return nil
		})
	}()
	<-started

	// --- Act ---
	stopped := make(chan error, 1)
	go func() { stopped <- e.Stop() }()
	require.Eventually(t, func() bool {
		return coordination.Transact(e.Coordination(), func(st *coordination.State) (bool, coordination.Disposition) {
			return pl.Aborted(st) != nil, coordination.Finished
		})
	}, time.Second, time.Millisecond)
	close(release)

	// --- Assert ---
	err := <-done
	require.ErrorIs(t, err, ErrStopped)
	require.ErrorIs(t, err, plan.ErrAborted)
	require.NoError(t, <-stopped)
	assert.Equal(t, plan.Complete, stateOf(t, pl, "a:slow"), "in-flight work is not interrupted")
	assert.Equal(t, plan.Skipped, stateOf(t, pl, "a:later"))
	assert.Equal(t, plan.Skipped, stateOf(t, pl, "b:after"))
}

func TestProcess_SelectionFailureAbortsPlan(t *testing.T) {
	// --- Arrange ---
	pl := buildPlan(t, []string{"a:first", "a:second", "b:other"}, []edge{{"a:second", "a:first"}})
	e := newExecutor(t, 1)
	var discardErr error

	// --- Act ---
	err := e.Process(context.Background(), pl, func(ctx context.Context, n *plan.Node) error {
		if n.Path().Task != "first" {
			return nil
		}
		h, _ := LeaseFromContext(ctx)
		e.Coordination().WithStateLock(func(st *coordination.State) coordination.Disposition {
			discardErr = errors.Join(st.ReleaseLease(h), st.Leases().Remove(h))
			return coordination.Finished
		})
		return nil
	})

	// --- Assert ---
	require.NoError(t, discardErr)
	require.ErrorIs(t, err, plan.ErrAborted)
	require.ErrorIs(t, err, lease.ErrUnknownLease)
	assert.ErrorContains(t, err, "task selection failed")
	var execErr *plan.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Empty(t, execErr.FailedPaths())
	assert.Equal(t, plan.Complete, stateOf(t, pl, "a:first"))
	assert.Equal(t, plan.Skipped, stateOf(t, pl, "a:second"))
	assert.Equal(t, plan.Skipped, stateOf(t, pl, "b:other"))
}

func TestProcess_ContextCancellation(t *testing.T) {
	pl := buildPlan(t, []string{"a:first", "a:second"}, nil)
	e := newExecutor(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := e.Process(ctx, pl, func(taskCtx context.Context, n *plan.Node) error {
		if n.Path().Task == "first" {
			cancel()
			<-taskCtx.Done()
		}
		return nil
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, plan.Complete, stateOf(t, pl, "a:first"))
	assert.Equal(t, plan.Skipped, stateOf(t, pl, "a:second"))
}

func TestStats(t *testing.T) {
	pl := buildPlan(t, []string{"a:x", "b:y", "c:z", "d:w"}, nil)
	e := newExecutor(t, 2)

	require.NoError(t, e.Process(context.Background(), pl, sleepFor(5*time.Millisecond)))

	stats := e.Stats()
	require.Len(t, stats, 2)
	var tasks int64
	for _, s := range stats {
		tasks += s.Tasks
		assert.GreaterOrEqual(t, s.Total, s.Busy)
		assert.Equal(t, s.Total-s.Busy, s.Idle())
	}
	assert.Equal(t, int64(4), tasks)
}
