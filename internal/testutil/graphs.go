package testutil

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/specialistvlad/taskgrid/internal/plan"
	"github.com/specialistvlad/taskgrid/internal/taskpath"
	"github.com/stretchr/testify/require"
)

// GraphShape describes a generated task graph.
type GraphShape struct {
	Tasks    int
	Projects int
	// MaxDeps bounds how many earlier tasks each task depends on.
	MaxDeps int
	Seed    uint64
}

// RandomGraph builds a deterministic acyclic graph. Task i may only depend
// on tasks with a lower index, and tasks are spread round-robin over the
// projects.
func RandomGraph(t testing.TB, shape GraphShape) *plan.Builder {
	t.Helper()
	rng := rand.New(rand.NewPCG(shape.Seed, shape.Seed^0x5eed))
	b := plan.NewBuilder()

	paths := make([]taskpath.Path, shape.Tasks)
	for i := range shape.Tasks {
		project := fmt.Sprintf("p%d", i%max(shape.Projects, 1))
		paths[i] = taskpath.MustNew(project, fmt.Sprintf("t%d", i))
		require.NoError(t, b.AddTask(paths[i], i))
		if i == 0 || shape.MaxDeps == 0 {
			continue
		}
		for range rng.IntN(shape.MaxDeps + 1) {
			require.NoError(t, b.AddDependency(paths[i], paths[rng.IntN(i)]))
		}
	}
	return b
}

// ChainGraph builds a single dependency chain of n tasks in one project.
func ChainGraph(t testing.TB, project string, n int) *plan.Builder {
	t.Helper()
	b := plan.NewBuilder()
	var prev taskpath.Path
	for i := range n {
		p := taskpath.MustNew(project, fmt.Sprintf("step%d", i))
		require.NoError(t, b.AddTask(p, i))
		if i > 0 {
			require.NoError(t, b.AddDependency(p, prev))
		}
		prev = p
	}
	return b
}
