package buildfile

import (
	"fmt"

	"github.com/specialistvlad/taskgrid/internal/plan"
	"github.com/specialistvlad/taskgrid/internal/taskpath"
	"github.com/zclconf/go-cty/cty"
)

// Model is the format-agnostic build definition.
type Model struct {
	Projects []*Project
	// Tasks are kept in declaration order, which becomes selection order.
	Tasks []*Task
}

// Project groups tasks that must never run at the same time.
type Project struct {
	Name        string
	Description string
}

// Task is one declared unit of work.
type Task struct {
	Path        taskpath.Path
	Action      string
	Description string
	DependsOn   []taskpath.Path
	Args        map[string]cty.Value
	// Source is the file position of the task block.
	Source string
}

// Task looks a task up by path.
func (m *Model) Task(path taskpath.Path) (*Task, bool) {
	for _, t := range m.Tasks {
		if t.Path == path {
			return t, true
		}
	}
	return nil, false
}

// PopulateBuilder registers every task and dependency with b. Each task is
// registered with itself as the node payload.
func (m *Model) PopulateBuilder(b *plan.Builder) error {
	for _, t := range m.Tasks {
		if err := b.AddTask(t.Path, t); err != nil {
			return fmt.Errorf("%s: %w", t.Source, err)
		}
	}
	for _, t := range m.Tasks {
		for _, dep := range t.DependsOn {
			if err := b.AddDependency(t.Path, dep); err != nil {
				return fmt.Errorf("%s: task %s: %w", t.Source, t.Path, err)
			}
		}
	}
	return nil
}

// Plan is a shorthand for populating a fresh builder and building it.
func (m *Model) Plan(opts ...plan.Option) (*plan.Plan, error) {
	b := plan.NewBuilder()
	if err := m.PopulateBuilder(b); err != nil {
		return nil, err
	}
	return b.Build(opts...)
}
