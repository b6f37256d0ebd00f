package plan

import (
	"fmt"

	"github.com/specialistvlad/taskgrid/internal/lease"
	"github.com/specialistvlad/taskgrid/internal/taskpath"
)

type taskSpec struct {
	path    taskpath.Path
	payload any
	deps    []taskpath.Path
}

// Builder collects tasks and dependencies. A Builder may produce any number
// of independent plans.
type Builder struct {
	tasks  []*taskSpec
	byPath map[taskpath.Path]*taskSpec
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{byPath: make(map[taskpath.Path]*taskSpec)}
}

// Len returns the number of tasks added so far.
func (b *Builder) Len() int { return len(b.tasks) }

// AddTask registers a task. Tasks are selected in the order they are added
// whenever more than one is eligible.
func (b *Builder) AddTask(path taskpath.Path, payload any) error {
	if path.IsZero() {
		return fmt.Errorf("task path cannot be empty")
	}
	if _, ok := b.byPath[path]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, path)
	}
	decl := &taskSpec{path: path, payload: payload}
	b.tasks = append(b.tasks, decl)
	b.byPath[path] = decl
	return nil
}

// AddDependency declares that task cannot start before dependsOn finished.
// Repeated declarations are ignored.
func (b *Builder) AddDependency(task, dependsOn taskpath.Path) error {
	if task == dependsOn {
		return fmt.Errorf("self-referential dependency not allowed: %s -> %s", task, task)
	}
	decl, ok := b.byPath[task]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, task)
	}
	if _, ok := b.byPath[dependsOn]; !ok {
		return fmt.Errorf("%w: %s (dependency of %s)", ErrUnknownTask, dependsOn, task)
	}
	for _, d := range decl.deps {
		if d == dependsOn {
			return nil
		}
	}
	decl.deps = append(decl.deps, dependsOn)
	return nil
}

// Build validates the graph and returns a fresh Plan.
func (b *Builder) Build(opts ...Option) (*Plan, error) {
	p := &Plan{
		byPath: make(map[taskpath.Path]*Node, len(b.tasks)),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.nodes = make([]*Node, len(b.tasks))
	for i, decl := range b.tasks {
		n := &Node{path: decl.path, payload: decl.payload, index: i, lease: lease.NoLease}
		p.nodes[i] = n
		p.byPath[decl.path] = n
	}
	for i, decl := range b.tasks {
		n := p.nodes[i]
		for _, dp := range decl.deps {
			dep := p.byPath[dp]
			n.deps = append(n.deps, dep)
			dep.dependents = append(dep.dependents, n)
		}
		n.pendingDeps = len(n.deps)
	}

	if err := detectCycles(p.nodes); err != nil {
		return nil, fmt.Errorf("error validating dependency graph: %w", err)
	}

	p.incomplete = len(p.nodes)
	for _, n := range p.nodes {
		if n.pendingDeps == 0 {
			n.state = Selectable
		}
	}
	return p, nil
}

// detectCycles walks the graph depth first. Nodes on the current path are
// temporary, fully explored nodes are permanent.
func detectCycles(nodes []*Node) error {
	permanent := make(map[*Node]bool, len(nodes))
	temporary := make(map[*Node]bool)

	var visit func(n *Node) error
	visit = func(n *Node) error {
		if permanent[n] {
			return nil
		}
		if temporary[n] {
			return fmt.Errorf("%w detected involving task '%s'", ErrCycle, n.path)
		}
		temporary[n] = true
		for _, dependent := range n.dependents {
			if err := visit(dependent); err != nil {
				return err
			}
		}
		delete(temporary, n)
		permanent[n] = true
		return nil
	}

	for _, n := range nodes {
		if err := visit(n); err != nil {
			return err
		}
	}
	return nil
}
