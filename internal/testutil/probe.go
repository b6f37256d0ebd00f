package testutil

import (
	"fmt"
	"sync"
	"time"

	"github.com/specialistvlad/taskgrid/internal/plan"
)

// ExecutionRecord holds the start and end times of one task's execution.
type ExecutionRecord struct {
	Start time.Time
	End   time.Time
}

// ExecutionProbe watches plan transitions and records the properties that
// concurrency tests assert on: peak global and per-project concurrency,
// the order tasks started in, and any task that started before all of its
// dependencies were terminal.
type ExecutionProbe struct {
	mu sync.Mutex

	states       map[string]plan.State
	executing    int
	maxExecuting int
	perProject   map[string]int
	maxProject   map[string]int
	started      []string
	records      map[string]*ExecutionRecord
	violations   []string
}

// NewExecutionProbe returns an empty probe.
func NewExecutionProbe() *ExecutionProbe {
	return &ExecutionProbe{
		states:     make(map[string]plan.State),
		perProject: make(map[string]int),
		maxProject: make(map[string]int),
		records:    make(map[string]*ExecutionRecord),
	}
}

// Option returns the plan option that installs the probe.
func (p *ExecutionProbe) Option() plan.Option {
	return plan.WithTransitionHook(p.observe)
}

func (p *ExecutionProbe) observe(n *plan.Node, from, to plan.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	path := n.Path().String()
	p.states[path] = to

	switch {
	case to == plan.Executing:
		for _, dep := range n.Dependencies() {
			if !p.states[dep.String()].IsTerminal() {
				p.violations = append(p.violations, fmt.Sprintf("%s started before dependency %s finished", path, dep))
			}
		}
		p.executing++
		p.maxExecuting = max(p.maxExecuting, p.executing)
		p.perProject[n.Project()]++
		p.maxProject[n.Project()] = max(p.maxProject[n.Project()], p.perProject[n.Project()])
		p.started = append(p.started, path)
		p.records[path] = &ExecutionRecord{Start: time.Now()}
	case from == plan.Executing:
		p.executing--
		p.perProject[n.Project()]--
		if r, ok := p.records[path]; ok {
			r.End = time.Now()
		}
	}
}

// MaxExecuting is the peak number of simultaneously executing tasks.
func (p *ExecutionProbe) MaxExecuting() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxExecuting
}

// MaxPerProject is the peak number of simultaneously executing tasks of project.
func (p *ExecutionProbe) MaxPerProject(project string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxProject[project]
}

// MaxAnyProject is the highest per-project peak across all projects.
func (p *ExecutionProbe) MaxAnyProject() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	peak := 0
	for _, v := range p.maxProject {
		peak = max(peak, v)
	}
	return peak
}

// Started returns task paths in the order they started executing.
func (p *ExecutionProbe) Started() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.started...)
}

// Record returns the execution window of a task.
func (p *ExecutionProbe) Record(path string) (ExecutionRecord, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.records[path]
	if !ok {
		return ExecutionRecord{}, false
	}
	return *r, true
}

// Violations lists dependency ordering violations.
func (p *ExecutionProbe) Violations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.violations...)
}
