package plan

import (
	"time"

	"github.com/specialistvlad/taskgrid/internal/coordination"
	"github.com/specialistvlad/taskgrid/internal/lease"
	"github.com/specialistvlad/taskgrid/internal/taskpath"
)

// Node is one task in a Plan. Its identity and payload never change. Its
// scheduling fields are guarded by the coordination lock; read them inside
// a transaction or after AwaitCompletion has returned.
type Node struct {
	path    taskpath.Path
	payload any
	index   int

	deps        []*Node
	dependents  []*Node
	pendingDeps int

	state     State
	err       error
	skippedBy taskpath.Path

	lease       lease.Handle
	projectLock *coordination.ProjectLock

	started  time.Time
	finished time.Time
}

// Path returns the task identity.
func (n *Node) Path() taskpath.Path { return n.path }

// Project returns the project that owns the task.
func (n *Node) Project() string { return n.path.Project }

// Payload returns the value registered with the task.
func (n *Node) Payload() any { return n.payload }

// Index is the position of the node in the plan's selection order.
func (n *Node) Index() int { return n.index }

// Dependencies returns the paths of the node's direct predecessors.
func (n *Node) Dependencies() []taskpath.Path {
	out := make([]taskpath.Path, len(n.deps))
	for i, d := range n.deps {
		out[i] = d.path
	}
	return out
}

// State returns the current scheduling state.
func (n *Node) State() State { return n.state }

// Err returns the failure captured for the node, if any.
func (n *Node) Err() error { return n.err }

// SkippedBy returns the upstream task whose failure skipped this node. It is
// zero for nodes that were not skipped or were skipped by an abort.
func (n *Node) SkippedBy() taskpath.Path { return n.skippedBy }

// Lease returns the lease the node holds while executing.
func (n *Node) Lease() lease.Handle { return n.lease }

// Duration returns how long the node was executing.
func (n *Node) Duration() time.Duration {
	if n.started.IsZero() || n.finished.IsZero() {
		return 0
	}
	return n.finished.Sub(n.started)
}
