package plan

import "fmt"

// State is the scheduling state of a Node.
type State int

const (
	// Pending nodes wait for at least one dependency.
	Pending State = iota
	// Selectable nodes have every dependency complete.
	Selectable
	// Executing nodes hold a lease and their project lock.
	Executing
	// Complete nodes ran without error.
	Complete
	// Failed nodes returned an error from their payload.
	Failed
	// Skipped nodes never ran because an upstream node failed or the
	// plan stopped selecting work.
	Skipped
)

var stateNames = [...]string{
	Pending:    "pending",
	Selectable: "selectable",
	Executing:  "executing",
	Complete:   "complete",
	Failed:     "failed",
	Skipped:    "skipped",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// IsTerminal reports whether no further transition is possible from s.
func (s State) IsTerminal() bool {
	return s == Complete || s == Failed || s == Skipped
}
