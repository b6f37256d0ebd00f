package plan

import (
	"time"

	"github.com/specialistvlad/taskgrid/internal/coordination"
	"github.com/specialistvlad/taskgrid/internal/taskpath"
)

// TaskStatus is a point-in-time copy of one node's scheduling state.
type TaskStatus struct {
	Path      taskpath.Path `json:"path"`
	State     State         `json:"-"`
	StateName string        `json:"state"`
	Error     string        `json:"error,omitempty"`
	SkippedBy string        `json:"skipped_by,omitempty"`
	Duration  time.Duration `json:"duration_ns,omitempty"`
}

// Summary counts nodes per terminal outcome.
type Summary struct {
	Total     int `json:"total"`
	Complete  int `json:"complete"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Executing int `json:"executing"`
}

// Snapshot copies the state of every node, in plan order.
func (p *Plan) Snapshot(svc *coordination.Service) []TaskStatus {
	return coordination.Transact(svc, func(_ *coordination.State) ([]TaskStatus, coordination.Disposition) {
		out := make([]TaskStatus, len(p.nodes))
		for i, n := range p.nodes {
			ts := TaskStatus{
				Path:      n.path,
				State:     n.state,
				StateName: n.state.String(),
				SkippedBy: n.skippedBy.String(),
				Duration:  n.Duration(),
			}
			if n.err != nil {
				ts.Error = n.err.Error()
			}
			out[i] = ts
		}
		return out, coordination.Finished
	})
}

// Summarize counts the statuses returned by Snapshot.
func Summarize(statuses []TaskStatus) Summary {
	s := Summary{Total: len(statuses)}
	for _, ts := range statuses {
		switch ts.State {
		case Complete:
			s.Complete++
		case Failed:
			s.Failed++
		case Skipped:
			s.Skipped++
		case Executing:
			s.Executing++
		}
	}
	return s
}
