package executor

import (
	"sync/atomic"
	"time"
)

// WorkerStats is a snapshot of one worker's activity.
type WorkerStats struct {
	ID    int           `json:"id"`
	Tasks int64         `json:"tasks"`
	Busy  time.Duration `json:"busy_ns"`
	Total time.Duration `json:"total_ns"`
}

// Idle is the part of the worker's lifetime not spent running tasks.
func (s WorkerStats) Idle() time.Duration {
	if s.Total < s.Busy {
		return 0
	}
	return s.Total - s.Busy
}

type workerStats struct {
	id       int
	tasks    atomic.Int64
	busy     atomic.Int64
	started  atomic.Int64
	finished atomic.Int64
}

func (w *workerStats) begin() { w.started.Store(time.Now().UnixNano()) }

func (w *workerStats) end() { w.finished.Store(time.Now().UnixNano()) }

func (w *workerStats) record(d time.Duration) {
	w.tasks.Add(1)
	w.busy.Add(int64(d))
}

func (w *workerStats) snapshot() WorkerStats {
	s := WorkerStats{
		ID:    w.id,
		Tasks: w.tasks.Load(),
		Busy:  time.Duration(w.busy.Load()),
	}
	if started := w.started.Load(); started != 0 {
		end := w.finished.Load()
		if end == 0 {
			end = time.Now().UnixNano()
		}
		s.Total = time.Duration(end - started)
	}
	return s
}

// Stats returns per-worker statistics of the running pool, or of the last
// pool if none is running.
func (e *Executor) Stats() []WorkerStats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	out := make([]WorkerStats, len(e.stats))
	for i, ws := range e.stats {
		out[i] = ws.snapshot()
	}
	return out
}
