package coordination

import (
	"errors"
	"fmt"

	"github.com/specialistvlad/taskgrid/internal/lease"
)

// Disposition is the outcome of a single Transform run.
type Disposition int

const (
	// Finished ends the transaction, whether or not it made progress.
	Finished Disposition = iota
	// Retry parks the caller until another transaction signals a change,
	// then runs the same transform again.
	Retry
)

func (d Disposition) String() string {
	switch d {
	case Finished:
		return "finished"
	case Retry:
		return "retry"
	default:
		return fmt.Sprintf("Disposition(%d)", int(d))
	}
}

// Transform inspects and mutates State while the global lock is held.
type Transform func(st *State) Disposition

// ProjectLock serializes execution within one project. It is only ever
// touched inside a transaction.
type ProjectLock struct {
	name  string
	held  bool
	owner lease.Handle
}

// Name returns the project identity the lock guards.
func (l *ProjectLock) Name() string { return l.name }

// Held reports whether the lock is currently taken.
func (l *ProjectLock) Held() bool { return l.held }

// Owner returns the lease that took the lock, or lease.NoLease.
func (l *ProjectLock) Owner() lease.Handle {
	if !l.held {
		return lease.NoLease
	}
	return l.owner
}

// State is the coordination state visible to transforms. It must not be
// retained or used outside of the transform it was handed to.
type State struct {
	leases   *lease.Tree
	projects map[string]*ProjectLock
	changed  bool
}

func newState(tree *lease.Tree) *State {
	return &State{
		leases:   tree,
		projects: make(map[string]*ProjectLock),
	}
}

// Leases returns the lease tree.
func (s *State) Leases() *lease.Tree { return s.leases }

// ProjectLock returns the lock for the named project, creating it on first use.
func (s *State) ProjectLock(project string) *ProjectLock {
	l, ok := s.projects[project]
	if !ok {
		l = &ProjectLock{name: project, owner: lease.NoLease}
		s.projects[project] = l
	}
	return l
}

// HeldProjectLocks returns the number of project locks currently taken.
func (s *State) HeldProjectLocks() int {
	n := 0
	for _, l := range s.projects {
		if l.held {
			n++
		}
	}
	return n
}

// TryLockProject takes l on behalf of owner. It returns false if l is held.
func (s *State) TryLockProject(l *ProjectLock, owner lease.Handle) bool {
	if l.held {
		return false
	}
	l.held = true
	l.owner = owner
	return true
}

// UnlockProject frees l and wakes parked transactions. Unlocking a free lock
// is a no-op.
func (s *State) UnlockProject(l *ProjectLock) {
	if l == nil || !l.held {
		return
	}
	l.held = false
	l.owner = lease.NoLease
	s.Signal()
}

// AcquireLease activates h in the lease tree.
func (s *State) AcquireLease(h lease.Handle) error {
	return s.leases.Acquire(h)
}

// ReleaseLease deactivates h and wakes parked transactions.
func (s *State) ReleaseLease(h lease.Handle) error {
	if err := s.leases.Release(h); err != nil {
		return err
	}
	s.Signal()
	return nil
}

// BorrowLease activates h on its parent's slot.
func (s *State) BorrowLease(h lease.Handle) error {
	return s.leases.Borrow(h)
}

// ReleaseLeaseAndLock releases a finished task's lease and project lock.
// The lock is always released. An inactive or absent lease is ignored. When
// nested leases below h are still active they are released first so the
// budget is not lost, and ErrHasActiveChildren is returned.
func (s *State) ReleaseLeaseAndLock(h lease.Handle, lock *ProjectLock) error {
	s.UnlockProject(lock)
	if h == lease.NoLease || !s.leases.IsActive(h) {
		return nil
	}
	err := s.ReleaseLease(h)
	if !errors.Is(err, lease.ErrHasActiveChildren) {
		return err
	}
	n, derr := s.leases.ReleaseDescendants(h)
	if derr != nil {
		return errors.Join(err, derr)
	}
	if rerr := s.ReleaseLease(h); rerr != nil {
		return errors.Join(err, rerr)
	}
	return fmt.Errorf("%d nested lease(s) still active when the task finished: %w", n, lease.ErrHasActiveChildren)
}

// Signal records that the state changed in a way that may unblock parked
// transactions. The broadcast happens when the current transform returns.
func (s *State) Signal() { s.changed = true }
