package coordination

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/specialistvlad/taskgrid/internal/lease"
)

// Service owns the global lock, its condition variable and the State they guard.
type Service struct {
	mu    sync.Mutex
	cond  *sync.Cond
	state *State

	runs  atomic.Int64
	waits atomic.Int64
}

// NewService creates a coordination service whose lease tree allows at most
// maxLeases active leases below the root.
func NewService(maxLeases int) (*Service, error) {
	tree, err := lease.New(maxLeases)
	if err != nil {
		return nil, fmt.Errorf("failed to create lease tree: %w", err)
	}
	s := &Service{state: newState(tree)}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

// WithStateLock runs fn with the global lock held until it returns Finished.
// After every run that signalled a change, all parked transactions are woken.
// A Retry parks the caller until the next such wake-up.
func (s *Service) WithStateLock(fn Transform) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		s.state.changed = false
		s.runs.Add(1)
		d := fn(s.state)
		if s.state.changed {
			s.state.changed = false
			s.cond.Broadcast()
		}
		if d != Retry {
			return
		}
		s.waits.Add(1)
		s.cond.Wait()
	}
}

// Transact is WithStateLock for transforms that produce a value. The value
// from the run that returned Finished is returned.
func Transact[T any](s *Service, fn func(st *State) (T, Disposition)) T {
	var out T
	s.WithStateLock(func(st *State) Disposition {
		v, d := fn(st)
		if d == Finished {
			out = v
		}
		return d
	})
	return out
}

// Wake broadcasts to every parked transaction without changing state. It is
// used to make parked transactions observe changes that happen outside the
// lock, such as context cancellation.
func (s *Service) Wake() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cond.Broadcast()
}

// ReleaseLeaseAndLock returns a transform that releases a finished task's
// lease and project lock. Either may be absent and releasing something that
// is not held is ignored, so the transform is safe to run more than once. A
// release error is stored in *errp when errp is not nil.
func ReleaseLeaseAndLock(h lease.Handle, lock *ProjectLock, errp *error) Transform {
	return func(st *State) Disposition {
		err := st.ReleaseLeaseAndLock(h, lock)
		if errp != nil {
			*errp = err
		}
		return Finished
	}
}

// NewChildLease registers an inactive lease below parent.
func (s *Service) NewChildLease(parent lease.Handle) (lease.Handle, error) {
	var h lease.Handle
	var err error
	s.WithStateLock(func(st *State) Disposition {
		h, err = st.leases.CreateChild(parent)
		return Finished
	})
	return h, err
}

// AcquireLease creates a child of parent and blocks until it can be
// activated or ctx is done. The first active child of a non-root lease
// borrows its parent's slot, so a holder can always nest once without
// waiting for budget it is itself occupying. Further children wait for free
// budget. The returned lease must be handed back with ReleaseLease.
func (s *Service) AcquireLease(ctx context.Context, parent lease.Handle) (lease.Handle, error) {
	h, err := s.NewChildLease(parent)
	if err != nil {
		return lease.NoLease, err
	}
	stop := context.AfterFunc(ctx, s.Wake)
	defer stop()

	s.WithStateLock(func(st *State) Disposition {
		if cause := context.Cause(ctx); cause != nil {
			err = cause
			return Finished
		}
		if ok, cerr := st.leases.CanBorrow(h); cerr != nil {
			err = cerr
			return Finished
		} else if ok {
			err = st.BorrowLease(h)
			return Finished
		}
		ok, cerr := st.leases.CanAcquire(h)
		if cerr != nil {
			err = cerr
			return Finished
		}
		if !ok {
			return Retry
		}
		err = st.AcquireLease(h)
		return Finished
	})
	if err != nil {
		if rerr := s.RemoveLease(h); rerr != nil {
			err = errors.Join(err, rerr)
		}
		return lease.NoLease, fmt.Errorf("failed to acquire lease below %d: %w", parent, err)
	}
	return h, nil
}

// ReleaseLease deactivates and discards a lease obtained from AcquireLease.
// A lease that was already deactivated, for example because its holder's
// task finished first, is still discarded and ErrNotActive is reported.
func (s *Service) ReleaseLease(h lease.Handle) error {
	var err error
	s.WithStateLock(func(st *State) Disposition {
		if !st.leases.IsActive(h) {
			err = fmt.Errorf("%w: %d", lease.ErrNotActive, h)
			if rerr := st.leases.Remove(h); rerr != nil {
				err = errors.Join(err, rerr)
			}
			return Finished
		}
		if err = st.ReleaseLease(h); err != nil {
			return Finished
		}
		err = st.leases.Remove(h)
		return Finished
	})
	return err
}

// RemoveLease discards an inactive lease.
func (s *Service) RemoveLease(h lease.Handle) error {
	var err error
	s.WithStateLock(func(st *State) Disposition {
		err = st.leases.Remove(h)
		return Finished
	})
	return err
}

// Root returns the root lease handle.
func (s *Service) Root() lease.Handle {
	return Transact(s, func(st *State) (lease.Handle, Disposition) {
		return st.leases.Root(), Finished
	})
}

// Stats reports how many transform runs happened and how many of them parked
// the caller. It is intended for tests and diagnostics.
func (s *Service) Stats() (runs, waits int64) {
	return s.runs.Load(), s.waits.Load()
}
