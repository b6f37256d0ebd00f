package lease

import (
	"errors"
	"fmt"
)

// Handle addresses a lease record inside a Tree.
type Handle int

// NoLease is the zero value for "no lease held".
const NoLease Handle = -1

var (
	// ErrInvalidMax is returned when a tree is created with a budget below one.
	ErrInvalidMax = errors.New("lease budget must be at least 1")
	// ErrUnknownLease is returned for handles that were never issued or were removed.
	ErrUnknownLease = errors.New("unknown lease")
	// ErrParentInactive is returned when activating a lease whose parent is not active.
	ErrParentInactive = errors.New("parent lease is not active")
	// ErrAlreadyActive is returned when activating a lease twice.
	ErrAlreadyActive = errors.New("lease is already active")
	// ErrNoCapacity is returned by Acquire when the budget is exhausted.
	ErrNoCapacity = errors.New("no lease capacity available")
	// ErrNotActive is returned when releasing a lease that is not active.
	ErrNotActive = errors.New("lease is not active")
	// ErrHasActiveChildren is returned when a lease is released or removed
	// while one of its children is still active.
	ErrHasActiveChildren = errors.New("lease has active children")
	// ErrRootLease is returned for operations that are not allowed on the root.
	ErrRootLease = errors.New("operation not allowed on the root lease")
)

type record struct {
	parent         Handle
	live           bool
	active         bool
	borrowed       bool
	children       int
	activeChildren int
}

// Tree is the lease arena. The zero value is not usable; use New.
type Tree struct {
	records []record
	free    []Handle
	max     int
	active  int
}

// New creates a tree whose root lease allows at most max active leases below it.
func New(max int) (*Tree, error) {
	if max < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidMax, max)
	}
	t := &Tree{max: max}
	t.records = append(t.records, record{parent: NoLease, live: true, active: true})
	return t, nil
}

// Root returns the handle of the root lease.
func (t *Tree) Root() Handle { return 0 }

// Max returns the configured budget.
func (t *Tree) Max() int { return t.max }

// Active returns the number of budget slots in use. The root and borrowed
// leases are not counted.
func (t *Tree) Active() int { return t.active }

// Available returns how many more leases may currently be activated.
func (t *Tree) Available() int { return t.max - t.active }

func (t *Tree) get(h Handle) (*record, error) {
	if h < 0 || int(h) >= len(t.records) || !t.records[h].live {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLease, h)
	}
	return &t.records[h], nil
}

// CreateChild registers a new, inactive lease below parent and returns its handle.
func (t *Tree) CreateChild(parent Handle) (Handle, error) {
	p, err := t.get(parent)
	if err != nil {
		return NoLease, fmt.Errorf("create child lease: %w", err)
	}
	p.children++

	rec := record{parent: parent, live: true}
	if n := len(t.free); n > 0 {
		h := t.free[n-1]
		t.free = t.free[:n-1]
		t.records[h] = rec
		return h, nil
	}
	t.records = append(t.records, rec)
	return Handle(len(t.records) - 1), nil
}

// Parent returns the parent handle of h. The root has no parent.
func (t *Tree) Parent(h Handle) (Handle, error) {
	r, err := t.get(h)
	if err != nil {
		return NoLease, err
	}
	return r.parent, nil
}

// IsActive reports whether h is a live, active lease.
func (t *Tree) IsActive(h Handle) bool {
	r, err := t.get(h)
	return err == nil && r.active
}

// CanAcquire reports whether h could be activated right now. An error means
// the request itself is invalid and waiting will not help.
func (t *Tree) CanAcquire(h Handle) (bool, error) {
	r, err := t.get(h)
	if err != nil {
		return false, err
	}
	if h == t.Root() {
		return false, ErrRootLease
	}
	if r.active {
		return false, fmt.Errorf("%w: %d", ErrAlreadyActive, h)
	}
	if !t.records[r.parent].active {
		return false, fmt.Errorf("%w: lease %d, parent %d", ErrParentInactive, h, r.parent)
	}
	return t.active < t.max, nil
}

// Acquire activates h, consuming one slot of the budget.
func (t *Tree) Acquire(h Handle) error {
	ok, err := t.CanAcquire(h)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %d of %d active", ErrNoCapacity, t.active, t.max)
	}
	r := &t.records[h]
	r.active = true
	t.records[r.parent].activeChildren++
	t.active++
	return nil
}

// CanBorrow reports whether h could be activated on its parent's slot. That
// is possible when the parent is an active lease other than the root and no
// other child of it is active.
func (t *Tree) CanBorrow(h Handle) (bool, error) {
	r, err := t.get(h)
	if err != nil {
		return false, err
	}
	if h == t.Root() {
		return false, ErrRootLease
	}
	if r.active {
		return false, fmt.Errorf("%w: %d", ErrAlreadyActive, h)
	}
	parent := &t.records[r.parent]
	if !parent.active {
		return false, fmt.Errorf("%w: lease %d, parent %d", ErrParentInactive, h, r.parent)
	}
	return r.parent != t.Root() && parent.activeChildren == 0, nil
}

// Borrow activates h on its parent's slot without consuming budget. The
// parent cannot be released until h is.
func (t *Tree) Borrow(h Handle) error {
	ok, err := t.CanBorrow(h)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: slot of lease %d is in use", ErrNoCapacity, t.records[h].parent)
	}
	r := &t.records[h]
	r.active = true
	r.borrowed = true
	t.records[r.parent].activeChildren++
	return nil
}

// Borrowed reports whether h is active on its parent's slot.
func (t *Tree) Borrowed(h Handle) bool {
	r, err := t.get(h)
	return err == nil && r.active && r.borrowed
}

// Release deactivates h and returns its slot to the budget. A lease cannot be
// released while any of its children are active.
func (t *Tree) Release(h Handle) error {
	r, err := t.get(h)
	if err != nil {
		return err
	}
	if h == t.Root() {
		return ErrRootLease
	}
	if !r.active {
		return fmt.Errorf("%w: %d", ErrNotActive, h)
	}
	if r.activeChildren > 0 {
		return fmt.Errorf("%w: lease %d has %d", ErrHasActiveChildren, h, r.activeChildren)
	}
	t.deactivate(r)
	return nil
}

func (t *Tree) deactivate(r *record) {
	r.active = false
	t.records[r.parent].activeChildren--
	if !r.borrowed {
		t.active--
	}
	r.borrowed = false
}

// ReleaseDescendants deactivates every active lease below h, deepest first,
// and returns how many were released. The leases stay registered.
func (t *Tree) ReleaseDescendants(h Handle) (int, error) {
	if _, err := t.get(h); err != nil {
		return 0, err
	}
	released := 0
	for i := range t.records {
		r := &t.records[i]
		if !r.live || r.parent != h {
			continue
		}
		n, err := t.ReleaseDescendants(Handle(i))
		if err != nil {
			return released, err
		}
		released += n
		if r.active {
			t.deactivate(r)
			released++
		}
	}
	return released, nil
}

// Remove discards an inactive lease with no remaining children, making its
// handle available for reuse.
func (t *Tree) Remove(h Handle) error {
	r, err := t.get(h)
	if err != nil {
		return err
	}
	if h == t.Root() {
		return ErrRootLease
	}
	if r.active {
		return fmt.Errorf("remove lease %d: still active", h)
	}
	if r.children > 0 {
		return fmt.Errorf("remove lease %d: %d child leases still registered", h, r.children)
	}
	t.records[r.parent].children--
	*r = record{parent: NoLease}
	t.free = append(t.free, h)
	return nil
}
