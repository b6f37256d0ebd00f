package executor

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidWorkerCount is returned by New for worker counts below one.
	ErrInvalidWorkerCount = errors.New("worker count must be at least 1")
	// ErrStopped is the abort cause of a plan interrupted by Stop.
	ErrStopped = errors.New("executor stopped")
	// ErrNoWorkerLease is returned by RunNested outside of a running task.
	ErrNoWorkerLease = errors.New("no worker lease in context")
)

// PanicError is the failure recorded for a task whose callback panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
