// Package executor runs an execution plan on a fixed pool of workers.
//
// Process registers a plan together with the callback that performs each
// task, starts the pool if it is not running and blocks until the plan is
// finished. Each worker owns one lease below the root lease for its whole
// lifetime and repeats a select, execute, complete cycle: selection and
// completion are short transactions on the coordination lock, the task
// itself runs with the lock released. A worker with nothing to select while
// work remains parks on the coordination lock until another transaction
// releases something.
package executor
