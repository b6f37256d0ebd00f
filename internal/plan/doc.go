// Package plan holds the mutable execution graph of one build invocation.
//
// A Builder collects tasks and their dependencies, validates them and
// produces a Plan. The Plan owns every Node and moves each one through the
// state machine
//
//	pending -> selectable -> executing -> complete | failed
//	pending | selectable -> skipped
//
// All Plan state is guarded by the coordination lock. Methods that must run
// inside a transaction take the *coordination.State handed to the transform,
// which doubles as proof that the lock is held. Methods that take a
// *coordination.Service open their own transactions and may block.
package plan
