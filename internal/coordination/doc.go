// Package coordination provides the single global lock that guards all
// scheduling state: task node states, project locks and lease activation.
//
// Work against that state is expressed as a Transform, a short function
// that runs with the lock held and returns a Disposition. Finished ends the
// transaction. Retry parks the calling goroutine on the condition variable
// until some other transaction signals a change, after which the same
// transform runs again. A goroutine that cannot make progress therefore never
// spins; it sleeps until something it might be waiting for was released.
package coordination
