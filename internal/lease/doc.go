// Package lease implements the worker lease tree: a hierarchy of concurrency
// permits that bounds how many units of work may be active at once.
//
// A Tree is an arena of lease records addressed by integer Handle. Every
// record keeps a back-reference to its parent and never owns it. The root
// lease represents the build-wide budget and is always active; it does not
// count against the budget itself. Any other lease may only become active
// while its parent is active and while fewer than Max leases are active
// across the whole tree.
//
// The tree holds no locks. Callers serialize access to it, normally by only
// touching it from inside a coordination transaction.
package lease
