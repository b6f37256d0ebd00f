// Package registry maps the action names used in build files to the Go
// functions that implement them.
//
// Modules register their actions at startup. Before a build runs, Validate
// checks every task of a model against the registry: the action must exist
// and the task's arguments must decode into the action's input struct. The
// executor callback returned by Callback then resolves and runs the action
// for each task.
package registry
