/*
Package taskpath provides the identity of a task within a build: the project
that owns it plus the task name, written canonically as `project:task`.

Dependencies inside a build file may name a sibling task by its bare name
(`compile`) or a task of another project by its full path (`api:compile`).
ParseRelative resolves both forms against the declaring project.
*/
package taskpath
