package buildfile

import "github.com/hashicorp/hcl/v2"

// fileRoot decodes all top-level blocks of one build file. Any other block
// or attribute is a decode error.
type fileRoot struct {
	Projects []*projectBlock `hcl:"project,block"`
}

type projectBlock struct {
	Name        string       `hcl:"name,label"`
	Description string       `hcl:"description,optional"`
	Tasks       []*taskBlock `hcl:"task,block"`
}

type taskBlock struct {
	Name        string     `hcl:"name,label"`
	Action      string     `hcl:"action"`
	Description string     `hcl:"description,optional"`
	DependsOn   []string   `hcl:"depends_on,optional"`
	Arguments   *argsBlock `hcl:"arguments,block"`
	DeclRange   hcl.Range  `hcl:",def_range"`
}

// argsBlock captures the free-form arguments of a task's action.
type argsBlock struct {
	Body hcl.Body `hcl:",remain"`
}
