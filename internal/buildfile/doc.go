// Package buildfile loads build definitions written in HCL and translates
// them into a format-agnostic Model, which in turn populates a plan.Builder.
//
// A build file declares projects and their tasks:
//
//	project "core" {
//	  task "compile" {
//	    action     = "print"
//	    depends_on = ["generate", "api:schema"]
//	    arguments {
//	      message = "compiling ${task.path}"
//	    }
//	  }
//	}
//
// Dependencies are either bare task names within the same project or full
// `project:task` paths. Argument expressions are evaluated at load time with
// the `task` object (name, project, path) and the `env` map in scope.
package buildfile
