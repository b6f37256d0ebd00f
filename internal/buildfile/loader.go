package buildfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/taskgrid/internal/ctxlog"
	"github.com/specialistvlad/taskgrid/internal/fsutil"
	"github.com/specialistvlad/taskgrid/internal/taskpath"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Extension is the file extension of build files.
const Extension = ".hcl"

// Loader reads build files from disk.
type Loader struct {
	// Environ supplies the `env` map visible to argument expressions. It
	// defaults to os.Environ.
	Environ func() []string
}

// NewLoader creates a loader that exposes the process environment.
func NewLoader() *Loader {
	return &Loader{Environ: os.Environ}
}

// Load parses every build file found under paths and merges them into one
// model. Directories are walked recursively; paths that do not exist are
// ignored.
func (l *Loader) Load(ctx context.Context, paths ...string) (*Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build file loader started.", "path_count", len(paths))

	files, err := findAllBuildFiles(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no %s build files found in %s", Extension, strings.Join(paths, ", "))
	}
	logger.Debug("Discovered build files.", "count", len(files))

	parser := hclparse.NewParser()
	model := &Model{}
	projects := make(map[string]*Project)
	seen := make(map[taskpath.Path]string)
	env := l.envValue()

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse build file %s: %w", file, diags)
		}

		var root fileRoot
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode build file %s: %w", file, diags)
		}

		for _, pb := range root.Projects {
			if err := taskpath.ValidateProject(pb.Name); err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
			proj, ok := projects[pb.Name]
			if !ok {
				proj = &Project{Name: pb.Name}
				projects[pb.Name] = proj
				model.Projects = append(model.Projects, proj)
			}
			if pb.Description != "" {
				proj.Description = pb.Description
			}

			for _, tb := range pb.Tasks {
				task, err := translateTask(pb.Name, tb, env)
				if err != nil {
					return nil, err
				}
				if prev, dup := seen[task.Path]; dup {
					return nil, fmt.Errorf("%s: task %s already declared at %s", task.Source, task.Path, prev)
				}
				seen[task.Path] = task.Source
				model.Tasks = append(model.Tasks, task)
			}
		}
	}

	logger.Debug("Build file loading complete.", "projects", len(model.Projects), "tasks", len(model.Tasks))
	return model, nil
}

// translateTask converts one decoded task block into the model.
func translateTask(project string, tb *taskBlock, env cty.Value) (*Task, error) {
	source := tb.DeclRange.String()
	path, err := taskpath.New(project, tb.Name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}

	task := &Task{
		Path:        path,
		Action:      tb.Action,
		Description: tb.Description,
		Source:      source,
		Args:        make(map[string]cty.Value),
	}
	for _, raw := range tb.DependsOn {
		dep, err := taskpath.ParseRelative(raw, project)
		if err != nil {
			return nil, fmt.Errorf("%s: depends_on: %w", source, err)
		}
		task.DependsOn = append(task.DependsOn, dep)
	}

	if tb.Arguments == nil {
		return task, nil
	}
	attrs, diags := tb.Arguments.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("%s: arguments: %w", source, diags)
	}
	evalCtx := newEvalContext(path, env)
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(evalCtx)
		if diags.HasErrors() {
			return nil, fmt.Errorf("%s: argument %q: %w", source, name, diags)
		}
		task.Args[name] = val
	}
	return task, nil
}

func newEvalContext(path taskpath.Path, env cty.Value) *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"task": cty.ObjectVal(map[string]cty.Value{
				"name":    cty.StringVal(path.Task),
				"project": cty.StringVal(path.Project),
				"path":    cty.StringVal(path.String()),
			}),
			"env": env,
		},
		Functions: map[string]function.Function{
			"upper":     stdlib.UpperFunc,
			"lower":     stdlib.LowerFunc,
			"format":    stdlib.FormatFunc,
			"join":      stdlib.JoinFunc,
			"concat":    stdlib.ConcatFunc,
			"trimspace": stdlib.TrimSpaceFunc,
		},
	}
}

func (l *Loader) envValue() cty.Value {
	environ := l.Environ
	if environ == nil {
		environ = os.Environ
	}
	vals := make(map[string]cty.Value)
	for _, kv := range environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		vals[k] = cty.StringVal(v)
	}
	if len(vals) == 0 {
		return cty.MapValEmpty(cty.String)
	}
	return cty.MapVal(vals)
}

// findAllBuildFiles walks all given paths and returns a flat, de-duplicated
// list of build files in lexical order per path.
func findAllBuildFiles(paths []string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, wasSeen := seen[p]; !wasSeen {
			allFiles = append(allFiles, p)
			seen[p] = struct{}{}
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}

		if !info.IsDir() {
			if filepath.Ext(path) == Extension {
				add(path)
			}
			continue
		}

		found, err := fsutil.FindFilesByExtension(path, Extension)
		if err != nil {
			return nil, err
		}
		for _, p := range found {
			add(p)
		}
	}
	return allFiles, nil
}
