package taskpath

import (
	"fmt"
	"regexp"
	"strings"
)

// Separator divides the project and task parts of a path.
const Separator = ":"

// nameRegex matches a single project or task name.
var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9_.-]*$`)

// Path identifies one task.
type Path struct {
	Project string
	Task    string
}

// New builds a Path after validating both parts.
func New(project, task string) (Path, error) {
	if err := validateName("project", project); err != nil {
		return Path{}, err
	}
	if err := validateName("task", task); err != nil {
		return Path{}, err
	}
	return Path{Project: project, Task: task}, nil
}

// MustNew is New for statically known names. It panics on invalid input.
func MustNew(project, task string) Path {
	p, err := New(project, task)
	if err != nil {
		panic(err)
	}
	return p
}

// ValidateProject reports whether name is usable as a project name.
func ValidateProject(name string) error {
	return validateName("project", name)
}

func validateName(kind, name string) error {
	if name == "" {
		return fmt.Errorf("%s name cannot be empty", kind)
	}
	if !nameRegex.MatchString(name) || name == "." || name == ".." {
		return fmt.Errorf("invalid %s name: %q", kind, name)
	}
	return nil
}

// Parse reads the canonical `project:task` form.
func Parse(raw string) (Path, error) {
	if raw == "" {
		return Path{}, fmt.Errorf("task path cannot be empty")
	}
	project, task, ok := strings.Cut(raw, Separator)
	if !ok {
		return Path{}, fmt.Errorf("task path %q is missing the project part", raw)
	}
	if strings.Contains(task, Separator) {
		return Path{}, fmt.Errorf("task path %q has too many segments", raw)
	}
	return New(project, task)
}

// ParseRelative reads either a bare task name, resolved within project, or
// a full `project:task` path.
func ParseRelative(raw, project string) (Path, error) {
	if !strings.Contains(raw, Separator) {
		return New(project, raw)
	}
	return Parse(raw)
}

// String returns the canonical `project:task` form.
func (p Path) String() string {
	if p.IsZero() {
		return ""
	}
	return p.Project + Separator + p.Task
}

// IsZero reports whether p is the empty path.
func (p Path) IsZero() bool { return p.Project == "" && p.Task == "" }

// Compare orders paths by project, then by task.
func (p Path) Compare(other Path) int {
	if c := strings.Compare(p.Project, other.Project); c != 0 {
		return c
	}
	return strings.Compare(p.Task, other.Task)
}

// MarshalText encodes the path in its project:task form.
func (p Path) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a project:task path.
func (p *Path) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
