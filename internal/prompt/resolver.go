// Package prompt maps agent roles to the instruction text given to workers.
//
// Each role has a template containing the $ARGUMENTS placeholder, which is
// replaced with the formatted work unit. Templates can be replaced, and new
// roles added, from a YAML overrides file:
//
//	templates:
//	  codeweaver: |
//	    You are a careful engineer.
//	    $ARGUMENTS
package prompt

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/Iron-Ham/questline/internal/agent"
	"github.com/Iron-Ham/questline/internal/errors"
	"gopkg.in/yaml.v3"
)

// Overrides is the on-disk form of an overrides file.
type Overrides struct {
	Templates map[string]string `yaml:"templates"`
}

// Resolver resolves roles to templates and renders prompts. It implements
// agent.PromptBuilder.
type Resolver struct {
	mu        sync.RWMutex
	templates map[agent.Role]string
}

var _ agent.PromptBuilder = (*Resolver)(nil)

// NewResolver creates a Resolver holding the built-in templates.
func NewResolver() *Resolver {
	r := &Resolver{templates: make(map[agent.Role]string, len(builtinTemplates))}
	for role, tmpl := range builtinTemplates {
		r.templates[role] = tmpl
	}
	return r
}

// NewResolverFromFile creates a Resolver with the built-in templates and
// applies the overrides in path. An empty path applies nothing.
func NewResolverFromFile(path string) (*Resolver, error) {
	r := NewResolver()
	if path == "" {
		return r, nil
	}
	ov, err := LoadOverrides(path)
	if err != nil {
		return nil, err
	}
	r.Apply(ov)
	return r, nil
}

// LoadOverrides reads a YAML overrides file.
func LoadOverrides(path string) (*Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("prompt overrides", path).WithCause(os.ErrNotExist)
		}
		return nil, fmt.Errorf("read prompt overrides: %w", err)
	}

	var ov Overrides
	if err := yaml.Unmarshal(data, &ov); err != nil {
		return nil, errors.NewValidationError("invalid prompt overrides").
			WithField("templates").WithValue(path).WithCause(err)
	}
	for role, tmpl := range ov.Templates {
		if strings.TrimSpace(role) == "" {
			return nil, errors.NewValidationError("role name must not be empty").WithField("templates")
		}
		if strings.TrimSpace(tmpl) == "" {
			return nil, errors.NewValidationError("template must not be empty").
				WithField("templates." + role)
		}
	}
	return &ov, nil
}

// Apply installs every template in ov, replacing built-ins of the same role.
func (r *Resolver) Apply(ov *Overrides) {
	if ov == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for role, tmpl := range ov.Templates {
		r.templates[agent.Role(role)] = tmpl
	}
}

// Template returns the template for role.
func (r *Resolver) Template(role agent.Role) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tmpl, ok := r.templates[role]
	if !ok {
		return "", fmt.Errorf("%w: %q", errors.ErrUnknownRole, role)
	}
	return tmpl, nil
}

// Roles returns the roles that have a template, sorted by name.
func (r *Resolver) Roles() []agent.Role {
	r.mu.RLock()
	roles := make([]agent.Role, 0, len(r.templates))
	for role := range r.templates {
		roles = append(roles, role)
	}
	r.mu.RUnlock()
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// Build renders the prompt for unit. The formatted arguments replace the
// $ARGUMENTS placeholder, or are appended when the template has none.
// A non-empty continuation is appended under its own heading.
func (r *Resolver) Build(unit agent.WorkUnit, continuation string) (string, error) {
	tmpl, err := r.Template(unit.Role)
	if err != nil {
		return "", err
	}

	args := FormatArguments(unit)
	var out string
	if strings.Contains(tmpl, ArgumentsPlaceholder) {
		out = strings.ReplaceAll(tmpl, ArgumentsPlaceholder, args)
	} else {
		out = strings.TrimRight(tmpl, "\n") + "\n\n" + args
	}

	if continuation != "" {
		out += "\n\n" + ContinuationHeader + "\n\n" + continuation
	}
	return out, nil
}
