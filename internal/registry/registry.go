// Package registry indexes the templates a host can take and walks them in
// cyclic order. Failures are sentinel values, never errors, because stale
// saves and edited content routinely reference templates that are gone.
package registry

import (
	"github.com/OCAP2/partswitch/pkg/core"
)

// Registry is the ordered, filtered template list of one host.
type Registry struct {
	templates []core.Template // shared backing slice, read only
	env       Env
	tagFilter []string
}

// Option configures a Registry.
type Option func(*Registry)

// WithTagFilter restricts usable templates to those sharing a tag.
func WithTagFilter(tags ...string) Option {
	return func(r *Registry) {
		r.tagFilter = append([]string(nil), tags...)
	}
}

// New creates a registry over a template slice. The slice is not copied and
// must not be mutated afterwards.
func New(templates []core.Template, env Env, opts ...Option) *Registry {
	r := &Registry{
		templates: templates,
		env:       env,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetEnv replaces the availability environment, e.g. after a tech unlock.
func (r *Registry) SetEnv(env Env) {
	r.env = env
}

// TagFilter returns the configured tag filter.
func (r *Registry) TagFilter() []string {
	return r.tagFilter
}

// Len returns the number of templates.
func (r *Registry) Len() int {
	return len(r.templates)
}

// Templates returns the backing slice. Callers must not modify it.
func (r *Registry) Templates() []core.Template {
	return r.templates
}

// At returns the template at index i.
func (r *Registry) At(i int) (core.Template, bool) {
	if i < 0 || i >= len(r.templates) {
		return core.Template{}, false
	}
	return r.templates[i], true
}

// IndexOf returns the index of the named template, -1 when absent.
func (r *Registry) IndexOf(name string) int {
	for i := range r.templates {
		if r.templates[i].Name == name {
			return i
		}
	}
	return -1
}

// Check evaluates a template against the environment. Checks run in order
// (tech unlock, packages, co-resident module, tags) and stop at the first
// failure.
func (r *Registry) Check(t core.Template) Availability {
	if a := GatesOpen(r.env, t.TechRequired, t.RequiredPackages); a != Valid {
		return a
	}
	if t.RequiredModule != "" && r.env != nil && !r.env.HasModule(t.RequiredModule) {
		return MissingModule
	}
	if !tagsMatch(r.tagFilter, t.Tags) {
		return TagMismatch
	}
	return Valid
}

// Usable checks the template at index i. A registry holding exactly one
// template always reports it usable.
func (r *Registry) Usable(i int) Availability {
	switch {
	case len(r.templates) == 0:
		return NoTemplates
	case i < 0 || i >= len(r.templates):
		return InvalidIndex
	case len(r.templates) == 1:
		return Valid
	}
	return r.Check(r.templates[i])
}

// NextUsable returns the first usable index after from, wrapping around.
// Returns -1 when nothing is usable.
func (r *Registry) NextUsable(from int) int {
	return r.walk(from, 1)
}

// PrevUsable returns the first usable index before from, wrapping around.
// Returns -1 when nothing is usable.
func (r *Registry) PrevUsable(from int) int {
	return r.walk(from, -1)
}

// UsableIndices returns every usable index in order.
func (r *Registry) UsableIndices() []int {
	var out []int
	for i := range r.templates {
		if r.Usable(i) == Valid {
			out = append(out, i)
		}
	}
	return out
}

// walk visits at most one full cycle so it always terminates.
func (r *Registry) walk(from, step int) int {
	n := len(r.templates)
	if n == 0 {
		return -1
	}
	if from < 0 || from >= n {
		if step > 0 {
			from = n - 1
		} else {
			from = 0
		}
	}
	for k := 1; k <= n; k++ {
		i := ((from+step*k)%n + n) % n
		if r.Usable(i) == Valid {
			return i
		}
	}
	return -1
}
