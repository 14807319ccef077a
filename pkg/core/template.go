// pkg/core/template.go
package core

import "strings"

// Template is one named functional identity a host entity can take.
// Templates are built once at load time and never mutated afterwards.
type Template struct {
	Name        string // short name, unique within a registry
	Title       string
	Description string
	Source      string // node group the template was loaded from

	// Availability predicates
	TechRequired     string
	RequiredPackages []string
	RequiredModule   string
	Tags             []string

	Capabilities []CapabilityDescriptor
	Workers      []WorkerDescriptor
	Resources    []ResourceDescriptor
	Decals       []string

	Price Price
}

// DisplayName returns the title, or the short name when no title is set.
func (t Template) DisplayName() string {
	if t.Title != "" {
		return t.Title
	}
	return t.Name
}

// HasTag reports whether the template carries the given classification tag.
func (t Template) HasTag(tag string) bool {
	for _, have := range t.Tags {
		if strings.EqualFold(have, tag) {
			return true
		}
	}
	return false
}

// Resource returns the resource descriptor with the given name.
func (t Template) Resource(name string) (ResourceDescriptor, bool) {
	for _, r := range t.Resources {
		if r.Name == name {
			return r, true
		}
	}
	return ResourceDescriptor{}, false
}

// Price is what it costs to reconfigure into a template.
type Price struct {
	Resource string
	Amount   float64
	Skill    string // operator skill required to perform the switch
}

// IsFree reports whether the price requires nothing.
func (p Price) IsFree() bool {
	return p.Resource == "" || p.Amount <= 0
}

// ResourceDescriptor names a resource a template stores.
type ResourceDescriptor struct {
	Name       string
	MaxAmount  float64
	Persistent bool // keep the stored amount when the resource survives a switch
}

// CapabilityDescriptor describes one dynamically attached capability.
type CapabilityDescriptor struct {
	Type             string
	TechRequired     string
	RequiredPackages []string
	Config           map[string]any
}

// Ratio is a per-second resource flow of a converter worker.
type Ratio struct {
	Resource string
	Ratio    float64
}

// WorkerDescriptor describes one converter worker.
type WorkerDescriptor struct {
	Name           string // declared converter name, the persistence key
	RequiredModule string
	Inputs         []Ratio
	Outputs        []Ratio
	Config         map[string]any
}
