package registry

import "strings"

// Availability is the result of checking whether a template can be used.
type Availability int

const (
	Valid Availability = iota
	TechLocked
	MissingDependency
	MissingModule
	TagMismatch
	InvalidIndex
	NoTemplates
)

func (a Availability) String() string {
	switch a {
	case Valid:
		return "valid"
	case TechLocked:
		return "tech locked"
	case MissingDependency:
		return "missing dependency"
	case MissingModule:
		return "missing module"
	case TagMismatch:
		return "tag mismatch"
	case InvalidIndex:
		return "invalid index"
	case NoTemplates:
		return "no templates"
	default:
		return "unknown"
	}
}

// Env is the world state availability is evaluated against.
// *host.Host satisfies it.
type Env interface {
	ProgressionActive() bool
	TechUnlocked(tech string) bool
	PackageInstalled(name string) bool
	HasModule(typeName string) bool
}

// GatesOpen evaluates the technology and package gates shared by templates
// and capability descriptors.
func GatesOpen(env Env, techRequired string, packages []string) Availability {
	if env == nil {
		return Valid
	}
	if techRequired != "" && env.ProgressionActive() && !env.TechUnlocked(techRequired) {
		return TechLocked
	}
	for _, pkg := range packages {
		if !env.PackageInstalled(pkg) {
			return MissingDependency
		}
	}
	return Valid
}

// tagsMatch reports whether a template's tags satisfy a filter. An empty
// filter accepts everything; otherwise one shared tag is enough.
func tagsMatch(filter, tags []string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		for _, t := range tags {
			if strings.EqualFold(f, t) {
				return true
			}
		}
	}
	return false
}
