package parser

import "strings"

// PackageSet answers whether an optional package is installed.
type PackageSet func(name string) bool

// Packages builds a PackageSet from a list of names, compared case-insensitively.
func Packages(names ...string) PackageSet {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[strings.ToLower(strings.TrimSpace(n))] = struct{}{}
	}
	return func(name string) bool {
		_, ok := set[strings.ToLower(name)]
		return ok
	}
}

// EvalNeeds evaluates a needs expression against the installed packages.
//
// Clauses separated by ',' or '&' must all hold; alternatives inside a clause
// are separated by '|'; a leading '!' negates a package. An empty expression
// is always true.
func EvalNeeds(expr string, installed PackageSet) bool {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return true
	}
	if installed == nil {
		installed = Packages()
	}

	clauses := strings.FieldsFunc(expr, func(r rune) bool { return r == ',' || r == '&' })
	for _, clause := range clauses {
		if strings.TrimSpace(clause) == "" {
			continue
		}
		if !evalClause(clause, installed) {
			return false
		}
	}
	return true
}

func evalClause(clause string, installed PackageSet) bool {
	for _, alt := range strings.Split(clause, "|") {
		alt = strings.TrimSpace(alt)
		if alt == "" {
			continue
		}
		negate := false
		for strings.HasPrefix(alt, "!") {
			negate = !negate
			alt = strings.TrimSpace(alt[1:])
		}
		if installed(alt) != negate {
			return true
		}
	}
	return false
}
