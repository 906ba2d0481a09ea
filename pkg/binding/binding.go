// Package binding resolves which datamap vertices rule-local variables may denote.
package binding

import "sort"

// Assignment binds Bound to whatever Path resolves to from the vertices Owner is
// bound to. It corresponds to a rule condition such as `<owner> ^path <bound>`.
type Assignment struct {
	Owner string `json:"owner"`
	Path  string `json:"path"`
	Bound string `json:"bound,omitempty"`
}

// Resolver is the part of a datamap snapshot the binding pass needs.
type Resolver interface {
	Root() string
	ResolveTargets(starts []string, path string) []string
}

// VertexSet is a set of vertex ids.
type VertexSet map[string]struct{}

// Sorted returns the members in lexical order.
func (s VertexSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Has reports membership.
func (s VertexSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Environment maps variable names to their candidate vertices.
type Environment map[string]VertexSet

// Lookup returns the candidates of a variable; ok is false when it is unbound.
func (env Environment) Lookup(variable string) (VertexSet, bool) {
	set, ok := env[variable]
	return set, ok
}

// Sorted returns the environment as variable -> sorted vertex ids.
func (env Environment) Sorted() map[string][]string {
	out := make(map[string][]string, len(env))
	for v, set := range env {
		out[v] = set.Sorted()
	}
	return out
}

// Resolve binds rootVariable to the graph root and makes a single forward pass over
// assignments in order. Each assignment adds the targets of its path, taken from
// every current candidate of its owner, to the bound variable. Candidates only
// accumulate. Assignments whose owner is unbound, that have no bound variable, or
// whose path resolves to nothing contribute nothing.
func Resolve(r Resolver, rootVariable string, assignments []Assignment) Environment {
	env := Environment{rootVariable: VertexSet{r.Root(): {}}}

	for _, a := range assignments {
		if a.Bound == "" {
			continue
		}
		owners, ok := env[a.Owner]
		if !ok || len(owners) == 0 {
			continue
		}

		targets := r.ResolveTargets(owners.Sorted(), a.Path)
		if len(targets) == 0 {
			continue
		}

		set, ok := env[a.Bound]
		if !ok {
			set = make(VertexSet, len(targets))
			env[a.Bound] = set
		}
		for _, t := range targets {
			set[t] = struct{}{}
		}
	}

	return env
}
