package datamap

import "strings"

// SplitPath splits a dotted attribute path into its segments.
func SplitPath(path string) []string {
	segs := strings.Split(strings.TrimSpace(path), ".")
	for i := range segs {
		segs[i] = strings.TrimSpace(segs[i])
	}
	return segs
}

type walkState struct {
	vertex string
	depth  int
}

// walker follows a segment list from a set of start vertices. Every (vertex, depth)
// state is expanded at most once, so cyclic graphs terminate and the amount of work
// is bounded by vertices x segments.
type walker struct {
	idx  *Index
	segs []string

	// match is called for every edge matched by the last segment. Returning false
	// stops the walk.
	match func(EdgeKey) bool

	// miss is called when the segment at depth cannot be followed from vertex.
	miss func(depth int, vertex string)
}

// run walks from starts, which are positioned at the given depth. It reports
// whether the walk was stopped by match.
func (w *walker) run(starts []string, depth int) bool {
	if depth >= len(w.segs) {
		return false
	}

	visited := make(map[walkState]struct{})
	stack := make([]walkState, 0, len(starts))
	for i := len(starts) - 1; i >= 0; i-- {
		stack = append(stack, walkState{vertex: starts[i], depth: depth})
	}

	last := len(w.segs) - 1
	for len(stack) > 0 {
		st := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, seen := visited[st]; seen {
			continue
		}
		visited[st] = struct{}{}

		ident, ok := w.idx.Identifier(st.vertex)
		if !ok {
			w.onMiss(st)
			continue
		}

		seg := w.segs[st.depth]
		var next []walkState
		matched := false
		for _, e := range ident.Edges {
			if e.Name != seg {
				continue
			}
			matched = true
			if st.depth == last {
				if w.match != nil && !w.match(EdgeKey{Parent: st.vertex, Name: e.Name, Target: e.Target}) {
					return true
				}
				continue
			}
			next = append(next, walkState{vertex: e.Target, depth: st.depth + 1})
		}

		if !matched {
			w.onMiss(st)
			continue
		}
		for i := len(next) - 1; i >= 0; i-- {
			stack = append(stack, next[i])
		}
	}

	return false
}

func (w *walker) onMiss(st walkState) {
	if w.miss != nil {
		w.miss(st.depth, st.vertex)
	}
}
