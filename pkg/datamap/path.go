package datamap

// InvalidSegment locates the first point where an attribute path stops resolving.
type InvalidSegment struct {
	// Segment is the path segment that could not be matched.
	Segment string `json:"invalid_segment"`
	// LastValidParent is the segment matched just before Segment. Empty when the
	// first segment already fails.
	LastValidParent string `json:"last_valid_parent,omitempty"`
	// LastValidVertex is the vertex that LastValidParent resolved to on the
	// reported branch.
	LastValidVertex string `json:"last_valid_vertex,omitempty"`
}

// PathExists reports whether the dotted path exists anywhere in the graph.
//
// A single segment exists when any edge carries that name. A path starting with
// UpwardSegment is resolved from the root. Any other path exists when at least one
// edge named like its first segment leads to a vertex from which the rest resolves.
func (s *Snapshot) PathExists(path string) bool {
	segs := SplitPath(path)
	if len(segs) == 1 {
		return s.index.HasEdgeNamed(segs[0])
	}

	found := false
	w := &walker{idx: s.index, segs: segs, match: func(EdgeKey) bool {
		found = true
		return false
	}}
	w.run(s.pathStarts(segs), 1)
	return found
}

// FirstInvalidSegment explains why a path does not exist. ok is false when the path
// resolves. When every branch fails, the deepest failure is reported; ties go to
// the branch explored first.
func (s *Snapshot) FirstInvalidSegment(path string) (InvalidSegment, bool) {
	segs := SplitPath(path)
	if len(segs) == 1 {
		if s.index.HasEdgeNamed(segs[0]) {
			return InvalidSegment{}, false
		}
		return InvalidSegment{Segment: segs[0]}, true
	}

	starts := s.pathStarts(segs)
	if len(starts) == 0 {
		return InvalidSegment{Segment: segs[0]}, true
	}

	var (
		worst      InvalidSegment
		worstDepth = -1
	)
	w := &walker{
		idx:  s.index,
		segs: segs,
		match: func(EdgeKey) bool {
			return false
		},
		miss: func(depth int, vertex string) {
			if depth <= worstDepth {
				return
			}
			worstDepth = depth
			worst = InvalidSegment{
				Segment:         segs[depth],
				LastValidParent: segs[depth-1],
				LastValidVertex: vertex,
			}
		},
	}
	if w.run(starts, 1) {
		return InvalidSegment{}, false
	}
	return worst, true
}

// pathStarts returns the vertices reached by the first segment of a multi-segment
// path.
func (s *Snapshot) pathStarts(segs []string) []string {
	if segs[0] == UpwardSegment {
		return []string{s.index.Root()}
	}
	keys := s.index.EdgesNamed(segs[0])
	starts := make([]string, 0, len(keys))
	for _, k := range keys {
		starts = append(starts, k.Target)
	}
	return starts
}
