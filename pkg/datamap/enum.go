package datamap

// EnumerationMatch is an Enumeration vertex found at the end of a path.
type EnumerationMatch struct {
	VertexID string   `json:"vertex_id"`
	Choices  []string `json:"choices"`
}

// ResolveTargets returns the vertices path resolves to from any of the start
// vertices, deduplicated, in discovery order. Targets that are not in the graph are
// dropped.
func (s *Snapshot) ResolveTargets(starts []string, path string) []string {
	segs := SplitPath(path)
	if len(starts) == 0 || (len(segs) == 1 && segs[0] == "") {
		return nil
	}

	var out []string
	seen := make(map[string]struct{})
	w := &walker{idx: s.index, segs: segs, match: func(k EdgeKey) bool {
		if _, dup := seen[k.Target]; dup {
			return true
		}
		if _, ok := s.index.Vertex(k.Target); !ok {
			return true
		}
		seen[k.Target] = struct{}{}
		out = append(out, k.Target)
		return true
	}}
	w.run(starts, 0)
	return out
}

// FindEnumerations returns every Enumeration vertex that path reaches from any
// Identifier vertex, deduplicated by vertex id.
func (s *Snapshot) FindEnumerations(path string) []EnumerationMatch {
	segs := SplitPath(path)
	if len(segs) == 1 && segs[0] == "" {
		return nil
	}

	starts := make([]string, 0, s.index.Len())
	for _, id := range s.index.VertexIDs() {
		if _, ok := s.index.Identifier(id); ok {
			starts = append(starts, id)
		}
	}

	var out []EnumerationMatch
	seen := make(map[string]struct{})
	w := &walker{idx: s.index, segs: segs, match: func(k EdgeKey) bool {
		if _, dup := seen[k.Target]; dup {
			return true
		}
		enum, ok := s.index.Vertex(k.Target)
		if !ok {
			return true
		}
		if e, isEnum := enum.(*Enumeration); isEnum {
			seen[k.Target] = struct{}{}
			out = append(out, EnumerationMatch{VertexID: e.ID, Choices: append([]string(nil), e.Choices...)})
		}
		return true
	}}
	w.run(starts, 0)
	return out
}
