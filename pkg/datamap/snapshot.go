package datamap

// Snapshot is the immutable query view over one graph: the index plus the derived
// ownership and edge classification. A structural change produces a new Snapshot;
// an existing one is never patched, so it is safe for concurrent readers.
type Snapshot struct {
	graph  *Graph
	index  *Index
	owners *Ownership
	edges  map[EdgeKey]EdgeMetadata
}

// Stats summarises a snapshot.
type Stats struct {
	Root       string `json:"root"`
	Vertices   int    `json:"vertices"`
	Edges      int    `json:"edges"`
	Links      int    `json:"links"`
	CycleEdges int    `json:"cycle_edges"`
	Orphans    int    `json:"orphans"`
}

// Build indexes g and computes ownership and edge metadata. g must not be mutated
// afterwards; use the Graph edit methods, which return copies.
func Build(g *Graph) *Snapshot {
	idx := NewIndex(g)
	owners := ResolveOwnership(idx)
	return &Snapshot{
		graph:  g,
		index:  idx,
		owners: owners,
		edges:  ClassifyEdges(idx, owners),
	}
}

// Graph returns the graph the snapshot was built from. Callers must treat it as
// read-only.
func (s *Snapshot) Graph() *Graph {
	return s.graph
}

// Index returns the underlying index.
func (s *Snapshot) Index() *Index {
	return s.index
}

// Root returns the root vertex id.
func (s *Snapshot) Root() string {
	return s.index.Root()
}

// Vertex looks up a vertex by id.
func (s *Snapshot) Vertex(id string) (Vertex, bool) {
	return s.index.Vertex(id)
}

// EdgeMetadata returns the classification of the edge triple, if it exists.
func (s *Snapshot) EdgeMetadata(parent, name, target string) (EdgeMetadata, bool) {
	md, ok := s.edges[EdgeKey{Parent: parent, Name: name, Target: target}]
	return md, ok
}

// Owner returns the owning parent of id. See Ownership.Owner.
func (s *Snapshot) Owner(id string) (string, bool) {
	return s.owners.Owner(id)
}

// Ownership returns the resolved ownership.
func (s *Snapshot) Ownership() *Ownership {
	return s.owners
}

// InboundReferences lists every edge pointing at id.
func (s *Snapshot) InboundReferences(id string) []InboundRef {
	refs := s.index.Inbound(id)
	if len(refs) == 0 {
		return []InboundRef{}
	}
	return append([]InboundRef(nil), refs...)
}

// Stats counts vertices, edges, links, cycle edges and vertices without an owner
// entry.
func (s *Snapshot) Stats() Stats {
	st := Stats{
		Root:     s.index.Root(),
		Vertices: s.index.Len(),
		Edges:    s.index.EdgeCount(),
	}
	for _, md := range s.edges {
		if md.IsLink {
			st.Links++
		}
		if md.IsCycle {
			st.CycleEdges++
		}
	}
	for _, id := range s.index.VertexIDs() {
		if _, ok := s.owners.Owner(id); !ok {
			st.Orphans++
		}
	}
	return st
}
