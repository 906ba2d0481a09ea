package datamap

import "sort"

// Index is a flat, read-only lookup structure over one graph snapshot.
type Index struct {
	root     string
	order    []string
	vertices map[string]Vertex
	inbound  map[string][]InboundRef
	byName   map[string][]EdgeKey
	edges    int
}

// NewIndex indexes the graph in a single pass over its vertices. The graph must not
// be mutated afterwards.
func NewIndex(g *Graph) *Index {
	idx := &Index{
		root:     g.RootID,
		order:    make([]string, 0, len(g.Vertices)),
		vertices: make(map[string]Vertex, len(g.Vertices)),
		inbound:  make(map[string][]InboundRef),
		byName:   make(map[string][]EdgeKey),
	}

	parents := make([]*Identifier, 0)
	for _, v := range g.Vertices {
		if v == nil {
			continue
		}
		id := v.VertexID()
		if _, dup := idx.vertices[id]; dup {
			continue
		}
		idx.vertices[id] = v
		idx.order = append(idx.order, id)

		if ident, ok := v.(*Identifier); ok {
			parents = append(parents, ident)
			for _, e := range ident.Edges {
				idx.byName[e.Name] = append(idx.byName[e.Name], EdgeKey{Parent: id, Name: e.Name, Target: e.Target})
				idx.edges++
			}
		}
	}

	// Inbound lists are ordered by parent id, then by the parent's edge order, so
	// they do not depend on where vertices sit in storage.
	sort.SliceStable(parents, func(i, j int) bool { return parents[i].ID < parents[j].ID })
	for _, p := range parents {
		for _, e := range p.Edges {
			idx.inbound[e.Target] = append(idx.inbound[e.Target], InboundRef{ParentID: p.ID, EdgeName: e.Name})
		}
	}

	return idx
}

// Root returns the root vertex id.
func (idx *Index) Root() string {
	return idx.root
}

// Vertex looks up a vertex by id.
func (idx *Index) Vertex(id string) (Vertex, bool) {
	v, ok := idx.vertices[id]
	return v, ok
}

// Identifier looks up a vertex and reports whether it is an Identifier.
func (idx *Index) Identifier(id string) (*Identifier, bool) {
	v, ok := idx.vertices[id].(*Identifier)
	return v, ok
}

// Edges returns the ordered outgoing edges of an Identifier vertex, or nil.
func (idx *Index) Edges(id string) []Edge {
	if v, ok := idx.Identifier(id); ok {
		return v.Edges
	}
	return nil
}

// Inbound returns every edge pointing at id.
func (idx *Index) Inbound(id string) []InboundRef {
	return idx.inbound[id]
}

// EdgesNamed returns every edge in the graph carrying the given name, in vertex
// storage order.
func (idx *Index) EdgesNamed(name string) []EdgeKey {
	return idx.byName[name]
}

// HasEdgeNamed reports whether any edge in the graph carries the name.
func (idx *Index) HasEdgeNamed(name string) bool {
	return len(idx.byName[name]) > 0
}

// VertexIDs returns the vertex ids in storage order.
func (idx *Index) VertexIDs() []string {
	return idx.order
}

// Len returns the number of vertices.
func (idx *Index) Len() int {
	return len(idx.order)
}

// EdgeCount returns the number of edges.
func (idx *Index) EdgeCount() int {
	return idx.edges
}
