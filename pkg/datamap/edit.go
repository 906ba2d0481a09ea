package datamap

import (
	"errors"
	"fmt"
)

var (
	ErrVertexNotFound = errors.New("vertex not found")
	ErrVertexExists   = errors.New("vertex already exists")
	ErrNotIdentifier  = errors.New("vertex is not an identifier")
	ErrNotEnumeration = errors.New("vertex is not an enumeration")
	ErrEdgeNotFound   = errors.New("edge not found")
	ErrEdgeExists     = errors.New("edge already exists")
	ErrRootRemoval    = errors.New("root vertex cannot be removed")
	ErrInvalidKind    = errors.New("invalid vertex kind")
)

// The edit methods below never modify the receiver. Each returns a new Graph that
// shares unchanged vertices with the old one; touched vertices are copied.

// AddVertex returns a graph with a new, edgeless vertex of the given kind.
func (g *Graph) AddVertex(id string, kind Kind, choices []string) (*Graph, error) {
	if id == "" {
		return nil, fmt.Errorf("add vertex: %w: empty id", ErrInvalidKind)
	}
	if g.find(id) >= 0 {
		return nil, fmt.Errorf("add vertex %q: %w", id, ErrVertexExists)
	}

	var v Vertex
	switch {
	case kind == KindIdentifier:
		v = &Identifier{ID: id}
	case kind == KindEnumeration:
		v = &Enumeration{ID: id, Choices: append([]string(nil), choices...)}
	case isScalarKind(kind):
		v = &Scalar{ID: id, Type: kind}
	default:
		return nil, fmt.Errorf("add vertex %q: %w: %q", id, ErrInvalidKind, kind)
	}

	out := g.shallowCopy(len(g.Vertices) + 1)
	out.Vertices = append(out.Vertices, v)
	return out, nil
}

// RemoveVertex returns a graph without the vertex and without every edge that
// pointed at it.
func (g *Graph) RemoveVertex(id string) (*Graph, error) {
	if id == g.RootID {
		return nil, fmt.Errorf("remove vertex %q: %w", id, ErrRootRemoval)
	}
	if g.find(id) < 0 {
		return nil, fmt.Errorf("remove vertex %q: %w", id, ErrVertexNotFound)
	}

	out := &Graph{RootID: g.RootID, Vertices: make([]Vertex, 0, len(g.Vertices)-1)}
	for _, v := range g.Vertices {
		if v == nil || v.VertexID() == id {
			continue
		}
		ident, ok := v.(*Identifier)
		if !ok || !pointsAt(ident, id) {
			out.Vertices = append(out.Vertices, v)
			continue
		}
		kept := make([]Edge, 0, len(ident.Edges))
		for _, e := range ident.Edges {
			if e.Target != id {
				kept = append(kept, e)
			}
		}
		out.Vertices = append(out.Vertices, &Identifier{ID: ident.ID, Edges: kept})
	}
	return out, nil
}

// AddEdge returns a graph with a new edge appended to parent's edge list. The
// target must exist; duplicates of an existing triple are rejected.
func (g *Graph) AddEdge(parent, name, target, comment string) (*Graph, error) {
	pi := g.find(parent)
	if pi < 0 {
		return nil, fmt.Errorf("add edge %s.%s: parent %q: %w", parent, name, parent, ErrVertexNotFound)
	}
	ident, ok := g.Vertices[pi].(*Identifier)
	if !ok {
		return nil, fmt.Errorf("add edge %s.%s: %w", parent, name, ErrNotIdentifier)
	}
	if g.find(target) < 0 {
		return nil, fmt.Errorf("add edge %s.%s: target %q: %w", parent, name, target, ErrVertexNotFound)
	}
	for _, e := range ident.Edges {
		if e.Name == name && e.Target == target {
			return nil, fmt.Errorf("add edge %s.%s -> %s: %w", parent, name, target, ErrEdgeExists)
		}
	}

	edges := make([]Edge, len(ident.Edges), len(ident.Edges)+1)
	copy(edges, ident.Edges)
	edges = append(edges, Edge{Name: name, Target: target, Comment: comment})

	out := g.shallowCopy(len(g.Vertices))
	out.Vertices[pi] = &Identifier{ID: ident.ID, Edges: edges}
	return out, nil
}

// RemoveEdge returns a graph without the edge triple. Only the edge is detached;
// the target vertex stays in the graph even if nothing points at it any more.
func (g *Graph) RemoveEdge(parent, name, target string) (*Graph, error) {
	pi := g.find(parent)
	if pi < 0 {
		return nil, fmt.Errorf("remove edge %s.%s: parent %q: %w", parent, name, parent, ErrVertexNotFound)
	}
	ident, ok := g.Vertices[pi].(*Identifier)
	if !ok {
		return nil, fmt.Errorf("remove edge %s.%s: %w", parent, name, ErrNotIdentifier)
	}

	kept := make([]Edge, 0, len(ident.Edges))
	removed := false
	for _, e := range ident.Edges {
		if !removed && e.Name == name && e.Target == target {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	if !removed {
		return nil, fmt.Errorf("remove edge %s.%s -> %s: %w", parent, name, target, ErrEdgeNotFound)
	}

	out := g.shallowCopy(len(g.Vertices))
	out.Vertices[pi] = &Identifier{ID: ident.ID, Edges: kept}
	return out, nil
}

// SetChoices returns a graph where the Enumeration vertex id has the given
// choices.
func (g *Graph) SetChoices(id string, choices []string) (*Graph, error) {
	i := g.find(id)
	if i < 0 {
		return nil, fmt.Errorf("set choices %q: %w", id, ErrVertexNotFound)
	}
	if _, ok := g.Vertices[i].(*Enumeration); !ok {
		return nil, fmt.Errorf("set choices %q: %w", id, ErrNotEnumeration)
	}
	out := g.shallowCopy(len(g.Vertices))
	out.Vertices[i] = &Enumeration{ID: id, Choices: append([]string(nil), choices...)}
	return out, nil
}

func (g *Graph) find(id string) int {
	for i, v := range g.Vertices {
		if v != nil && v.VertexID() == id {
			return i
		}
	}
	return -1
}

func (g *Graph) shallowCopy(capacity int) *Graph {
	vs := make([]Vertex, len(g.Vertices), capacity)
	copy(vs, g.Vertices)
	return &Graph{RootID: g.RootID, Vertices: vs}
}

func pointsAt(v *Identifier, id string) bool {
	for _, e := range v.Edges {
		if e.Target == id {
			return true
		}
	}
	return false
}
