package datamap

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidDocument is returned when a snapshot document cannot be turned into a
// Graph.
var ErrInvalidDocument = errors.New("invalid datamap document")

// Document is the JSON shape of a graph snapshot exchanged with loaders, the HTTP
// API and the journal.
type Document struct {
	RootID   string           `json:"rootId"`
	Vertices []VertexDocument `json:"vertices"`
}

// VertexDocument is one vertex of a Document.
type VertexDocument struct {
	ID       string   `json:"id"`
	Type     Kind     `json:"type"`
	OutEdges []Edge   `json:"outEdges,omitempty"`
	Choices  []string `json:"choices,omitempty"`
}

// ToGraph validates the document and converts it to a Graph. Edges pointing at
// vertices that do not exist are kept; queries treat them as absent.
func (d Document) ToGraph() (*Graph, error) {
	if d.RootID == "" {
		return nil, fmt.Errorf("%w: missing rootId", ErrInvalidDocument)
	}

	seen := make(map[string]struct{}, len(d.Vertices))
	g := &Graph{RootID: d.RootID, Vertices: make([]Vertex, 0, len(d.Vertices))}

	for i, vd := range d.Vertices {
		if vd.ID == "" {
			return nil, fmt.Errorf("%w: vertex %d has no id", ErrInvalidDocument, i)
		}
		if _, dup := seen[vd.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate vertex id %q", ErrInvalidDocument, vd.ID)
		}
		seen[vd.ID] = struct{}{}

		if vd.Type != KindIdentifier && len(vd.OutEdges) > 0 {
			return nil, fmt.Errorf("%w: vertex %q of type %s has outgoing edges", ErrInvalidDocument, vd.ID, vd.Type)
		}
		if vd.Type != KindEnumeration && len(vd.Choices) > 0 {
			return nil, fmt.Errorf("%w: vertex %q of type %s has choices", ErrInvalidDocument, vd.ID, vd.Type)
		}

		switch {
		case vd.Type == KindIdentifier:
			g.Vertices = append(g.Vertices, &Identifier{ID: vd.ID, Edges: append([]Edge(nil), vd.OutEdges...)})
		case vd.Type == KindEnumeration:
			g.Vertices = append(g.Vertices, &Enumeration{ID: vd.ID, Choices: append([]string(nil), vd.Choices...)})
		case isScalarKind(vd.Type):
			g.Vertices = append(g.Vertices, &Scalar{ID: vd.ID, Type: vd.Type})
		default:
			return nil, fmt.Errorf("%w: vertex %q has unknown type %q", ErrInvalidDocument, vd.ID, vd.Type)
		}
	}

	if _, ok := seen[d.RootID]; !ok {
		return nil, fmt.Errorf("%w: root %q is not a vertex", ErrInvalidDocument, d.RootID)
	}

	return g, nil
}

// Document converts the graph back to its JSON shape.
func (g *Graph) Document() Document {
	doc := Document{RootID: g.RootID, Vertices: make([]VertexDocument, 0, len(g.Vertices))}
	for _, v := range g.Vertices {
		if v == nil {
			continue
		}
		vd := VertexDocument{ID: v.VertexID(), Type: v.Kind()}
		switch t := v.(type) {
		case *Identifier:
			vd.OutEdges = append([]Edge(nil), t.Edges...)
		case *Enumeration:
			vd.Choices = append([]string(nil), t.Choices...)
		}
		doc.Vertices = append(doc.Vertices, vd)
	}
	return doc
}

// ParseDocument decodes a JSON snapshot document into a Graph.
func ParseDocument(data []byte) (*Graph, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return doc.ToGraph()
}

// MarshalJSON encodes the graph as a Document.
func (g *Graph) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.Document())
}

// UnmarshalJSON decodes a Document into the graph.
func (g *Graph) UnmarshalJSON(data []byte) error {
	parsed, err := ParseDocument(data)
	if err != nil {
		return err
	}
	*g = *parsed
	return nil
}
