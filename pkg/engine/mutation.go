package engine

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/datamap"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/store"
)

// ErrInvalidMutation is returned for mutations that are missing required fields
// or carry an unknown operation.
var ErrInvalidMutation = errors.New("invalid mutation")

// Mutation is one structural edit of the graph. It is both the request body of
// the mutation endpoint and the payload of the journal event it produces; Op
// selects which of the remaining fields are read.
type Mutation struct {
	Op store.EventType `json:"op"`

	// graph_loaded
	Graph *datamap.Document `json:"graph,omitempty"`

	// vertex_added, vertex_removed, choices_set
	ID      string       `json:"id,omitempty"`
	Kind    datamap.Kind `json:"kind,omitempty"`
	Choices []string     `json:"choices,omitempty"`

	// edge_added, edge_removed
	Parent  string `json:"parent,omitempty"`
	Name    string `json:"name,omitempty"`
	Target  string `json:"target,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// LoadMutation wraps a whole graph as a graph_loaded mutation.
func LoadMutation(g *datamap.Graph) Mutation {
	doc := g.Document()
	return Mutation{Op: store.EventTypeGraphLoaded, Graph: &doc}
}

// Validate checks that the fields Op needs are present.
func (m Mutation) Validate() error {
	switch m.Op {
	case store.EventTypeGraphLoaded:
		if m.Graph == nil {
			return fmt.Errorf("%w: %s requires graph", ErrInvalidMutation, m.Op)
		}
	case store.EventTypeVertexAdded:
		if m.ID == "" || m.Kind == "" {
			return fmt.Errorf("%w: %s requires id and kind", ErrInvalidMutation, m.Op)
		}
	case store.EventTypeVertexRemoved, store.EventTypeChoicesSet:
		if m.ID == "" {
			return fmt.Errorf("%w: %s requires id", ErrInvalidMutation, m.Op)
		}
	case store.EventTypeEdgeAdded, store.EventTypeEdgeRemoved:
		if m.Parent == "" || m.Name == "" || m.Target == "" {
			return fmt.Errorf("%w: %s requires parent, name and target", ErrInvalidMutation, m.Op)
		}
	default:
		return fmt.Errorf("%w: unknown op %q", ErrInvalidMutation, m.Op)
	}
	return nil
}

// Apply returns the graph that results from applying m to g. g is not modified.
// Only graph_loaded may be applied to a nil graph.
func (m Mutation) Apply(g *datamap.Graph) (*datamap.Graph, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if m.Op == store.EventTypeGraphLoaded {
		return m.Graph.ToGraph()
	}
	if g == nil {
		return nil, ErrNoGraph
	}

	switch m.Op {
	case store.EventTypeVertexAdded:
		return g.AddVertex(m.ID, m.Kind, m.Choices)
	case store.EventTypeVertexRemoved:
		return g.RemoveVertex(m.ID)
	case store.EventTypeEdgeAdded:
		return g.AddEdge(m.Parent, m.Name, m.Target, m.Comment)
	case store.EventTypeEdgeRemoved:
		return g.RemoveEdge(m.Parent, m.Name, m.Target)
	default:
		return g.SetChoices(m.ID, m.Choices)
	}
}

// DecodeMutation reads the mutation carried by a journal event.
func DecodeMutation(event store.Event) (Mutation, error) {
	var m Mutation
	if err := json.Unmarshal(event.Payload, &m); err != nil {
		return Mutation{}, fmt.Errorf("failed to unmarshal payload for event %s: %w", event.EventID, err)
	}
	if m.Op == "" {
		m.Op = event.EventType
	}
	if m.Op != event.EventType {
		return Mutation{}, fmt.Errorf("%w: event %s is %s but payload says %s", ErrInvalidMutation, event.EventID, event.EventType, m.Op)
	}
	return m, nil
}
