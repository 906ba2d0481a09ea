package datamap

// Kind is the wire tag of a vertex variant.
type Kind string

const (
	KindIdentifier  Kind = "SOAR_ID"
	KindEnumeration Kind = "ENUMERATION"
	KindString      Kind = "STRING"
	KindInteger     Kind = "INTEGER"
	KindFloat       Kind = "FLOAT"
)

// UpwardSegment is the reserved first path segment that restarts resolution at the
// graph root.
const UpwardSegment = "superstate"

// Vertex is a node of the attribute graph. The set of implementations is closed:
// *Identifier, *Enumeration and *Scalar.
type Vertex interface {
	VertexID() string
	Kind() Kind
	isVertex()
}

// Edge is a named, directed connection owned by an Identifier vertex.
type Edge struct {
	Name    string `json:"name"`
	Target  string `json:"toId"`
	Comment string `json:"comment,omitempty"`
}

// Identifier is a compound vertex; it is the only variant with outgoing edges.
type Identifier struct {
	ID    string
	Edges []Edge
}

func (v *Identifier) VertexID() string { return v.ID }
func (v *Identifier) Kind() Kind       { return KindIdentifier }
func (*Identifier) isVertex()          {}

// Enumeration is a leaf with a fixed set of string choices.
type Enumeration struct {
	ID      string
	Choices []string
}

func (v *Enumeration) VertexID() string { return v.ID }
func (v *Enumeration) Kind() Kind       { return KindEnumeration }
func (*Enumeration) isVertex()          {}

// Scalar is a string, integer or float leaf.
type Scalar struct {
	ID   string
	Type Kind
}

func (v *Scalar) VertexID() string { return v.ID }
func (v *Scalar) Kind() Kind       { return v.Type }
func (*Scalar) isVertex()          {}

// EdgeKey identifies an edge for metadata lookup.
type EdgeKey struct {
	Parent string `json:"parent"`
	Name   string `json:"name"`
	Target string `json:"target"`
}

// InboundRef describes one edge pointing at a vertex.
type InboundRef struct {
	ParentID string `json:"parent_id"`
	EdgeName string `json:"edge_name"`
}

// Graph is a snapshot of the attribute graph: a root id plus the vertex list in
// storage order.
type Graph struct {
	RootID   string
	Vertices []Vertex
}

// NewGraph creates a graph holding only an empty root Identifier.
func NewGraph(rootID string) *Graph {
	return &Graph{
		RootID:   rootID,
		Vertices: []Vertex{&Identifier{ID: rootID}},
	}
}

func isScalarKind(k Kind) bool {
	return k == KindString || k == KindInteger || k == KindFloat
}
