package engine

import (
	"path/filepath"
	"testing"

	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/datamap"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.NewStore(filepath.Join(t.TempDir(), "datamap.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// sampleDocument is R -a-> S -name-> E(enum) and R -b-> T -s-> S, so S is shared
// and owned by R.
func sampleDocument() *datamap.Document {
	return &datamap.Document{
		RootID: "R",
		Vertices: []datamap.VertexDocument{
			{ID: "R", Type: datamap.KindIdentifier, OutEdges: []datamap.Edge{
				{Name: "a", Target: "S"},
				{Name: "b", Target: "T"},
			}},
			{ID: "S", Type: datamap.KindIdentifier, OutEdges: []datamap.Edge{{Name: "name", Target: "E"}}},
			{ID: "T", Type: datamap.KindIdentifier, OutEdges: []datamap.Edge{{Name: "s", Target: "S"}}},
			{ID: "E", Type: datamap.KindEnumeration, Choices: []string{"x", "y"}},
		},
	}
}

func sampleGraph(t *testing.T) *datamap.Graph {
	t.Helper()
	g, err := sampleDocument().ToGraph()
	if err != nil {
		t.Fatalf("sample document: %v", err)
	}
	return g
}

func loadedEvent(seq int64) store.Event {
	return store.Event{
		Seq:       seq,
		EventID:   "evt-load",
		EventType: store.EventTypeGraphLoaded,
		Payload:   mustPayload(Mutation{Op: store.EventTypeGraphLoaded, Graph: sampleDocument()}),
	}
}
