package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/datamap"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/store"
)

// ErrNoGraph is returned when a structural edit arrives before any graph was
// loaded.
var ErrNoGraph = errors.New("no graph loaded")

// Position identifies the last journal event reflected by a snapshot.
type Position struct {
	Seq       int64         `json:"seq"`
	EventID   store.EventID `json:"event_id"`
	UpdatedAt time.Time     `json:"updated_at"`
}

type projectionState struct {
	snapshot *datamap.Snapshot
	pos      Position
}

// GraphProjection is the read model over the mutation journal: the current
// datamap snapshot. Readers load it lock-free; writers are serialized and publish a
// fully built replacement, so a reader never sees a half-applied edit.
type GraphProjection struct {
	mu    sync.Mutex
	state atomic.Pointer[projectionState]
}

// NewGraphProjection creates an empty projection. Current returns nil until a
// graph is loaded.
func NewGraphProjection() *GraphProjection {
	return &GraphProjection{}
}

// Current returns the published snapshot, or nil if no graph has been loaded.
func (p *GraphProjection) Current() *datamap.Snapshot {
	st := p.state.Load()
	if st == nil {
		return nil
	}
	return st.snapshot
}

// Position returns the journal position of the published snapshot.
func (p *GraphProjection) Position() Position {
	st := p.state.Load()
	if st == nil {
		return Position{}
	}
	return st.pos
}

// Apply folds a single journal event into the projection. Events at or below
// the current position are ignored so a replay over a restored snapshot is safe.
func (p *GraphProjection) Apply(event store.Event) error {
	m, err := DecodeMutation(event)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	cur := p.state.Load()
	if cur != nil && event.Seq != 0 && event.Seq <= cur.pos.Seq {
		return nil
	}

	var g *datamap.Graph
	if cur != nil {
		g = cur.snapshot.Graph()
	}
	next, err := m.Apply(g)
	if err != nil {
		return fmt.Errorf("failed to apply event %s: %w", event.EventID, err)
	}

	p.publishLocked(next, Position{Seq: event.Seq, EventID: event.EventID, UpdatedAt: event.TsIngest})
	return nil
}

// Replay rebuilds the projection from a slice of events.
func (p *GraphProjection) Replay(events []*store.Event) error {
	for _, event := range events {
		if event == nil {
			continue
		}
		if err := p.Apply(*event); err != nil {
			return err
		}
	}
	return nil
}

// LoadState installs g as the current graph at pos. Used when restoring from a
// persisted snapshot.
func (p *GraphProjection) LoadState(g *datamap.Graph, pos Position) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.publishLocked(g, pos)
}

func (p *GraphProjection) publishLocked(g *datamap.Graph, pos Position) {
	start := time.Now()
	snap := datamap.Build(g)
	SnapshotRebuildSeconds.Observe(time.Since(start).Seconds())
	SnapshotRebuildsTotal.Inc()
	observeGraph(snap.Stats())

	if pos.UpdatedAt.IsZero() {
		pos.UpdatedAt = time.Now().UTC()
	}
	p.state.Store(&projectionState{snapshot: snap, pos: pos})
}
