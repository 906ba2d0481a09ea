package store

import (
	"context"
	"encoding/json"
	"time"
)

// EventType represents the kind of graph mutation recorded in the journal.
type EventType string

const (
	EventTypeGraphLoaded   EventType = "graph_loaded"
	EventTypeVertexAdded   EventType = "vertex_added"
	EventTypeVertexRemoved EventType = "vertex_removed"
	EventTypeEdgeAdded     EventType = "edge_added"
	EventTypeEdgeRemoved   EventType = "edge_removed"
	EventTypeChoicesSet    EventType = "choices_set"
)

// Lease represents an exclusive claim, used to serialize graph writers.
type Lease struct {
	Name      string    `json:"name"`
	HolderID  string    `json:"holder_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Version   int64     `json:"version"` // bumped on every acquire/renew
	Epoch     int64     `json:"epoch"`   // bumped when the holder changes
}

// LeaseStore defines the interface for acquiring and renewing leases.
type LeaseStore interface {
	// Acquire tries to acquire the lease. Returns true if successful.
	// If the lease is already held by holderID, it renews it.
	Acquire(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error)

	// Renew updates the expiry of an existing lease held by holderID.
	// Returns error if the lease is lost or stolen.
	Renew(ctx context.Context, name, holderID string, ttl time.Duration) error

	// Release releases the lease if held by holderID.
	Release(ctx context.Context, name, holderID string) error

	// Get returns the current lease state, or nil if nobody holds it.
	Get(ctx context.Context, name string) (*Lease, error)
}

// EventID is a unique identifier for an event.
type EventID string

// Event is the journal envelope for one graph mutation.
type Event struct {
	// Seq is the journal position, assigned by the store on append.
	Seq           int64           `json:"seq"`
	EventID       EventID         `json:"event_id"`
	EventType     EventType       `json:"event_type"`
	SchemaVersion int             `json:"schema_version"`
	TsEvent       time.Time       `json:"ts_event"`
	TsIngest      time.Time       `json:"ts_ingest"`
	Source        EventSource     `json:"source"`
	Payload       json.RawMessage `json:"payload"`
}

// EventSource describes the origin of the event.
type EventSource struct {
	OriginKind string `json:"origin_kind"` // api, cli, loader, reload
	OriginID   string `json:"origin_id"`
	WriterID   string `json:"writer_id"` // lease holder that appended the event
}

// EventFilter defines filters for querying events.
type EventFilter struct {
	AfterSeq   int64
	EventTypes []EventType
	Limit      int
}

// Snapshot is a persisted graph document together with the journal position it
// reflects.
type Snapshot struct {
	SnapshotID    string          `json:"snapshot_id"`
	SchemaVersion int             `json:"schema_version"`
	TsSnapshot    time.Time       `json:"ts_snapshot"`
	LastEventID   EventID         `json:"last_event_id"`
	LastSeq       int64           `json:"last_seq"`
	Payload       json.RawMessage `json:"payload"`
}
