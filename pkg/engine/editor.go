package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/datamap"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/logger"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/store"
)

// ErrWriterBusy is returned when another editor holds the writer lease.
var ErrWriterBusy = errors.New("graph writer lease held by another editor")

// DefaultLeaseName is the lease every editor of one graph competes for.
const DefaultLeaseName = "datamap-writer"

// Journal is the append side of the event store.
type Journal interface {
	AppendEvent(ctx context.Context, event *store.Event) error
}

// SnapshotPublisher receives every new graph document after a mutation commits.
type SnapshotPublisher interface {
	Publish(ctx context.Context, seq int64, doc []byte) (bool, error)
}

// EditorOptions configures an Editor. Journal, Leases and Projection are
// required.
type EditorOptions struct {
	Journal    Journal
	Leases     store.LeaseStore
	Projection *GraphProjection
	Publisher  SnapshotPublisher
	Logger     *log.Logger

	// HolderID identifies this editor in the lease; a random id is used if empty.
	HolderID  string
	LeaseName string
	LeaseTTL  time.Duration
}

// Editor serializes structural edits: lease, validate, journal, apply, publish.
// A mutation that fails validation is never journaled.
type Editor struct {
	mu         sync.Mutex
	journal    Journal
	leases     store.LeaseStore
	projection *GraphProjection
	publisher  SnapshotPublisher
	logger     *log.Logger
	holderID   string
	leaseName  string
	leaseTTL   time.Duration
}

// NewEditor creates an Editor.
func NewEditor(opts EditorOptions) *Editor {
	if opts.HolderID == "" {
		opts.HolderID = "editor-" + uuid.NewString()
	}
	if opts.LeaseName == "" {
		opts.LeaseName = DefaultLeaseName
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	return &Editor{
		journal:    opts.Journal,
		leases:     opts.Leases,
		projection: opts.Projection,
		publisher:  opts.Publisher,
		logger:     opts.Logger,
		holderID:   opts.HolderID,
		leaseName:  opts.LeaseName,
		leaseTTL:   opts.LeaseTTL,
	}
}

// HolderID returns the lease holder id of this editor.
func (e *Editor) HolderID() string {
	return e.holderID
}

// Submit commits m and returns the journaled event. Validation errors wrap the
// datamap edit errors (datamap.ErrVertexNotFound and friends) or
// ErrInvalidMutation.
func (e *Editor) Submit(ctx context.Context, m Mutation, source store.EventSource) (*store.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	event, err := e.submitLocked(ctx, m, source)
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	MutationsTotal.WithLabelValues(string(m.Op), result).Inc()
	return event, err
}

func (e *Editor) submitLocked(ctx context.Context, m Mutation, source store.EventSource) (*store.Event, error) {
	acquired, err := e.leases.Acquire(ctx, e.leaseName, e.holderID, e.leaseTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire writer lease: %w", err)
	}
	if !acquired {
		return nil, ErrWriterBusy
	}

	var g *datamap.Graph
	if cur := e.projection.Current(); cur != nil {
		g = cur.Graph()
	}
	if _, err := m.Apply(g); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal mutation: %w", err)
	}

	source.WriterID = e.holderID
	now := time.Now().UTC()
	event := &store.Event{
		EventID:       store.EventID(uuid.NewString()),
		EventType:     m.Op,
		SchemaVersion: 1,
		TsEvent:       now,
		TsIngest:      now,
		Source:        source,
		Payload:       payload,
	}
	if err := e.journal.AppendEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to journal mutation: %w", err)
	}

	if err := e.projection.Apply(*event); err != nil {
		// The event is journaled; the next replay will surface the same error.
		e.logger.Error("projection_apply_failed", "event_id", event.EventID, "error", err)
		return nil, err
	}
	e.logger.Info("mutation_applied", "op", m.Op, "event_id", event.EventID, "seq", event.Seq, "origin", source.OriginKind)

	e.publish(ctx, event.Seq)
	return event, nil
}

func (e *Editor) publish(ctx context.Context, seq int64) {
	if e.publisher == nil {
		return
	}
	snap := e.projection.Current()
	if snap == nil {
		return
	}
	doc, err := json.Marshal(snap.Graph())
	if err != nil {
		e.logger.Error("snapshot_marshal_failed", "seq", seq, "error", err)
		return
	}
	if _, err := e.publisher.Publish(ctx, seq, doc); err != nil {
		e.logger.Warn("snapshot_publish_failed", "seq", seq, "error", err)
		return
	}
	e.logger.Debug("snapshot_published", "seq", seq)
}

// PublishCurrent pushes the current graph to the publisher. Used after a restart
// restored the graph without a new mutation.
func (e *Editor) PublishCurrent(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.publish(ctx, e.projection.Position().Seq)
}

// Close releases the writer lease.
func (e *Editor) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.leases.Release(ctx, e.leaseName, e.holderID)
}
