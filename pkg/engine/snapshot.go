package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/datamap"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/logger"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/store"
)

// SnapshotStore is the snapshot side of the event store.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap *store.Snapshot) error
	GetLatestSnapshot(ctx context.Context) (*store.Snapshot, error)
	PruneSnapshots(ctx context.Context, keep int) (int64, error)
}

// SnapshotWorker periodically persists the current graph document so that a
// restart only replays the journal tail.
type SnapshotWorker struct {
	store      SnapshotStore
	projection *GraphProjection
	interval   time.Duration
	keep       int
	logger     *log.Logger

	lastSeq int64
}

// NewSnapshotWorker creates a new worker. keep is the number of snapshots
// retained after each save.
func NewSnapshotWorker(st SnapshotStore, proj *GraphProjection, interval time.Duration, keep int, l *log.Logger) *SnapshotWorker {
	if interval == 0 {
		interval = 5 * time.Minute
	}
	if keep <= 0 {
		keep = 3
	}
	if l == nil {
		l = logger.Discard()
	}
	return &SnapshotWorker{
		store:      st,
		projection: proj,
		interval:   interval,
		keep:       keep,
		logger:     l,
	}
}

// Run starts the snapshot loop
func (w *SnapshotWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("snapshot_worker_started", "interval", w.interval)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("snapshot_worker_stopped")
			return
		case <-ticker.C:
			saved, err := w.TakeSnapshot(ctx)
			if err != nil {
				w.logger.Error("snapshot_failed", "error", err)
			} else if saved {
				w.logger.Info("snapshot_created", "seq", w.lastSeq)
			}
		}
	}
}

// TakeSnapshot saves the current graph if the journal moved since the last
// snapshot. It reports whether a snapshot was written.
func (w *SnapshotWorker) TakeSnapshot(ctx context.Context) (bool, error) {
	snap := w.projection.Current()
	pos := w.projection.Position()
	if snap == nil || pos.Seq == 0 || pos.Seq == w.lastSeq {
		return false, nil
	}

	payload, err := json.Marshal(snap.Graph())
	if err != nil {
		return false, fmt.Errorf("failed to marshal snapshot payload: %w", err)
	}

	record := &store.Snapshot{
		SnapshotID:    "snap_" + uuid.NewString(),
		SchemaVersion: 1,
		TsSnapshot:    time.Now().UTC(),
		LastEventID:   pos.EventID,
		LastSeq:       pos.Seq,
		Payload:       payload,
	}
	if err := w.store.SaveSnapshot(ctx, record); err != nil {
		return false, fmt.Errorf("store save failed: %w", err)
	}
	w.lastSeq = pos.Seq

	if _, err := w.store.PruneSnapshots(ctx, w.keep); err != nil {
		w.logger.Warn("snapshot_prune_failed", "error", err)
	}
	return true, nil
}

// LoadLatestSnapshot restores the projection from the newest persisted
// snapshot and returns the journal position to replay from. A zero position
// means there is no snapshot and the whole journal must be replayed.
func LoadLatestSnapshot(ctx context.Context, st SnapshotStore, proj *GraphProjection) (Position, error) {
	snap, err := st.GetLatestSnapshot(ctx)
	if err != nil {
		return Position{}, fmt.Errorf("failed to get latest snapshot: %w", err)
	}
	if snap == nil {
		return Position{}, nil
	}

	g, err := datamap.ParseDocument(snap.Payload)
	if err != nil {
		return Position{}, fmt.Errorf("failed to decode snapshot %s: %w", snap.SnapshotID, err)
	}

	pos := Position{Seq: snap.LastSeq, EventID: snap.LastEventID, UpdatedAt: snap.TsSnapshot}
	proj.LoadState(g, pos)
	return pos, nil
}

// EventReader is the read side of the event store.
type EventReader interface {
	ReadEvents(ctx context.Context, afterSeq int64) ([]*store.Event, error)
}

// Restore rebuilds proj from the latest snapshot plus the journal tail.
func Restore(ctx context.Context, snapshots SnapshotStore, events EventReader, proj *GraphProjection) (Position, error) {
	pos, err := LoadLatestSnapshot(ctx, snapshots, proj)
	if err != nil {
		return Position{}, err
	}
	tail, err := events.ReadEvents(ctx, pos.Seq)
	if err != nil {
		return Position{}, fmt.Errorf("failed to read journal after seq %d: %w", pos.Seq, err)
	}
	if err := proj.Replay(tail); err != nil {
		return Position{}, fmt.Errorf("failed to replay journal: %w", err)
	}
	return proj.Position(), nil
}
