package engine

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/blob"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/logger"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/store"
)

// ArchiveConfig holds configuration for the ArchiveWorker.
type ArchiveConfig struct {
	Retention     time.Duration `json:"retention"`
	BatchSize     int           `json:"batch_size"`
	CheckInterval time.Duration `json:"check_interval"`
}

// ArchiveStore is what the archive worker needs from the journal.
type ArchiveStore interface {
	GetLatestSnapshot(ctx context.Context) (*store.Snapshot, error)
	ReadArchivableEvents(ctx context.Context, maxSeq int64, cutoff time.Time, limit int) ([]*store.Event, error)
	DeleteEvents(ctx context.Context, ids []store.EventID) error
}

// ArchiveWorker moves journal events that are covered by a persisted snapshot
// and older than the retention window to blob storage, then deletes them from
// the journal.
type ArchiveWorker struct {
	store     ArchiveStore
	blobStore blob.BlobStore
	config    ArchiveConfig
	logger    *log.Logger
	now       func() time.Time
}

// NewArchiveWorker creates a new ArchiveWorker.
func NewArchiveWorker(st ArchiveStore, bs blob.BlobStore, config ArchiveConfig, l *log.Logger) *ArchiveWorker {
	if config.BatchSize <= 0 {
		config.BatchSize = 1000
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = time.Hour
	}
	if l == nil {
		l = logger.Discard()
	}
	return &ArchiveWorker{
		store:     st,
		blobStore: bs,
		config:    config,
		logger:    l,
		now:       time.Now,
	}
}

// Run starts the archive worker loop.
func (w *ArchiveWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.config.CheckInterval)
	defer ticker.Stop()

	w.logger.Info("archive_worker_started", "retention", w.config.Retention)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("archive_worker_stopped")
			return
		case <-ticker.C:
			key, n, err := w.ArchiveBatch(ctx)
			if err != nil {
				w.logger.Error("archive_failed", "error", err)
			} else if n > 0 {
				w.logger.Info("events_archived", "count", n, "key", key)
			}
		}
	}
}

// ArchiveBatch archives one batch and returns the blob key and the number of
// events moved. Nothing is archived until a snapshot exists, since a restart
// needs either the snapshot or the full journal.
func (w *ArchiveWorker) ArchiveBatch(ctx context.Context) (string, int, error) {
	snap, err := w.store.GetLatestSnapshot(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("failed to get latest snapshot: %w", err)
	}
	if snap == nil {
		return "", 0, nil
	}

	cutoff := w.now().UTC().Add(-w.config.Retention)
	events, err := w.store.ReadArchivableEvents(ctx, snap.LastSeq, cutoff, w.config.BatchSize)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read archivable events: %w", err)
	}
	if len(events) == 0 {
		return "", 0, nil
	}

	// Serialize events to gzipped JSON Lines
	var buf bytes.Buffer
	gzWriter := gzip.NewWriter(&buf)
	encoder := json.NewEncoder(gzWriter)
	for _, event := range events {
		if err := encoder.Encode(event); err != nil {
			gzWriter.Close()
			return "", 0, fmt.Errorf("failed to encode event %s: %w", event.EventID, err)
		}
	}
	if err := gzWriter.Close(); err != nil {
		return "", 0, fmt.Errorf("failed to close gzip writer: %w", err)
	}

	// events/YYYY/MM/DD/<first seq>_<last seq>_<uuid>.jsonl.gz
	first, last := events[0], events[len(events)-1]
	year, month, day := first.TsIngest.UTC().Date()
	key := fmt.Sprintf("events/%04d/%02d/%02d/%d_%d_%s.jsonl.gz",
		year, month, day, first.Seq, last.Seq, uuid.NewString())

	if err := w.blobStore.Put(ctx, key, &buf); err != nil {
		return "", 0, fmt.Errorf("failed to upload archive to blob store: %w", err)
	}

	ids := make([]store.EventID, len(events))
	for i, event := range events {
		ids[i] = event.EventID
	}
	if err := w.store.DeleteEvents(ctx, ids); err != nil {
		// The events stay in the journal, so the next batch archives them again.
		if derr := w.blobStore.Delete(ctx, key); derr != nil {
			w.logger.Warn("archive_rollback_failed", "key", key, "error", derr)
		}
		return "", 0, fmt.Errorf("failed to delete archived events: %w", err)
	}

	return key, len(events), nil
}

// ReadArchive decodes every archived event under prefix with a seq above
// afterSeq, oldest first.
func ReadArchive(ctx context.Context, bs blob.BlobStore, prefix string, afterSeq int64) ([]*store.Event, error) {
	keys, err := bs.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list archives: %w", err)
	}

	var events []*store.Event
	for _, key := range keys {
		if !strings.HasSuffix(key, ".jsonl.gz") {
			continue
		}
		batch, err := readArchiveBlob(ctx, bs, key)
		if err != nil {
			return nil, err
		}
		for _, e := range batch {
			if e.Seq > afterSeq {
				events = append(events, e)
			}
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })
	return events, nil
}

func readArchiveBlob(ctx context.Context, bs blob.BlobStore, key string) ([]*store.Event, error) {
	rc, err := bs.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", key, err)
	}
	defer rc.Close()

	gz, err := gzip.NewReader(rc)
	if err != nil {
		return nil, fmt.Errorf("archive %s is not gzip: %w", key, err)
	}
	defer gz.Close()

	var events []*store.Event
	dec := json.NewDecoder(gz)
	for {
		var e store.Event
		if err := dec.Decode(&e); errors.Is(err, io.EOF) {
			return events, nil
		} else if err != nil {
			return nil, fmt.Errorf("failed to decode archive %s: %w", key, err)
		}
		events = append(events, &e)
	}
}
