package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store manages the SQLite journal of graph mutations, graph snapshots and leases.
type Store struct {
	db *sql.DB
}

// NewStore initializes the SQLite database connection.
// It enables WAL mode for concurrency and durability.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db}

	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the necessary tables if they don't exist.
func (s *Store) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id TEXT NOT NULL UNIQUE,
		event_type TEXT NOT NULL,
		schema_version INTEGER NOT NULL,
		ts_event DATETIME NOT NULL,
		ts_ingest DATETIME NOT NULL,

		origin_kind TEXT,
		origin_id TEXT,
		writer_id TEXT,

		payload JSON NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type);

	CREATE TABLE IF NOT EXISTS snapshots (
		snapshot_id TEXT PRIMARY KEY,
		schema_version INTEGER NOT NULL,
		ts_snapshot DATETIME NOT NULL,
		last_event_id TEXT NOT NULL,
		last_seq INTEGER NOT NULL,
		payload JSON NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_last_seq ON snapshots(last_seq);

	CREATE TABLE IF NOT EXISTS leases (
		name TEXT PRIMARY KEY,
		holder_id TEXT NOT NULL,
		expires_at DATETIME NOT NULL,
		version INTEGER NOT NULL,
		epoch INTEGER NOT NULL
	);
	`

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

// AppendEvent writes the event to the journal and sets its Seq.
func (s *Store) AppendEvent(ctx context.Context, event *Event) error {
	if event.EventID == "" {
		return errors.New("event id is required")
	}
	if event.TsIngest.IsZero() {
		event.TsIngest = time.Now().UTC()
	}
	if len(event.Payload) == 0 {
		event.Payload = []byte("{}")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO events (
			event_id, event_type, schema_version, ts_event, ts_ingest,
			origin_kind, origin_id, writer_id, payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.EventID, event.EventType, event.SchemaVersion, event.TsEvent.UTC(), event.TsIngest.UTC(),
		event.Source.OriginKind, event.Source.OriginID, event.Source.WriterID, string(event.Payload),
	)
	if err != nil {
		return fmt.Errorf("failed to append event %s: %w", event.EventID, err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read event sequence: %w", err)
	}
	event.Seq = seq
	return nil
}

// ReadEvents returns every event after the given sequence number, oldest first.
func (s *Store) ReadEvents(ctx context.Context, afterSeq int64) ([]*Event, error) {
	return s.QueryEvents(ctx, EventFilter{AfterSeq: afterSeq})
}

// ReadRecentEvents returns the newest events, newest first.
func (s *Store) ReadRecentEvents(ctx context.Context, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, selectEvents+` ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// QueryEvents returns events matching the filter, oldest first.
func (s *Store) QueryEvents(ctx context.Context, filter EventFilter) ([]*Event, error) {
	var (
		where []string
		args  []any
	)
	where = append(where, "seq > ?")
	args = append(args, filter.AfterSeq)

	if len(filter.EventTypes) > 0 {
		placeholders := make([]string, len(filter.EventTypes))
		for i, et := range filter.EventTypes {
			placeholders[i] = "?"
			args = append(args, string(et))
		}
		where = append(where, "event_type IN ("+strings.Join(placeholders, ",")+")")
	}

	query := selectEvents + " WHERE " + strings.Join(where, " AND ") + " ORDER BY seq ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// GetEvent looks up a single event. It returns nil, nil if the event is unknown.
func (s *Store) GetEvent(ctx context.Context, id EventID) (*Event, error) {
	rows, err := s.db.QueryContext(ctx, selectEvents+` WHERE event_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query event %s: %w", id, err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return events[0], nil
}

const selectEvents = `
	SELECT seq, event_id, event_type, schema_version, ts_event, ts_ingest,
		COALESCE(origin_kind, ''), COALESCE(origin_id, ''), COALESCE(writer_id, ''), payload
	FROM events`

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		var (
			e       Event
			payload string
		)
		if err := rows.Scan(
			&e.Seq, &e.EventID, &e.EventType, &e.SchemaVersion, &e.TsEvent, &e.TsIngest,
			&e.Source.OriginKind, &e.Source.OriginID, &e.Source.WriterID, &payload,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Payload = []byte(payload)
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}

// SaveSnapshot persists a graph snapshot.
func (s *Store) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (snapshot_id, schema_version, ts_snapshot, last_event_id, last_seq, payload)
		VALUES (?, ?, ?, ?, ?, ?)
	`, snap.SnapshotID, snap.SchemaVersion, snap.TsSnapshot.UTC(), snap.LastEventID, snap.LastSeq, string(snap.Payload))
	if err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", snap.SnapshotID, err)
	}
	return nil
}

// GetLatestSnapshot returns the snapshot with the highest journal position, or
// nil, nil if there is none.
func (s *Store) GetLatestSnapshot(ctx context.Context) (*Snapshot, error) {
	var (
		snap    Snapshot
		payload string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT snapshot_id, schema_version, ts_snapshot, last_event_id, last_seq, payload
		FROM snapshots ORDER BY last_seq DESC, ts_snapshot DESC LIMIT 1
	`).Scan(&snap.SnapshotID, &snap.SchemaVersion, &snap.TsSnapshot, &snap.LastEventID, &snap.LastSeq, &payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}
	snap.Payload = []byte(payload)
	return &snap, nil
}

// PruneSnapshots keeps the newest keep snapshots and deletes the rest.
func (s *Store) PruneSnapshots(ctx context.Context, keep int) (int64, error) {
	if keep < 1 {
		keep = 1
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM snapshots WHERE snapshot_id NOT IN (
			SELECT snapshot_id FROM snapshots ORDER BY last_seq DESC, ts_snapshot DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return res.RowsAffected()
}

// ReadArchivableEvents returns up to limit of the oldest events with seq at or
// below maxSeq that were ingested before cutoff.
func (s *Store) ReadArchivableEvents(ctx context.Context, maxSeq int64, cutoff time.Time, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, selectEvents+`
		WHERE seq <= ? AND ts_ingest < ?
		ORDER BY seq ASC LIMIT ?`, maxSeq, cutoff.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query archivable events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// DeleteEvents removes the given events from the journal in one transaction.
func (s *Store) DeleteEvents(ctx context.Context, ids []EventID) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM events WHERE event_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("failed to delete event %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit event deletion: %w", err)
	}
	return nil
}
