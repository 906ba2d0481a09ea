package reports

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/store"
)

// JournalReport generates CSV reports of committed edits.
type JournalReport struct {
	store EventQuerier
}

// NewJournalReport creates a new JournalReport generator.
func NewJournalReport(s EventQuerier) *JournalReport {
	return &JournalReport{store: s}
}

// Generate writes the events inside [Start, End], oldest first. A zero bound is
// open.
func (r *JournalReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	if r.store == nil {
		return nil, ErrUnavailable
	}

	events, err := r.store.QueryEvents(ctx, store.EventFilter{EventTypes: params.EventTypes})
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	headers := []string{"seq", "timestamp", "event_type", "origin_kind", "origin_id", "writer_id", "payload_bytes"}
	var rows [][]string
	for _, event := range events {
		if !params.Start.IsZero() && event.TsEvent.Before(params.Start) {
			continue
		}
		if !params.End.IsZero() && event.TsEvent.After(params.End) {
			continue
		}
		rows = append(rows, []string{
			strconv.FormatInt(event.Seq, 10),
			event.TsEvent.UTC().Format(time.RFC3339),
			string(event.EventType),
			event.Source.OriginKind,
			event.Source.OriginID,
			event.Source.WriterID,
			strconv.Itoa(len(event.Payload)),
		})
	}
	return writeCSV(headers, rows)
}
