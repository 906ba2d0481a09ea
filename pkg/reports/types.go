package reports

import (
	"context"
	"io"
	"time"

	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/datamap"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/store"
)

type ReportType string

const (
	ReportTypeEdges    ReportType = "edges"
	ReportTypeVertices ReportType = "vertices"
	ReportTypeJournal  ReportType = "journal"
)

// ReportParams narrows a report. The time range and event types only apply to
// the journal report.
type ReportParams struct {
	Start      time.Time
	End        time.Time
	EventTypes []store.EventType
}

// EventQuerier is the journal access the journal report needs.
type EventQuerier interface {
	QueryEvents(ctx context.Context, filter store.EventFilter) ([]*store.Event, error)
}

// SnapshotSource yields the graph the structural reports describe.
type SnapshotSource interface {
	Current() *datamap.Snapshot
}

type Generator interface {
	Generate(ctx context.Context, params ReportParams) (io.Reader, error)
}
