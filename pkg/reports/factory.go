package reports

import (
	"errors"
	"fmt"
)

// ErrUnavailable is returned when the data a report needs is not there: no graph
// loaded for the structural reports, no journal for the journal report.
var ErrUnavailable = errors.New("report source unavailable")

// NewReportGenerator creates a report generator based on the report type.
// Either source may be nil.
func NewReportGenerator(reportType ReportType, graph SnapshotSource, events EventQuerier) (Generator, error) {
	switch reportType {
	case ReportTypeEdges:
		return NewEdgeReport(graph), nil
	case ReportTypeVertices:
		return NewVertexReport(graph), nil
	case ReportTypeJournal:
		return NewJournalReport(events), nil
	default:
		return nil, fmt.Errorf("unknown report type: %s", reportType)
	}
}
