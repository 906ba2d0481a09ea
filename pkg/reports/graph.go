package reports

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/datamap"
)

// EdgeReport lists every edge with its ownership classification.
type EdgeReport struct {
	graph SnapshotSource
}

// NewEdgeReport creates a new EdgeReport generator.
func NewEdgeReport(g SnapshotSource) *EdgeReport {
	return &EdgeReport{graph: g}
}

// Generate writes one row per edge in storage order.
func (r *EdgeReport) Generate(ctx context.Context, _ ReportParams) (io.Reader, error) {
	snap, err := current(r.graph)
	if err != nil {
		return nil, err
	}
	idx := snap.Index()

	headers := []string{"parent_id", "name", "target_id", "target_kind", "owner_parent_id", "inbound_count", "is_link", "is_cycle", "comment"}
	var rows [][]string
	for _, parent := range idx.VertexIDs() {
		for _, e := range idx.Edges(parent) {
			kind := ""
			if v, ok := idx.Vertex(e.Target); ok {
				kind = string(v.Kind())
			}
			meta, _ := snap.EdgeMetadata(parent, e.Name, e.Target)
			rows = append(rows, []string{
				parent,
				e.Name,
				e.Target,
				kind,
				meta.OwnerParentID,
				strconv.Itoa(meta.InboundCount),
				strconv.FormatBool(meta.IsLink),
				strconv.FormatBool(meta.IsCycle),
				e.Comment,
			})
		}
	}
	return writeCSV(headers, rows)
}

// VertexReport lists every vertex with its owner and inbound count.
type VertexReport struct {
	graph SnapshotSource
}

// NewVertexReport creates a new VertexReport generator.
func NewVertexReport(g SnapshotSource) *VertexReport {
	return &VertexReport{graph: g}
}

// Generate writes one row per vertex. Choices are joined with "|".
func (r *VertexReport) Generate(ctx context.Context, _ ReportParams) (io.Reader, error) {
	snap, err := current(r.graph)
	if err != nil {
		return nil, err
	}
	idx := snap.Index()

	headers := []string{"id", "kind", "owner_parent_id", "inbound_count", "out_edges", "choices"}
	rows := make([][]string, 0, idx.Len())
	for _, id := range idx.VertexIDs() {
		v, _ := idx.Vertex(id)
		owner, _ := snap.Owner(id)
		var choices string
		if enum, ok := v.(*datamap.Enumeration); ok {
			choices = strings.Join(enum.Choices, "|")
		}
		rows = append(rows, []string{
			id,
			string(v.Kind()),
			owner,
			strconv.Itoa(len(idx.Inbound(id))),
			strconv.Itoa(len(idx.Edges(id))),
			choices,
		})
	}
	return writeCSV(headers, rows)
}

func current(g SnapshotSource) (*datamap.Snapshot, error) {
	if g == nil {
		return nil, ErrUnavailable
	}
	snap := g.Current()
	if snap == nil {
		return nil, ErrUnavailable
	}
	return snap, nil
}
