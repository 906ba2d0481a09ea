package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/binding"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/datamap"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/engine"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/reports"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/store"
)

// Query handlers never treat absence as an error: unknown vertices, edges and
// paths answer 200 with found/exists false or empty lists.

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request, snap *datamap.Snapshot) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	engine.QueriesTotal.WithLabelValues("graph").Inc()
	s.writeJSON(w, r, http.StatusOK, snap.Graph().Document())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, snap *datamap.Snapshot) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	engine.QueriesTotal.WithLabelValues("stats").Inc()
	pos := s.graph.Position()
	s.writeJSON(w, r, http.StatusOK, StatsResponse{
		Stats:     snap.Stats(),
		Seq:       pos.Seq,
		EventID:   pos.EventID,
		UpdatedAt: pos.UpdatedAt,
	})
}

func (s *Server) handlePathExists(w http.ResponseWriter, r *http.Request, snap *datamap.Snapshot) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	path, ok := requirePath(w, r)
	if !ok {
		return
	}
	engine.QueriesTotal.WithLabelValues("path_exists").Inc()
	s.writeJSON(w, r, http.StatusOK, PathExistsResponse{Path: path, Exists: snap.PathExists(path)})
}

func (s *Server) handleInvalidSegment(w http.ResponseWriter, r *http.Request, snap *datamap.Snapshot) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	path, ok := requirePath(w, r)
	if !ok {
		return
	}
	engine.QueriesTotal.WithLabelValues("first_invalid_segment").Inc()
	seg, invalid := snap.FirstInvalidSegment(path)
	s.writeJSON(w, r, http.StatusOK, InvalidSegmentResponse{Path: path, Valid: !invalid, InvalidSegment: seg})
}

func (s *Server) handleTargets(w http.ResponseWriter, r *http.Request, snap *datamap.Snapshot) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req TargetsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		writeError(w, http.StatusBadRequest, "missing_required_fields", "path")
		return
	}
	engine.QueriesTotal.WithLabelValues("resolve_targets").Inc()
	targets := snap.ResolveTargets(req.Starts, req.Path)
	if targets == nil {
		targets = []string{}
	}
	s.writeJSON(w, r, http.StatusOK, TargetsResponse{Targets: targets})
}

func (s *Server) handleEnumerations(w http.ResponseWriter, r *http.Request, snap *datamap.Snapshot) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	path, ok := requirePath(w, r)
	if !ok {
		return
	}
	engine.QueriesTotal.WithLabelValues("find_enumerations").Inc()
	matches := snap.FindEnumerations(path)
	if matches == nil {
		matches = []datamap.EnumerationMatch{}
	}
	s.writeJSON(w, r, http.StatusOK, EnumerationsResponse{Path: path, Matches: matches})
}

func (s *Server) handleEdgeMetadata(w http.ResponseWriter, r *http.Request, snap *datamap.Snapshot) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	key := datamap.EdgeKey{Parent: q.Get("parent"), Name: q.Get("name"), Target: q.Get("target")}
	if key.Parent == "" || key.Name == "" || key.Target == "" {
		writeError(w, http.StatusBadRequest, "missing_required_fields", "parent, name and target")
		return
	}
	engine.QueriesTotal.WithLabelValues("edge_metadata").Inc()
	md, found := snap.EdgeMetadata(key.Parent, key.Name, key.Target)
	s.writeJSON(w, r, http.StatusOK, EdgeMetadataResponse{EdgeKey: key, Found: found, EdgeMetadata: md})
}

func (s *Server) handleOwner(w http.ResponseWriter, r *http.Request, snap *datamap.Snapshot) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	id := r.PathValue("id")
	engine.QueriesTotal.WithLabelValues("owner").Inc()
	owner, found := snap.Owner(id)
	s.writeJSON(w, r, http.StatusOK, OwnerResponse{ID: id, Found: found, OwnerParentID: owner})
}

func (s *Server) handleInbound(w http.ResponseWriter, r *http.Request, snap *datamap.Snapshot) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	id := r.PathValue("id")
	engine.QueriesTotal.WithLabelValues("inbound_references").Inc()
	s.writeJSON(w, r, http.StatusOK, InboundResponse{ID: id, References: snap.InboundReferences(id)})
}

func (s *Server) handleBindings(w http.ResponseWriter, r *http.Request, snap *datamap.Snapshot) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req BindingsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.RootVariable == "" {
		writeError(w, http.StatusBadRequest, "missing_required_fields", "root_variable")
		return
	}
	engine.QueriesTotal.WithLabelValues("resolve_bindings").Inc()
	env := binding.Resolve(snap, req.RootVariable, req.Assignments)
	s.writeJSON(w, r, http.StatusOK, BindingsResponse{Bindings: env.Sorted()})
}

func (s *Server) handleMutation(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if s.editor == nil {
		writeError(w, http.StatusServiceUnavailable, "read_only", "this instance does not accept mutations")
		return
	}

	var m engine.Mutation
	if !decodeBody(w, r, &m) {
		return
	}

	source := store.EventSource{OriginKind: "api", OriginID: getTraceID(r.Context())}
	event, err := s.editor.Submit(r.Context(), m, source)
	if err != nil {
		status, code := mutationErrorStatus(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("mutation_failed", "trace_id", getTraceID(r.Context()), "op", m.Op, "error", err)
			writeError(w, status, code, "")
			return
		}
		writeError(w, status, code, err.Error())
		return
	}

	resp := MutationResponse{EventID: event.EventID, Seq: event.Seq, Op: event.EventType}
	if snap := s.graph.Current(); snap != nil {
		resp.Stats = snap.Stats()
	}
	s.writeJSON(w, r, http.StatusCreated, resp)
}

func mutationErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, engine.ErrWriterBusy):
		return http.StatusServiceUnavailable, "writer_busy"
	case errors.Is(err, engine.ErrNoGraph):
		return http.StatusConflict, "graph_not_loaded"
	case errors.Is(err, datamap.ErrVertexExists), errors.Is(err, datamap.ErrEdgeExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, datamap.ErrVertexNotFound), errors.Is(err, datamap.ErrEdgeNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, engine.ErrInvalidMutation),
		errors.Is(err, datamap.ErrInvalidDocument),
		errors.Is(err, datamap.ErrInvalidKind),
		errors.Is(err, datamap.ErrNotIdentifier),
		errors.Is(err, datamap.ErrNotEnumeration),
		errors.Is(err, datamap.ErrRootRemoval):
		return http.StatusBadRequest, "invalid_mutation"
	default:
		return http.StatusInternalServerError, "internal_server_error"
	}
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return false
	}
	return true
}

func requirePath(w http.ResponseWriter, r *http.Request) (string, bool) {
	path := r.URL.Query().Get("path")
	if strings.TrimSpace(path) == "" {
		writeError(w, http.StatusBadRequest, "missing_required_fields", "path")
		return "", false
	}
	return path, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json_body", err.Error())
		return false
	}
	return true
}

func parseLimit(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	l := r.URL.Query().Get("limit")
	if l == "" {
		return def, true
	}
	val, err := strconv.Atoi(l)
	if err != nil || val <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_limit", "")
		return 0, false
	}
	if val > 1000 {
		val = 1000
	}
	return val, true
}

// handleReports generates and streams CSV reports. The journal window defaults
// to the last 24 hours.
func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	q := r.URL.Query()
	reportType := reports.ReportType(q.Get("type"))
	if reportType == "" {
		writeError(w, http.StatusBadRequest, "missing_type", "")
		return
	}

	to := time.Now()
	if toStr := q.Get("to"); toStr != "" {
		var err error
		if to, err = time.Parse(time.RFC3339, toStr); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to", "expected RFC3339")
			return
		}
	}
	from := to.Add(-24 * time.Hour)
	if fromStr := q.Get("from"); fromStr != "" {
		var err error
		if from, err = time.Parse(time.RFC3339, fromStr); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", "expected RFC3339")
			return
		}
	}

	params := reports.ReportParams{Start: from, End: to}
	if types := q.Get("event_type"); types != "" {
		for _, t := range strings.Split(types, ",") {
			params.EventTypes = append(params.EventTypes, store.EventType(strings.TrimSpace(t)))
		}
	}

	gen, err := reports.NewReportGenerator(reportType, s.graph, s.events)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_report_type", err.Error())
		return
	}

	reader, err := gen.Generate(r.Context(), params)
	if errors.Is(err, reports.ErrUnavailable) {
		writeError(w, http.StatusServiceUnavailable, "report_source_unavailable", string(reportType))
		return
	}
	if err != nil {
		s.logger.Error("failed_to_generate_report", "trace_id", getTraceID(r.Context()), "type", reportType, "error", err)
		writeError(w, http.StatusInternalServerError, "report_generation_failed", "")
		return
	}
	engine.QueriesTotal.WithLabelValues("report").Inc()

	w.Header().Set("Content-Type", "text/csv")
	filename := fmt.Sprintf("report_%s_%d.csv", reportType, time.Now().Unix())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	if _, err := io.Copy(w, reader); err != nil {
		s.logger.Error("failed_to_stream_report", "trace_id", getTraceID(r.Context()), "error", err)
	}
}
