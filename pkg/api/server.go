package api

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/datamap"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/engine"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/logger"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/store"
)

// Context keys
type contextKey string

const traceIDKey contextKey = "trace_id"

// maxBodyBytes caps request bodies; a full graph load is the largest legitimate one.
const maxBodyBytes = 32 << 20

// Interfaces for dependencies to enable mocking

// GraphSource provides the published snapshot.
type GraphSource interface {
	Current() *datamap.Snapshot
	Position() engine.Position
}

// MutationSubmitter commits structural edits.
type MutationSubmitter interface {
	Submit(ctx context.Context, m engine.Mutation, source store.EventSource) (*store.Event, error)
}

// EventReader lists journal entries.
type EventReader interface {
	ReadRecentEvents(ctx context.Context, limit int) ([]*store.Event, error)
	QueryEvents(ctx context.Context, filter store.EventFilter) ([]*store.Event, error)
	GetEvent(ctx context.Context, id store.EventID) (*store.Event, error)
}

// Options configures a Server. Graph is required; without Editor the server is
// read-only and without Events the journal endpoint is unavailable.
type Options struct {
	Addr   string
	Graph  GraphSource
	Editor MutationSubmitter
	Events EventReader
	// Token, when set, is required as a bearer token on mutations.
	Token  string
	Logger *log.Logger
}

// Server encapsulates the HTTP API server
type Server struct {
	graph     GraphSource
	editor    MutationSubmitter
	events    EventReader
	tokenHash string
	logger    *log.Logger
	handler   http.Handler
	server    *http.Server

	// TLS Config
	tlsCertFile string
	tlsKeyFile  string
}

// NewServer creates a new API server instance
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	s := &Server{
		graph:  opts.Graph,
		editor: opts.Editor,
		events: opts.Events,
		logger: opts.Logger,
	}
	if opts.Token != "" {
		s.tokenHash = hashToken(opts.Token)
	}

	mux := http.NewServeMux()

	// Register routes
	mux.HandleFunc("/v1/health", handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/v1/graph", s.withGraph(s.handleGraph))
	mux.HandleFunc("/v1/stats", s.withGraph(s.handleStats))
	mux.HandleFunc("/v1/paths/exists", s.withGraph(s.handlePathExists))
	mux.HandleFunc("/v1/paths/invalid", s.withGraph(s.handleInvalidSegment))
	mux.HandleFunc("/v1/targets", s.withGraph(s.handleTargets))
	mux.HandleFunc("/v1/enumerations", s.withGraph(s.handleEnumerations))
	mux.HandleFunc("/v1/edges", s.withGraph(s.handleEdgeMetadata))
	mux.HandleFunc("/v1/owners/{id}", s.withGraph(s.handleOwner))
	mux.HandleFunc("/v1/inbound/{id}", s.withGraph(s.handleInbound))
	mux.HandleFunc("/v1/bindings", s.withGraph(s.handleBindings))
	mux.HandleFunc("/v1/mutations", s.withAuth(s.handleMutation))
	mux.HandleFunc("/v1/events", s.handleEvents)
	mux.HandleFunc("/v1/events/{id}", s.handleEvent)
	mux.HandleFunc("/v1/reports", s.handleReports)

	// Middleware: Logging, Panic Recovery, Security Headers
	s.handler = s.withLogging(s.withRecovery(withSecureHeaders(mux)))

	// Use default port if addr is empty
	addr := opts.Addr
	if addr == "" {
		addr = ":8090"
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	return s
}

// Handler returns the fully wrapped handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// SetTLS configures the server to use TLS
func (s *Server) SetTLS(certFile, keyFile string) {
	s.tlsCertFile = certFile
	s.tlsKeyFile = keyFile
}

// Start runs the HTTP server (blocking)
func (s *Server) Start() error {
	if s.tlsCertFile != "" && s.tlsKeyFile != "" {
		s.logger.Info("server_starting_tls", "addr", s.server.Addr)
		if err := s.server.ListenAndServeTLS(s.tlsCertFile, s.tlsKeyFile); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	} else {
		s.logger.Info("server_starting", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}
	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("server_stopping")
	return s.server.Shutdown(ctx)
}

// handleHealth returns simple status
func handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method_not_allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleEvents returns the newest journal entries.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	if s.events == nil {
		writeError(w, http.StatusServiceUnavailable, "journal_not_available", "")
		return
	}

	limit, ok := parseLimit(w, r, 50)
	if !ok {
		return
	}

	events, err := s.events.ReadRecentEvents(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed_to_read_events", "trace_id", getTraceID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "internal_server_error", "")
		return
	}
	if events == nil {
		events = []*store.Event{}
	}
	s.writeJSON(w, r, http.StatusOK, events)
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	if s.events == nil {
		writeError(w, http.StatusServiceUnavailable, "journal_not_available", "")
		return
	}

	event, err := s.events.GetEvent(r.Context(), store.EventID(r.PathValue("id")))
	if err != nil {
		s.logger.Error("failed_to_read_event", "trace_id", getTraceID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "internal_server_error", "")
		return
	}
	if event == nil {
		// Archived events are gone from the journal too.
		writeError(w, http.StatusNotFound, "event_not_found", r.PathValue("id"))
		return
	}
	s.writeJSON(w, r, http.StatusOK, event)
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed_to_encode_response", "trace_id", getTraceID(r.Context()), "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: code, Reason: reason})
}

// Middleware: Graph loaded. Query handlers receive the snapshot they must use for
// the whole request.
func (s *Server) withGraph(next func(http.ResponseWriter, *http.Request, *datamap.Snapshot)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.graph == nil {
			writeError(w, http.StatusServiceUnavailable, "graph_not_available", "")
			return
		}
		snap := s.graph.Current()
		if snap == nil {
			writeError(w, http.StatusServiceUnavailable, "graph_not_loaded", "")
			return
		}
		next(w, r, snap)
	}
}

// Middleware: Auth. A server without a token accepts every request.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.tokenHash == "" {
			next(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing_token")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid_token_format")
			return
		}

		if subtle.ConstantTimeCompare([]byte(hashToken(parts[1])), []byte(s.tokenHash)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid_token")
			return
		}

		next(w, r)
	}
}

// Middleware: Panic Recovery
func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic_recovered", "error", fmt.Sprint(err), "path", r.URL.Path)
				writeError(w, http.StatusInternalServerError, "internal_server_error", "")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Middleware: Request Logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// 1. Extract or Generate Trace ID
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = generateTraceID()
		}

		// 2. Inject into Context
		ctx := context.WithValue(r.Context(), traceIDKey, traceID)
		r = r.WithContext(ctx)

		// Wrap writer to capture status code
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		// 3. Set response header
		w.Header().Set("X-Trace-ID", traceID)

		next.ServeHTTP(ww, r)

		s.logger.Info("http_request",
			"trace_id", traceID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func generateTraceID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// Fallback if random fails (unlikely)
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

func getTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// statusWriter captures HTTP status code
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// Middleware: Secure Headers
func withSecureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")

		next.ServeHTTP(w, r)
	})
}
