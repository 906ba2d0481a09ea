package api

import (
	"time"

	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/binding"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/datamap"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/store"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// StatsResponse matches GET /v1/stats
type StatsResponse struct {
	datamap.Stats
	Seq       int64         `json:"seq"`
	EventID   store.EventID `json:"event_id,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// PathExistsResponse matches GET /v1/paths/exists
type PathExistsResponse struct {
	Path   string `json:"path"`
	Exists bool   `json:"exists"`
}

// InvalidSegmentResponse matches GET /v1/paths/invalid. The segment fields are
// empty when Valid is true.
type InvalidSegmentResponse struct {
	Path  string `json:"path"`
	Valid bool   `json:"valid"`
	datamap.InvalidSegment
}

// TargetsRequest matches the POST /v1/targets body schema
type TargetsRequest struct {
	Starts []string `json:"starts"`
	Path   string   `json:"path"`
}

// TargetsResponse matches the response for POST /v1/targets
type TargetsResponse struct {
	Targets []string `json:"targets"`
}

// EnumerationsResponse matches GET /v1/enumerations
type EnumerationsResponse struct {
	Path    string                     `json:"path"`
	Matches []datamap.EnumerationMatch `json:"matches"`
}

// EdgeMetadataResponse matches GET /v1/edges. Unknown triples give Found false
// and zero metadata.
type EdgeMetadataResponse struct {
	datamap.EdgeKey
	Found bool `json:"found"`
	datamap.EdgeMetadata
}

// OwnerResponse matches GET /v1/owners/{id}
type OwnerResponse struct {
	ID            string `json:"id"`
	Found         bool   `json:"found"`
	OwnerParentID string `json:"owner_parent_id"`
}

// InboundResponse matches GET /v1/inbound/{id}
type InboundResponse struct {
	ID         string               `json:"id"`
	References []datamap.InboundRef `json:"references"`
}

// BindingsRequest matches the POST /v1/bindings body schema
type BindingsRequest struct {
	RootVariable string               `json:"root_variable"`
	Assignments  []binding.Assignment `json:"assignments"`
}

// BindingsResponse maps each bound variable to its candidate vertex ids.
type BindingsResponse struct {
	Bindings map[string][]string `json:"bindings"`
}

// MutationResponse matches the response for POST /v1/mutations
type MutationResponse struct {
	EventID store.EventID   `json:"event_id"`
	Seq     int64           `json:"seq"`
	Op      store.EventType `json:"op"`
	Stats   datamap.Stats   `json:"stats"`
}
