package audit

import (
	"time"

	"github.com/google/uuid"
)

// Actions recorded in the audit trail.
const (
	ActionCreate    = "create"
	ActionRead      = "read"
	ActionUpdate    = "update"
	ActionDelete    = "delete"
	ActionSearch    = "search"
	ActionTranslate = "translate"
	ActionUpload    = "upload"
	ActionDownload  = "download"
	ActionLogin     = "login"
	ActionLogout    = "logout"
)

// Resource type classifiers.
const (
	ResourceConcept    = "Concept"
	ResourceMapping    = "Mapping"
	ResourceBundle     = "Bundle"
	ResourceCodeSystem = "CodeSystem"
	ResourceConceptMap = "ConceptMap"
	ResourceProvenance = "Provenance"
	ResourceAuditLog   = "AuditLog"
)

// Detail is the open key/value context attached to a record.
type Detail map[string]interface{}

// Record is one append-only audit trail entry. Records are never updated or
// deleted.
type Record struct {
	ID           uuid.UUID `json:"id"`
	Actor        string    `json:"actor"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type,omitempty"`
	ResourceID   string    `json:"resource_id,omitempty"`
	Detail       Detail    `json:"detail,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Filter narrows an audit trail query. Zero values match everything.
type Filter struct {
	Actor        string
	Action       string
	ResourceType string
	ResourceID   string
	Limit        int
}
