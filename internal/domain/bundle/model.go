package bundle

import "errors"

// ErrNotBundle is the structural-validation failure for an envelope whose
// declared type is not "Bundle". Nothing is processed or audited.
var ErrNotBundle = errors.New("resourceType must be Bundle")

// UploadResult reports what bundle processing did. Errors collects per-entry
// and audit-write failures; their presence does not make the upload fail.
type UploadResult struct {
	BundleID      string   `json:"bundle_id"`
	Created       []string `json:"created"`
	MappingsAdded int      `json:"mappings_added"`
	ProvenanceID  string   `json:"provenance_id"`
	AuditID       string   `json:"audit_id,omitempty"`
	Errors        []string `json:"errors,omitempty"`
}
