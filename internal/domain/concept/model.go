package concept

import "time"

// Short namespace strings identifying the two terminology systems.
const (
	SystemNAMASTE = "namaste"
	SystemICD11   = "icd11"
)

// Canonical URIs used in FHIR codings.
const (
	NAMASTEURI = "http://namaste.example.com/fhir/CodeSystem/namaste"
	ICD11URI   = "http://terminology.hl7.org/CodeSystem/icd11"
)

// Metadata carries the open, domain-specific fields a concept can have
// beyond its structured columns (alternate-language names, taxonomy, etc.).
type Metadata map[string]interface{}

// Concept is a single coded term in a terminology system. (system, code)
// identifies it uniquely; rows are immutable after ingestion.
type Concept struct {
	ID         int64     `json:"id,omitempty"`
	System     string    `json:"system"`
	Code       string    `json:"code"`
	Display    string    `json:"display"`
	Definition string    `json:"definition,omitempty"`
	Language   string    `json:"language"`
	Source     string    `json:"source,omitempty"`
	Version    string    `json:"version,omitempty"`
	Metadata   Metadata  `json:"metadata,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
}
