package mapping

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Equivalence classes a mapping can assert. The set is closed; anything else
// is rejected at the boundary.
const (
	EquivalenceEquivalent  = "equivalent"
	EquivalenceWider       = "wider"
	EquivalenceNarrower    = "narrower"
	EquivalenceSpecializes = "specializes"
	EquivalenceGeneralizes = "generalizes"
	EquivalenceRelatedTo   = "relatedto"
)

// Equivalences enumerates the valid equivalence values.
var Equivalences = []interface{}{
	EquivalenceEquivalent, EquivalenceWider, EquivalenceNarrower,
	EquivalenceSpecializes, EquivalenceGeneralizes, EquivalenceRelatedTo,
}

// Evidence is the open supporting-metadata bag on a mapping.
type Evidence map[string]interface{}

// Mapping is a directed, confidence-scored assertion that a source concept
// corresponds to a target concept in another system. Directionality matters:
// source→target does not imply the reverse.
type Mapping struct {
	ID           int64     `json:"id,omitempty"`
	SourceSystem string    `json:"source_system"`
	SourceCode   string    `json:"source_code"`
	TargetSystem string    `json:"target_system"`
	TargetCode   string    `json:"target_code"`
	Equivalence  string    `json:"equivalence"`
	Confidence   float64   `json:"confidence"`
	Method       string    `json:"method,omitempty"`
	Evidence     Evidence  `json:"evidence,omitempty"`
	Curator      string    `json:"curator,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

// TranslationCandidate is a mapping enriched with the resolved display name
// of its target concept. Not persisted.
type TranslationCandidate struct {
	TargetSystem  string   `json:"target_system"`
	TargetCode    string   `json:"target_code"`
	TargetDisplay string   `json:"target_display,omitempty"`
	Equivalence   string   `json:"equivalence"`
	Confidence    float64  `json:"confidence"`
	Method        string   `json:"method,omitempty"`
	Evidence      Evidence `json:"evidence,omitempty"`
}

// AddMappingRequest is the curation payload for POST /api/v1/mappings.
type AddMappingRequest struct {
	SourceSystem string   `json:"source_system"`
	SourceCode   string   `json:"source_code"`
	TargetSystem string   `json:"target_system"`
	TargetCode   string   `json:"target_code"`
	Equivalence  string   `json:"equivalence"`
	Confidence   float64  `json:"confidence"`
	Method       string   `json:"method,omitempty"`
	Evidence     Evidence `json:"evidence,omitempty"`
	Curator      string   `json:"curator,omitempty"`
}

func (r AddMappingRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.SourceSystem, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.SourceCode, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.TargetSystem, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.TargetCode, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.Equivalence, validation.Required, validation.In(Equivalences...)),
		validation.Field(&r.Confidence, validation.Min(0.0), validation.Max(1.0)),
	)
}

// TranslateRequest is the payload for POST /fhir/ConceptMap/$translate.
type TranslateRequest struct {
	System string `json:"system"`
	Code   string `json:"code"`
}

func (r TranslateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.System, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.Code, validation.Required, validation.Length(1, 100)),
	)
}
