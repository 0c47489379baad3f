package fhir

import (
	"time"
)

// Resource is the base FHIR resource representation.
type Resource struct {
	ResourceType string `json:"resourceType"`
	ID           string `json:"id"`
	Meta         *Meta  `json:"meta,omitempty"`
}

type Meta struct {
	VersionID   string      `json:"versionId,omitempty"`
	LastUpdated time.Time   `json:"lastUpdated,omitempty"`
	Profile     []string    `json:"profile,omitempty"`
	Extension   []Extension `json:"extension,omitempty"`
}

type Coding struct {
	System       string `json:"system,omitempty"`
	Code         string `json:"code,omitempty"`
	Display      string `json:"display,omitempty"`
	UserSelected *bool  `json:"userSelected,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

type Reference struct {
	Reference string `json:"reference,omitempty"`
	Type      string `json:"type,omitempty"`
	Display   string `json:"display,omitempty"`
}

type Period struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

type Extension struct {
	URL          string `json:"url"`
	ValueString  string `json:"valueString,omitempty"`
	ValueCode    string `json:"valueCode,omitempty"`
	ValueBoolean *bool  `json:"valueBoolean,omitempty"`
	ValueInteger *int   `json:"valueInteger,omitempty"`
}

// Parameter is a single name/value entry in a FHIR Parameters resource.
type Parameter struct {
	Name                 string           `json:"name"`
	ValueString          string           `json:"valueString,omitempty"`
	ValueCode            string           `json:"valueCode,omitempty"`
	ValueDecimal         *float64         `json:"valueDecimal,omitempty"`
	ValueBoolean         *bool            `json:"valueBoolean,omitempty"`
	ValueCoding          *Coding          `json:"valueCoding,omitempty"`
	ValueCodeableConcept *CodeableConcept `json:"valueCodeableConcept,omitempty"`
	Part                 []Parameter      `json:"part,omitempty"`
}

// Parameters is a FHIR Parameters resource.
type Parameters struct {
	ResourceType string      `json:"resourceType"`
	Parameter    []Parameter `json:"parameter"`
}

// NewParameters creates a Parameters resource from a parameter list. A nil
// list is normalized to an empty slice so the JSON always carries "parameter".
func NewParameters(params []Parameter) *Parameters {
	if params == nil {
		params = []Parameter{}
	}
	return &Parameters{ResourceType: "Parameters", Parameter: params}
}

// FormatReference renders a relative FHIR reference like "Condition/abc".
func FormatReference(resourceType, id string) string {
	return resourceType + "/" + id
}
