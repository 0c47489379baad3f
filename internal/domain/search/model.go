package search

import (
	"context"

	"github.com/termbridge/termbridge/internal/domain/concept"
	"github.com/termbridge/termbridge/internal/domain/mapping"
	"github.com/termbridge/termbridge/internal/platform/icd11"
)

// Result pairs a concept with its attached mappings and a computed relevance
// score. Ephemeral, never persisted.
type Result struct {
	Concept        *concept.Concept   `json:"concept"`
	Mappings       []*mapping.Mapping `json:"mappings"`
	RelevanceScore float64            `json:"relevance_score"`
}

// Suggestion is one autocomplete entry.
type Suggestion struct {
	System  string  `json:"system"`
	Code    string  `json:"code"`
	Display string  `json:"display"`
	Score   float64 `json:"score"`
}

// SuggestEntry is one search suggestion: either a stored concept or a common
// keyword.
type SuggestEntry struct {
	Text   string `json:"text"`
	Value  string `json:"value"`
	System string `json:"system"`
	Type   string `json:"type"`
}

// ExternalProvider is the black-box second-terminology search. Implemented
// by the ICD-11 API client.
type ExternalProvider interface {
	Search(ctx context.Context, query string, limit int) ([]*icd11.Entity, error)
}
