// Package search is the relevance-ranked terminology lookup. Local concepts
// and external ICD-11 results are merged into one ranked list; external
// results carry a fixed default score since the API exposes no confidence
// data.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/termbridge/termbridge/internal/domain/concept"
	"github.com/termbridge/termbridge/internal/domain/mapping"
	"github.com/termbridge/termbridge/internal/platform/icd11"
)

// externalScore is assigned to every external-provider result.
const externalScore = 0.5

// metadataScoreFields are the NAMASTE metadata fields that contribute to the
// relevance score when they contain the query.
var metadataScoreFields = []string{"sanskrit_name", "english_name", "category", "subcategory"}

// Service merges and ranks local and external terminology lookups.
type Service struct {
	concepts concept.Repository
	mappings mapping.Repository
	provider ExternalProvider
}

// NewService creates a search service. provider may be nil; search is then
// local-only.
func NewService(concepts concept.Repository, mappings mapping.Repository, provider ExternalProvider) *Service {
	return &Service{concepts: concepts, mappings: mappings, provider: provider}
}

// Search returns up to limit results ranked by descending relevance. system
// narrows the sources queried: "namaste" skips the external provider, "icd11"
// skips the local store, empty queries both. A provider failure degrades to
// local-only results, never to an error.
func (s *Service) Search(ctx context.Context, query, system string, limit int) ([]*Result, error) {
	var results []*Result

	if system == "" || system == concept.SystemNAMASTE {
		local, err := s.searchLocal(ctx, query, system, limit)
		if err != nil {
			return nil, err
		}
		results = append(results, local...)
	}

	if (system == "" || system == concept.SystemICD11) && s.provider != nil {
		entities, err := s.provider.Search(ctx, query, limit)
		if err != nil {
			log.Warn().Err(err).Str("query", query).Msg("external search failed, degrading to local results")
		}
		for _, e := range entities {
			results = append(results, &Result{
				Concept:        entityConcept(e),
				Mappings:       []*mapping.Mapping{},
				RelevanceScore: externalScore,
			})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RelevanceScore > results[j].RelevanceScore
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *Service) searchLocal(ctx context.Context, query, system string, limit int) ([]*Result, error) {
	concepts, err := s.concepts.Search(ctx, system, query, limit)
	if err != nil {
		return nil, err
	}

	results := make([]*Result, 0, len(concepts))
	for _, c := range concepts {
		attached, err := s.mappings.FindByPair(ctx, c.System, c.Code)
		if err != nil {
			return nil, err
		}
		if attached == nil {
			attached = []*mapping.Mapping{}
		}
		results = append(results, &Result{
			Concept:        c,
			Mappings:       attached,
			RelevanceScore: Score(c, query),
		})
	}
	return results, nil
}

// Score computes the relevance of a concept for a query. Code and display
// each contribute their single best match tier; definition and NAMASTE
// metadata fields stack on top. The total is clamped to 1.0.
func Score(c *concept.Concept, query string) float64 {
	q := strings.ToLower(query)
	score := 0.0

	code := strings.ToLower(c.Code)
	switch {
	case code == q:
		score += 1.0
	case strings.HasPrefix(code, q):
		score += 0.9
	case strings.Contains(code, q):
		score += 0.7
	}

	display := strings.ToLower(c.Display)
	switch {
	case display == q:
		score += 0.8
	case strings.HasPrefix(display, q):
		score += 0.6
	case strings.Contains(display, q):
		score += 0.4
	}

	if c.Definition != "" && strings.Contains(strings.ToLower(c.Definition), q) {
		score += 0.3
	}

	if c.System == concept.SystemNAMASTE {
		for _, field := range metadataScoreFields {
			v, ok := c.Metadata[field]
			if !ok || v == nil {
				continue
			}
			if strings.Contains(strings.ToLower(fmt.Sprint(v)), q) {
				score += 0.2
			}
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// Autocomplete returns compact ranked suggestions from the local store.
func (s *Service) Autocomplete(ctx context.Context, query string, limit int) ([]*Suggestion, error) {
	concepts, err := s.concepts.Search(ctx, "", query, limit)
	if err != nil {
		return nil, err
	}

	suggestions := make([]*Suggestion, 0, len(concepts))
	for _, c := range concepts {
		suggestions = append(suggestions, &Suggestion{
			System:  c.System,
			Code:    c.Code,
			Display: c.Display,
			Score:   Score(c, query),
		})
	}
	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Score > suggestions[j].Score
	})
	if len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	return suggestions, nil
}

// commonTerms seeds the suggestion list shown before a user has typed enough
// for a real search.
var commonTerms = []string{
	"fever", "headache", "cough", "pain", "digestion",
	"respiratory", "skin", "mental", "sleep", "energy",
}

// Suggest returns matching NAMASTE concepts (up to 5) followed by matching
// common keywords, the combined list capped at 10.
func (s *Service) Suggest(ctx context.Context, partial string) ([]*SuggestEntry, error) {
	p := strings.ToLower(strings.TrimSpace(partial))
	out := []*SuggestEntry{}

	concepts, err := s.concepts.Search(ctx, concept.SystemNAMASTE, p, 5)
	if err != nil {
		return nil, err
	}
	for _, c := range concepts {
		out = append(out, &SuggestEntry{
			Text:   c.Display,
			Value:  c.Code,
			System: c.System,
			Type:   "concept",
		})
	}

	for _, term := range commonTerms {
		if strings.Contains(term, p) {
			out = append(out, &SuggestEntry{
				Text:   term,
				Value:  term,
				System: "common",
				Type:   "keyword",
			})
		}
	}

	if len(out) > 10 {
		out = out[:10]
	}
	return out, nil
}

func entityConcept(e *icd11.Entity) *concept.Concept {
	return &concept.Concept{
		System:     e.System,
		Code:       e.Code,
		Display:    e.Display,
		Definition: e.Definition,
		Language:   e.Language,
		Source:     e.Source,
		Version:    e.Version,
		Metadata:   concept.Metadata(e.Metadata),
	}
}
