// Package mapping resolves concept codes across terminology systems. A
// mapping is a directed source→target assertion; translation walks all
// mappings with a given source, enriches each with the resolved target
// display and ranks by confidence.
package mapping

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/termbridge/termbridge/internal/domain/concept"
	"github.com/termbridge/termbridge/internal/platform/db"
)

// Service resolves translations and curates mappings.
type Service struct {
	repo     Repository
	concepts concept.Repository
	pool     *pgxpool.Pool
}

// NewService creates a mapping service. pool may be nil in tests; writes then
// run without a transaction.
func NewService(repo Repository, concepts concept.Repository, pool *pgxpool.Pool) *Service {
	return &Service{repo: repo, concepts: concepts, pool: pool}
}

func (s *Service) withTx(ctx context.Context, fn func(context.Context) error) error {
	if s.pool == nil {
		return fn(ctx)
	}
	return db.WithTx(ctx, s.pool, fn)
}

// Translate returns all candidates for a source (system, code), sorted by
// descending confidence. Unknown pairs yield an empty slice, not an error.
func (s *Service) Translate(ctx context.Context, system, code string) ([]*TranslationCandidate, error) {
	mappings, err := s.repo.FindBySource(ctx, system, code)
	if err != nil {
		return nil, err
	}

	candidates := make([]*TranslationCandidate, 0, len(mappings))
	for _, m := range mappings {
		cand := &TranslationCandidate{
			TargetSystem: m.TargetSystem,
			TargetCode:   m.TargetCode,
			Equivalence:  m.Equivalence,
			Confidence:   m.Confidence,
			Method:       m.Method,
			Evidence:     m.Evidence,
		}
		target, err := s.concepts.FindBySystemCode(ctx, m.TargetSystem, m.TargetCode)
		if err != nil {
			return nil, err
		}
		if target != nil {
			cand.TargetDisplay = target.Display
		}
		candidates = append(candidates, cand)
	}

	// Stable: ties keep the store's natural return order.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})
	return candidates, nil
}

// AddMapping inserts a mapping unless the exact 4-tuple already exists.
// Returns false (not an error) on a duplicate, so seeding is idempotent.
func (s *Service) AddMapping(ctx context.Context, req *AddMappingRequest) (bool, error) {
	if req.Equivalence == "" {
		req.Equivalence = EquivalenceRelatedTo
	}
	if err := req.Validate(); err != nil {
		return false, err
	}

	added := false
	err := s.withTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.FindByTuple(ctx, req.SourceSystem, req.SourceCode, req.TargetSystem, req.TargetCode)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}
		m := &Mapping{
			SourceSystem: req.SourceSystem,
			SourceCode:   req.SourceCode,
			TargetSystem: req.TargetSystem,
			TargetCode:   req.TargetCode,
			Equivalence:  req.Equivalence,
			Confidence:   req.Confidence,
			Method:       req.Method,
			Evidence:     req.Evidence,
			Curator:      req.Curator,
		}
		if err := s.repo.Insert(ctx, m); err != nil {
			return err
		}
		added = true
		return nil
	})
	return added, err
}

// SystemURI maps a short system name to its canonical URI. Unknown systems
// pass through unchanged.
func SystemURI(system string) string {
	switch system {
	case concept.SystemNAMASTE:
		return concept.NAMASTEURI
	case concept.SystemICD11:
		return concept.ICD11URI
	default:
		return system
	}
}

// ConceptMapBundle renders stored mappings as a FHIR searchset Bundle of
// ConceptMap resources.
func (s *Service) ConceptMapBundle(ctx context.Context, limit, offset int) (map[string]interface{}, error) {
	mappings, total, err := s.repo.List(ctx, ListFilter{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}

	entries := make([]map[string]interface{}, 0, len(mappings))
	for _, m := range mappings {
		entries = append(entries, map[string]interface{}{
			"resource": conceptMapResource(m),
		})
	}
	return map[string]interface{}{
		"resourceType": "Bundle",
		"type":         "searchset",
		"total":        total,
		"entry":        entries,
	}, nil
}

func conceptMapResource(m *Mapping) map[string]interface{} {
	target := map[string]interface{}{
		"code":        m.TargetCode,
		"equivalence": m.Equivalence,
	}
	return map[string]interface{}{
		"resourceType": "ConceptMap",
		"id":           fmt.Sprintf("mapping-%d", m.ID),
		"status":       "active",
		"group": []map[string]interface{}{{
			"source": SystemURI(m.SourceSystem),
			"target": SystemURI(m.TargetSystem),
			"element": []map[string]interface{}{{
				"code":   m.SourceCode,
				"target": []map[string]interface{}{target},
			}},
		}},
	}
}

// List returns stored mappings matching the filter with the total row count.
func (s *Service) List(ctx context.Context, f ListFilter) ([]*Mapping, int, error) {
	mappings, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	if mappings == nil {
		mappings = []*Mapping{}
	}
	return mappings, total, nil
}

// Statistics summarizes the mapping store.
func (s *Service) Statistics(ctx context.Context) (*Stats, error) {
	return s.repo.Statistics(ctx)
}

// defaultMappings are the curated starter set between the NAMASTE and ICD-11
// seed concepts.
var defaultMappings = []AddMappingRequest{
	{SourceSystem: concept.SystemNAMASTE, SourceCode: "NAM-AY-0001", TargetSystem: concept.SystemICD11, TargetCode: "AB11", Equivalence: EquivalenceRelatedTo, Confidence: 0.8, Method: "expert curation", Curator: "seed"},
	{SourceSystem: concept.SystemNAMASTE, SourceCode: "NAM-AY-0002", TargetSystem: concept.SystemICD11, TargetCode: "AB12", Equivalence: EquivalenceRelatedTo, Confidence: 0.75, Method: "expert curation", Curator: "seed"},
	{SourceSystem: concept.SystemNAMASTE, SourceCode: "NAM-AY-0003", TargetSystem: concept.SystemICD11, TargetCode: "AB13", Equivalence: EquivalenceRelatedTo, Confidence: 0.8, Method: "expert curation", Curator: "seed"},
	{SourceSystem: concept.SystemNAMASTE, SourceCode: "NAM-AY-0004", TargetSystem: concept.SystemICD11, TargetCode: "AB14", Equivalence: EquivalenceRelatedTo, Confidence: 0.7, Method: "expert curation", Curator: "seed"},
	{SourceSystem: concept.SystemNAMASTE, SourceCode: "NAM-AY-0005", TargetSystem: concept.SystemICD11, TargetCode: "AB15", Equivalence: EquivalenceRelatedTo, Confidence: 0.7, Method: "expert curation", Curator: "seed"},
}

// SeedDefaults loads the starter mappings. Safe to run repeatedly.
func (s *Service) SeedDefaults(ctx context.Context) (added int, err error) {
	for i := range defaultMappings {
		req := defaultMappings[i]
		ok, err := s.AddMapping(ctx, &req)
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	return added, nil
}
