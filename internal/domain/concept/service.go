package concept

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

// Service exposes concept lookups, FHIR CodeSystem rendering and CSV
// ingestion over a Repository.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// GetByCode returns a concept or (nil, nil) when the code is unknown.
func (s *Service) GetByCode(ctx context.Context, system, code string) (*Concept, error) {
	return s.repo.FindBySystemCode(ctx, system, code)
}

// Systems lists the stored terminology systems with concept counts.
func (s *Service) Systems(ctx context.Context) ([]*SystemSummary, error) {
	return s.repo.ListSystems(ctx)
}

// CodeSystem renders the NAMASTE terminology as a FHIR CodeSystem fragment
// with offset paging.
func (s *Service) CodeSystem(ctx context.Context, limit, offset int) (map[string]interface{}, error) {
	total, err := s.repo.CountBySystem(ctx, SystemNAMASTE)
	if err != nil {
		return nil, err
	}
	concepts, err := s.repo.ListBySystem(ctx, SystemNAMASTE, limit, offset)
	if err != nil {
		return nil, err
	}

	entries := make([]map[string]interface{}, 0, len(concepts))
	for _, c := range concepts {
		entries = append(entries, ConceptEntry(c))
	}

	return map[string]interface{}{
		"resourceType": "CodeSystem",
		"id":           SystemNAMASTE,
		"url":          NAMASTEURI,
		"name":         "NAMASTE",
		"title":        "National AYUSH Morbidity and Standardized Terminologies Electronic",
		"status":       "active",
		"content":      "fragment",
		"count":        total,
		"concept":      entries,
	}, nil
}

// ConceptEntry renders one concept as a CodeSystem concept element with
// alternate-language designations drawn from metadata.
func ConceptEntry(c *Concept) map[string]interface{} {
	entry := map[string]interface{}{
		"code":    c.Code,
		"display": c.Display,
	}
	if c.Definition != "" {
		entry["definition"] = c.Definition
	}

	var designations []map[string]interface{}
	if v, ok := c.Metadata["sanskrit_name"].(string); ok && v != "" {
		designations = append(designations, map[string]interface{}{"language": "sa", "value": v})
	}
	if v, ok := c.Metadata["english_name"].(string); ok && v != "" {
		designations = append(designations, map[string]interface{}{"language": "en", "value": v})
	}
	if len(designations) > 0 {
		entry["designation"] = designations
	}
	return entry
}

// metadataColumns are the optional CSV columns folded into Concept.Metadata.
var metadataColumns = []string{
	"sanskrit_name", "english_name", "category", "subcategory",
	"dosha_relation", "body_part", "severity", "treatment_approach",
}

// LoadCSV ingests NAMASTE concepts from a header-indexed CSV file. Rows whose
// (system, code) already exists are skipped, so re-running the ingest is safe.
func (s *Service) LoadCSV(ctx context.Context, path string) (loaded, skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	return s.loadCSV(ctx, f)
}

func (s *Service) loadCSV(ctx context.Context, r io.Reader) (loaded, skipped int, err error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return 0, 0, fmt.Errorf("read csv header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(strings.ToLower(name))] = i
	}
	if _, ok := col["code"]; !ok {
		return 0, 0, fmt.Errorf("csv missing required column %q", "code")
	}
	if _, ok := col["display"]; !ok {
		return 0, 0, fmt.Errorf("csv missing required column %q", "display")
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return loaded, skipped, fmt.Errorf("read csv row: %w", err)
		}

		code := field(row, "code")
		display := field(row, "display")
		if code == "" || display == "" {
			skipped++
			continue
		}

		existing, err := s.repo.FindBySystemCode(ctx, SystemNAMASTE, code)
		if err != nil {
			return loaded, skipped, err
		}
		if existing != nil {
			skipped++
			continue
		}

		metadata := Metadata{}
		for _, name := range metadataColumns {
			if v := field(row, name); v != "" {
				metadata[name] = v
			}
		}
		if len(metadata) == 0 {
			metadata = nil
		}

		c := &Concept{
			System:     SystemNAMASTE,
			Code:       code,
			Display:    display,
			Definition: field(row, "definition"),
			Language:   "en",
			Source:     "NAMASTE CSV",
			Metadata:   metadata,
		}
		if err := s.repo.Insert(ctx, c); err != nil {
			return loaded, skipped, err
		}
		loaded++
	}

	log.Info().Int("loaded", loaded).Int("skipped", skipped).Msg("namaste csv ingest complete")
	return loaded, skipped, nil
}
