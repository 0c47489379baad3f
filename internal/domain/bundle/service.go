// Package bundle ingests batches of clinical resources, auto-annotating
// Condition entries with translated codes and leaving an audit trail for
// every entry plus one summary record and one provenance reference per batch.
package bundle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/termbridge/termbridge/internal/domain/audit"
	"github.com/termbridge/termbridge/internal/domain/concept"
	"github.com/termbridge/termbridge/internal/domain/mapping"
)

// processedExtensionURL marks resources that passed through annotation.
const processedExtensionURL = "http://termbridge.example.com/fhir/StructureDefinition/bundle-processed"

// recordedKinds appear in the result's created list without transformation.
// Consent entries are audited but only surface as the consent reference, and
// anything not listed here (and not a Condition) is audited without landing
// in created.
var recordedKinds = map[string]bool{
	"Observation":      true,
	"DiagnosticReport": true,
	"Procedure":        true,
}

// Translator resolves a source (system, code) to ranked candidates.
type Translator interface {
	Translate(ctx context.Context, system, code string) ([]*mapping.TranslationCandidate, error)
}

// Service processes uploaded bundles.
type Service struct {
	translator Translator
	audits     *audit.Service
}

func NewService(translator Translator, audits *audit.Service) *Service {
	return &Service{translator: translator, audits: audits}
}

// Process validates the envelope, annotates entries and writes the audit
// trail. A structural failure returns ErrNotBundle before anything is
// written; any other failure gets one best-effort failure audit record
// before being surfaced.
func (s *Service) Process(ctx context.Context, raw map[string]interface{}, actor string) (*UploadResult, error) {
	if rt, _ := raw["resourceType"].(string); rt != "Bundle" {
		return nil, ErrNotBundle
	}

	bundleID, _ := raw["id"].(string)
	if bundleID == "" {
		bundleID = uuid.New().String()
	}

	result, err := s.process(ctx, raw, bundleID, actor)
	if err != nil {
		s.audits.TryRecord(ctx, actor, audit.ActionUpload, audit.ResourceBundle, bundleID,
			audit.Detail{"status": "failed", "error": err.Error()})
		return nil, err
	}
	return result, nil
}

func (s *Service) process(ctx context.Context, raw map[string]interface{}, bundleID, actor string) (*UploadResult, error) {
	start := time.Now()
	result := &UploadResult{BundleID: bundleID, Created: []string{}}

	entries, _ := raw["entry"].([]interface{})
	consentRef := findConsent(entries)

	for i, e := range entries {
		entry, ok := e.(map[string]interface{})
		if !ok {
			result.Errors = append(result.Errors, fmt.Sprintf("entry %d: not an object", i))
			continue
		}
		resource, ok := entry["resource"].(map[string]interface{})
		if !ok {
			result.Errors = append(result.Errors, fmt.Sprintf("entry %d: missing resource", i))
			continue
		}
		kind, _ := resource["resourceType"].(string)
		resourceID, _ := resource["id"].(string)
		if resourceID == "" {
			resourceID = uuid.New().String()
			resource["id"] = resourceID
		}

		switch {
		case kind == "Condition":
			if err := s.annotateCondition(ctx, resource, result); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("entry %d (%s): %v", i, kind, err))
				continue
			}
			result.Created = append(result.Created, kind+"/"+resourceID)
		case recordedKinds[kind]:
			result.Created = append(result.Created, kind+"/"+resourceID)
		}

		// Every entry leaves a create record, listed or not.
		detail := audit.Detail{
			"bundle_id":      bundleID,
			"resource_type":  kind,
			"mappings_added": result.MappingsAdded,
		}
		if consentRef != "" {
			detail["consent"] = consentRef
		}
		if _, err := s.audits.Record(ctx, actor, audit.ActionCreate, kind, resourceID, detail); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("entry %d (%s): audit write: %v", i, kind, err))
		}
	}

	result.ProvenanceID = uuid.New().String()
	result.Created = append(result.Created, "Provenance/"+result.ProvenanceID)

	auditID, err := s.audits.Record(ctx, actor, audit.ActionUpload, audit.ResourceBundle, bundleID,
		audit.Detail{
			"resource_count": len(entries),
			"mappings_added": result.MappingsAdded,
			"elapsed_ms":     time.Since(start).Milliseconds(),
		})
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("summary audit write: %v", err))
	} else {
		result.AuditID = auditID.String()
	}

	log.Info().
		Str("bundle_id", bundleID).
		Int("resources", len(entries)).
		Int("mappings_added", result.MappingsAdded).
		Int("errors", len(result.Errors)).
		Msg("bundle processed")
	return result, nil
}

// findConsent returns a reference to the first Consent entry, used only as
// audit context.
func findConsent(entries []interface{}) string {
	for _, e := range entries {
		entry, ok := e.(map[string]interface{})
		if !ok {
			continue
		}
		resource, ok := entry["resource"].(map[string]interface{})
		if !ok {
			continue
		}
		if rt, _ := resource["resourceType"].(string); rt == "Consent" {
			if id, _ := resource["id"].(string); id != "" {
				return "Consent/" + id
			}
			return "Consent/unidentified"
		}
	}
	return ""
}

// annotateCondition appends the highest-confidence translation of the first
// NAMASTE coding as a new coding, and stamps the processing marker. Existing
// codings are never removed or reordered.
func (s *Service) annotateCondition(ctx context.Context, resource map[string]interface{}, result *UploadResult) error {
	defer stampProcessed(resource)

	code, codings := namasteCoding(resource)
	if code == "" {
		return nil
	}

	candidates, err := s.translator.Translate(ctx, concept.SystemNAMASTE, code)
	if err != nil {
		return fmt.Errorf("translate %s: %w", code, err)
	}
	if len(candidates) == 0 {
		return nil
	}

	best := candidates[0]
	userSelected := false
	codeBlock := resource["code"].(map[string]interface{})
	codeBlock["coding"] = append(codings, map[string]interface{}{
		"system":       mapping.SystemURI(best.TargetSystem),
		"code":         best.TargetCode,
		"display":      best.TargetDisplay,
		"userSelected": userSelected,
	})
	result.MappingsAdded++
	return nil
}

// namasteCoding returns the first NAMASTE code on the resource along with the
// full coding list.
func namasteCoding(resource map[string]interface{}) (string, []interface{}) {
	codeBlock, ok := resource["code"].(map[string]interface{})
	if !ok {
		return "", nil
	}
	codings, ok := codeBlock["coding"].([]interface{})
	if !ok {
		return "", nil
	}
	for _, c := range codings {
		coding, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		if sys, _ := coding["system"].(string); sys == concept.NAMASTEURI {
			if code, _ := coding["code"].(string); code != "" {
				return code, codings
			}
		}
	}
	return "", codings
}

// stampProcessed appends the processing marker to meta.extension.
func stampProcessed(resource map[string]interface{}) {
	meta, ok := resource["meta"].(map[string]interface{})
	if !ok {
		meta = map[string]interface{}{}
		resource["meta"] = meta
	}
	extensions, _ := meta["extension"].([]interface{})
	meta["extension"] = append(extensions, map[string]interface{}{
		"url":         processedExtensionURL,
		"valueString": time.Now().UTC().Format(time.RFC3339),
	})
}
