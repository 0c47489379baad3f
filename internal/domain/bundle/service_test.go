package bundle

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/termbridge/termbridge/internal/domain/audit"
	"github.com/termbridge/termbridge/internal/domain/concept"
	"github.com/termbridge/termbridge/internal/domain/mapping"
)

type auditSink struct {
	records []*audit.Record
}

func (a *auditSink) Append(_ context.Context, rec *audit.Record) error {
	rec.Timestamp = time.Now().UTC()
	a.records = append(a.records, rec)
	return nil
}

func (a *auditSink) Query(_ context.Context, _ audit.Filter) ([]*audit.Record, error) {
	return a.records, nil
}

func (a *auditSink) CountByAction(_ context.Context) (map[string]int, error) { return nil, nil }
func (a *auditSink) CountActors(_ context.Context) (int, error)              { return 0, nil }

type fakeTranslator struct {
	candidates map[string][]*mapping.TranslationCandidate
	err        error
}

func (t *fakeTranslator) Translate(_ context.Context, system, code string) ([]*mapping.TranslationCandidate, error) {
	if t.err != nil {
		return nil, t.err
	}
	return t.candidates[system+"|"+code], nil
}

func jwaraTranslator() *fakeTranslator {
	return &fakeTranslator{candidates: map[string][]*mapping.TranslationCandidate{
		"namaste|NAM-AY-0001": {
			{TargetSystem: "icd11", TargetCode: "AB11", TargetDisplay: "Fever, unspecified",
				Equivalence: mapping.EquivalenceRelatedTo, Confidence: 0.8},
			{TargetSystem: "icd11", TargetCode: "ZZ99", Equivalence: mapping.EquivalenceRelatedTo, Confidence: 0.3},
		},
	}}
}

func conditionEntry(id string, codings ...map[string]interface{}) map[string]interface{} {
	list := make([]interface{}, 0, len(codings))
	for _, c := range codings {
		list = append(list, c)
	}
	return map[string]interface{}{
		"resource": map[string]interface{}{
			"resourceType": "Condition",
			"id":           id,
			"code":         map[string]interface{}{"coding": list},
		},
	}
}

func namasteJwaraCoding() map[string]interface{} {
	return map[string]interface{}{
		"system":  concept.NAMASTEURI,
		"code":    "NAM-AY-0001",
		"display": "Jwara",
	}
}

func bundleOf(entries ...map[string]interface{}) map[string]interface{} {
	list := make([]interface{}, 0, len(entries))
	for _, e := range entries {
		list = append(list, e)
	}
	return map[string]interface{}{
		"resourceType": "Bundle",
		"id":           "b-1",
		"type":         "transaction",
		"entry":        list,
	}
}

func TestProcessAnnotatesCondition(t *testing.T) {
	sink := &auditSink{}
	svc := NewService(jwaraTranslator(), audit.NewService(sink))

	entry := conditionEntry("c-1", namasteJwaraCoding())
	result, err := svc.Process(context.Background(), bundleOf(entry), "dr-demo")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if result.MappingsAdded != 1 {
		t.Errorf("mappings_added = %d, want 1", result.MappingsAdded)
	}
	if len(result.Created) != 2 || result.Created[0] != "Condition/c-1" {
		t.Errorf("created = %v", result.Created)
	}
	if !strings.HasPrefix(result.Created[1], "Provenance/") {
		t.Errorf("last created = %q, want provenance reference", result.Created[1])
	}

	resource := entry["resource"].(map[string]interface{})
	codings := resource["code"].(map[string]interface{})["coding"].([]interface{})
	if len(codings) != 2 {
		t.Fatalf("coding list length = %d, want original + 1", len(codings))
	}
	// Original coding untouched and first.
	first := codings[0].(map[string]interface{})
	if first["code"] != "NAM-AY-0001" {
		t.Errorf("first coding = %v, original must be preserved", first)
	}
	appended := codings[1].(map[string]interface{})
	if appended["code"] != "AB11" || appended["system"] != concept.ICD11URI || appended["display"] != "Fever, unspecified" {
		t.Errorf("appended coding = %v", appended)
	}

	meta := resource["meta"].(map[string]interface{})
	if exts := meta["extension"].([]interface{}); len(exts) != 1 {
		t.Errorf("meta extensions = %v, want one processing marker", exts)
	}

	// One per-entry create audit plus one upload summary.
	if len(sink.records) != 2 {
		t.Fatalf("audit records = %d, want 2", len(sink.records))
	}
	if sink.records[0].Action != audit.ActionCreate || sink.records[0].ResourceType != "Condition" {
		t.Errorf("entry audit = %+v", sink.records[0])
	}
	summary := sink.records[1]
	if summary.Action != audit.ActionUpload || summary.ResourceID != "b-1" {
		t.Errorf("summary audit = %+v", summary)
	}
	if summary.Detail["mappings_added"] != 1 {
		t.Errorf("summary detail = %v", summary.Detail)
	}
	if result.AuditID != summary.ID.String() {
		t.Errorf("audit_id = %q, want summary record id", result.AuditID)
	}
}

func TestProcessConditionWithoutMatch(t *testing.T) {
	sink := &auditSink{}
	svc := NewService(jwaraTranslator(), audit.NewService(sink))

	// Coding from another system: no translation attempted.
	entry := conditionEntry("c-2", map[string]interface{}{
		"system": "http://snomed.info/sct", "code": "386661006",
	})
	result, err := svc.Process(context.Background(), bundleOf(entry), "dr-demo")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.MappingsAdded != 0 {
		t.Errorf("mappings_added = %d, want 0", result.MappingsAdded)
	}
	if len(result.Created) != 2 || result.Created[0] != "Condition/c-2" {
		t.Errorf("created = %v, condition must still be recorded", result.Created)
	}
}

func TestProcessEmptyBundle(t *testing.T) {
	sink := &auditSink{}
	svc := NewService(jwaraTranslator(), audit.NewService(sink))

	result, err := svc.Process(context.Background(), bundleOf(), "dr-demo")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(result.Created) != 1 || !strings.HasPrefix(result.Created[0], "Provenance/") {
		t.Errorf("created = %v, want only the provenance reference", result.Created)
	}
	if len(sink.records) != 1 || sink.records[0].Action != audit.ActionUpload {
		t.Errorf("audit records = %+v, want exactly one summary", sink.records)
	}
	if result.AuditID == "" {
		t.Error("audit_id missing")
	}
}

func TestProcessRejectsNonBundle(t *testing.T) {
	sink := &auditSink{}
	svc := NewService(jwaraTranslator(), audit.NewService(sink))

	_, err := svc.Process(context.Background(), map[string]interface{}{"resourceType": "Patient"}, "dr-demo")
	if !errors.Is(err, ErrNotBundle) {
		t.Fatalf("err = %v, want ErrNotBundle", err)
	}
	if len(sink.records) != 0 {
		t.Errorf("audit records = %+v, want none before envelope validation", sink.records)
	}
}

func TestProcessUnrecognizedKindAuditedNotCreated(t *testing.T) {
	sink := &auditSink{}
	svc := NewService(jwaraTranslator(), audit.NewService(sink))

	entry := map[string]interface{}{
		"resource": map[string]interface{}{"resourceType": "Patient", "id": "p-1"},
	}
	obs := map[string]interface{}{
		"resource": map[string]interface{}{"resourceType": "Observation", "id": "o-1"},
	}
	result, err := svc.Process(context.Background(), bundleOf(entry, obs), "dr-demo")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(result.Created) != 2 || result.Created[0] != "Observation/o-1" {
		t.Errorf("created = %v, Patient must not be listed", result.Created)
	}
	// Every entry leaves a create audit, listed or not, plus the summary.
	if len(sink.records) != 3 {
		t.Fatalf("audit records = %d, want 3", len(sink.records))
	}
	patientAudits := 0
	for _, rec := range sink.records {
		if rec.Action == audit.ActionCreate && rec.ResourceType == "Patient" {
			patientAudits++
		}
	}
	if patientAudits != 1 {
		t.Errorf("per-entry create audits for Patient = %d, want 1", patientAudits)
	}
}

func TestProcessConsentReferenceInAudits(t *testing.T) {
	sink := &auditSink{}
	svc := NewService(jwaraTranslator(), audit.NewService(sink))

	consent := map[string]interface{}{
		"resource": map[string]interface{}{"resourceType": "Consent", "id": "consent-1"},
	}
	entry := conditionEntry("c-1", namasteJwaraCoding())
	result, err := svc.Process(context.Background(), bundleOf(consent, entry), "dr-demo")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	// The consent entry is audited but never listed as created.
	for _, ref := range result.Created {
		if strings.HasPrefix(ref, "Consent/") {
			t.Errorf("created = %v, consent must not be listed", result.Created)
		}
	}
	creates := 0
	for _, rec := range sink.records {
		if rec.Action != audit.ActionCreate {
			continue
		}
		creates++
		if rec.Detail["consent"] != "Consent/consent-1" {
			t.Errorf("entry audit consent = %v", rec.Detail["consent"])
		}
	}
	if creates != 2 {
		t.Errorf("create audits = %d, want one per entry", creates)
	}
}

func TestProcessTranslateFailureIsolatedPerEntry(t *testing.T) {
	sink := &auditSink{}
	svc := NewService(&fakeTranslator{err: errors.New("store down")}, audit.NewService(sink))

	bad := conditionEntry("c-1", namasteJwaraCoding())
	good := map[string]interface{}{
		"resource": map[string]interface{}{"resourceType": "Observation", "id": "o-1"},
	}
	result, err := svc.Process(context.Background(), bundleOf(bad, good), "dr-demo")
	if err != nil {
		t.Fatalf("Process must not abort the batch: %v", err)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("errors = %v, want one entry failure", result.Errors)
	}
	// The failed entry is not created; the rest of the batch proceeds.
	if len(result.Created) != 2 || result.Created[0] != "Observation/o-1" {
		t.Errorf("created = %v", result.Created)
	}
}

func TestProcessAuditFailureCollected(t *testing.T) {
	// First append (the per-entry audit) fails, later ones succeed.
	svc := NewService(jwaraTranslator(), audit.NewService(&failOnceSink{inner: &auditSink{}}))

	entry := conditionEntry("c-1", namasteJwaraCoding())
	result, err := svc.Process(context.Background(), bundleOf(entry), "dr-demo")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "audit write") {
		t.Errorf("errors = %v, want the collected audit-write failure", result.Errors)
	}
	// Resource still created and the summary still written.
	if len(result.Created) != 2 {
		t.Errorf("created = %v", result.Created)
	}
	if result.AuditID == "" {
		t.Error("summary audit_id missing")
	}
}

type failOnceSink struct {
	inner  *auditSink
	failed bool
}

func (f *failOnceSink) Append(ctx context.Context, rec *audit.Record) error {
	if !f.failed {
		f.failed = true
		return errors.New("audit store down")
	}
	return f.inner.Append(ctx, rec)
}

func (f *failOnceSink) Query(ctx context.Context, fl audit.Filter) ([]*audit.Record, error) {
	return f.inner.Query(ctx, fl)
}

func (f *failOnceSink) CountByAction(ctx context.Context) (map[string]int, error) {
	return f.inner.CountByAction(ctx)
}

func (f *failOnceSink) CountActors(ctx context.Context) (int, error) {
	return f.inner.CountActors(ctx)
}
