package concept

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

type mockRepo struct {
	concepts map[string]*Concept // keyed system|code
	order    []string
}

func newMockRepo() *mockRepo {
	return &mockRepo{concepts: map[string]*Concept{}}
}

func key(system, code string) string { return system + "|" + code }

func (m *mockRepo) FindBySystemCode(_ context.Context, system, code string) (*Concept, error) {
	return m.concepts[key(system, code)], nil
}

func (m *mockRepo) Search(_ context.Context, system, query string, limit int) ([]*Concept, error) {
	q := strings.ToLower(query)
	var results []*Concept
	for _, k := range m.order {
		c := m.concepts[k]
		if system != "" && c.System != system {
			continue
		}
		if strings.Contains(strings.ToLower(c.Code), q) ||
			strings.Contains(strings.ToLower(c.Display), q) ||
			strings.Contains(strings.ToLower(c.Definition), q) {
			results = append(results, c)
		}
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

func (m *mockRepo) ListBySystem(_ context.Context, system string, limit, offset int) ([]*Concept, error) {
	var all []*Concept
	for _, k := range m.order {
		if c := m.concepts[k]; c.System == system {
			all = append(all, c)
		}
	}
	if offset > len(all) {
		offset = len(all)
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *mockRepo) CountBySystem(_ context.Context, system string) (int, error) {
	n := 0
	for _, c := range m.concepts {
		if c.System == system {
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) ListSystems(_ context.Context) ([]*SystemSummary, error) {
	counts := map[string]int{}
	for _, c := range m.concepts {
		counts[c.System]++
	}
	var systems []*SystemSummary
	for sys, n := range counts {
		systems = append(systems, &SystemSummary{System: sys, Count: n})
	}
	return systems, nil
}

func (m *mockRepo) Insert(_ context.Context, c *Concept) error {
	k := key(c.System, c.Code)
	if _, exists := m.concepts[k]; exists {
		return fmt.Errorf("duplicate concept %s", k)
	}
	c.ID = int64(len(m.order) + 1)
	m.concepts[k] = c
	m.order = append(m.order, k)
	return nil
}

func seed(t *testing.T, m *mockRepo, concepts ...*Concept) {
	t.Helper()
	for _, c := range concepts {
		if err := m.Insert(context.Background(), c); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func TestGetByCodeUnknownIsNil(t *testing.T) {
	svc := NewService(newMockRepo())
	c, err := svc.GetByCode(context.Background(), SystemNAMASTE, "NAM-ZZ-9999")
	if err != nil {
		t.Fatalf("GetByCode: %v", err)
	}
	if c != nil {
		t.Fatalf("expected nil concept, got %+v", c)
	}
}

func TestCodeSystemRendering(t *testing.T) {
	repo := newMockRepo()
	seed(t, repo,
		&Concept{System: SystemNAMASTE, Code: "NAM-AY-0001", Display: "Jwara",
			Definition: "Fever in Ayurvedic terminology",
			Metadata:   Metadata{"sanskrit_name": "ज्वर", "english_name": "Fever"}},
		&Concept{System: SystemNAMASTE, Code: "NAM-AY-0002", Display: "Atisara"},
		&Concept{System: SystemICD11, Code: "AB11", Display: "Fever, unspecified"},
	)
	svc := NewService(repo)

	cs, err := svc.CodeSystem(context.Background(), 100, 0)
	if err != nil {
		t.Fatalf("CodeSystem: %v", err)
	}
	if cs["resourceType"] != "CodeSystem" || cs["url"] != NAMASTEURI {
		t.Errorf("resourceType/url = %v/%v", cs["resourceType"], cs["url"])
	}
	if cs["count"] != 2 {
		t.Errorf("count = %v, want 2 (icd11 rows excluded)", cs["count"])
	}

	entries := cs["concept"].([]map[string]interface{})
	if len(entries) != 2 {
		t.Fatalf("got %d concept entries, want 2", len(entries))
	}
	first := entries[0]
	if first["code"] != "NAM-AY-0001" || first["definition"] != "Fever in Ayurvedic terminology" {
		t.Errorf("first entry = %v", first)
	}
	designations := first["designation"].([]map[string]interface{})
	if len(designations) != 2 {
		t.Fatalf("got %d designations, want 2", len(designations))
	}
	if designations[0]["language"] != "sa" || designations[0]["value"] != "ज्वर" {
		t.Errorf("sanskrit designation = %v", designations[0])
	}
	if _, ok := entries[1]["designation"]; ok {
		t.Error("entry without metadata should have no designations")
	}
}

func TestCodeSystemPaging(t *testing.T) {
	repo := newMockRepo()
	for i := 1; i <= 5; i++ {
		seed(t, repo, &Concept{System: SystemNAMASTE, Code: fmt.Sprintf("NAM-AY-%04d", i), Display: fmt.Sprintf("Term %d", i)})
	}
	svc := NewService(repo)

	cs, err := svc.CodeSystem(context.Background(), 2, 2)
	if err != nil {
		t.Fatalf("CodeSystem: %v", err)
	}
	if cs["count"] != 5 {
		t.Errorf("count = %v, want total 5", cs["count"])
	}
	entries := cs["concept"].([]map[string]interface{})
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want page of 2", len(entries))
	}
	if entries[0]["code"] != "NAM-AY-0003" {
		t.Errorf("page start = %v, want NAM-AY-0003", entries[0]["code"])
	}
}

const sampleCSV = `code,display,definition,sanskrit_name,english_name,category,subcategory
NAM-AY-0001,Jwara,Fever in Ayurvedic terminology,ज्वर,Fever,Vyadhi,Jvara Roga
NAM-AY-0002,Atisara,Diarrheal disorder,,,Vyadhi,
,Missing code,should be skipped,,,,
NAM-AY-0003,,,,,,
`

func TestLoadCSV(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)

	loaded, skipped, err := svc.loadCSV(context.Background(), strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("loadCSV: %v", err)
	}
	if loaded != 2 || skipped != 2 {
		t.Fatalf("loaded/skipped = %d/%d, want 2/2", loaded, skipped)
	}

	c := repo.concepts[key(SystemNAMASTE, "NAM-AY-0001")]
	if c == nil {
		t.Fatal("NAM-AY-0001 not loaded")
	}
	if c.Metadata["sanskrit_name"] != "ज्वर" || c.Metadata["category"] != "Vyadhi" {
		t.Errorf("metadata = %v", c.Metadata)
	}
	if c.Definition != "Fever in Ayurvedic terminology" {
		t.Errorf("definition = %q", c.Definition)
	}

	c2 := repo.concepts[key(SystemNAMASTE, "NAM-AY-0002")]
	if c2 == nil {
		t.Fatal("NAM-AY-0002 not loaded")
	}
	if len(c2.Metadata) != 1 || c2.Metadata["category"] != "Vyadhi" {
		t.Errorf("NAM-AY-0002 metadata = %v, want only category", c2.Metadata)
	}
}

func TestLoadCSVIdempotent(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)

	if _, _, err := svc.loadCSV(context.Background(), strings.NewReader(sampleCSV)); err != nil {
		t.Fatalf("first load: %v", err)
	}
	loaded, skipped, err := svc.loadCSV(context.Background(), strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if loaded != 0 {
		t.Errorf("second load loaded %d, want 0", loaded)
	}
	if skipped != 4 {
		t.Errorf("second load skipped %d, want 4", skipped)
	}
}

func TestLoadCSVMissingRequiredColumn(t *testing.T) {
	svc := NewService(newMockRepo())
	_, _, err := svc.loadCSV(context.Background(), strings.NewReader("name,value\na,b\n"))
	if err == nil {
		t.Fatal("expected error for csv without code/display columns")
	}
}
