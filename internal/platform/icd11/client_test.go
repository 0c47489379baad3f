package icd11

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newSearchServer(t *testing.T, entities []map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/search":
			json.NewEncoder(w).Encode(map[string]interface{}{"destinationEntities": entities})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestSearchParsesEntities(t *testing.T) {
	srv := newSearchServer(t, []map[string]interface{}{
		{
			"theCode":    "AB11",
			"title":      map[string]interface{}{"@value": "Fever, unspecified"},
			"definition": map[string]interface{}{"@value": "Elevated body temperature"},
			"id":         "http://id.who.int/icd/entity/12345",
			"isLeaf":     true,
			"browserUrl": "",
		},
		{"theCode": "", "title": "No code"},
	})
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	entities, err := c.Search(context.Background(), "fever", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(entities) != 1 {
		t.Fatalf("expected 1 entity, got %d", len(entities))
	}

	e := entities[0]
	if e.Code != "AB11" {
		t.Errorf("code = %q, want AB11", e.Code)
	}
	if e.Display != "Fever, unspecified" {
		t.Errorf("display = %q", e.Display)
	}
	if e.Definition != "Elevated body temperature" {
		t.Errorf("definition = %q", e.Definition)
	}
	if e.System != "icd11" || e.Source != "WHO ICD-11" {
		t.Errorf("system/source = %q/%q", e.System, e.Source)
	}
	if e.Metadata["icd11_id"] != "http://id.who.int/icd/entity/12345" {
		t.Errorf("icd11_id metadata = %v", e.Metadata["icd11_id"])
	}
	if _, ok := e.Metadata["browserUrl"]; ok {
		t.Error("empty browserUrl should be dropped from metadata")
	}
}

func TestSearchRespectsLimit(t *testing.T) {
	var entities []map[string]interface{}
	for _, code := range []string{"A1", "A2", "A3"} {
		entities = append(entities, map[string]interface{}{"theCode": code, "title": "Entity " + code})
	}
	srv := newSearchServer(t, entities)
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	got, err := c.Search(context.Background(), "entity", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(got))
	}
}

func TestSearchErrorOnServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	if _, err := c.Search(context.Background(), "fever", 5); err == nil {
		t.Fatal("expected error on 500 response")
	}
}

func TestGetByCodeNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	e, err := c.GetByCode(context.Background(), "ZZ99")
	if err != nil {
		t.Fatalf("GetByCode: %v", err)
	}
	if e != nil {
		t.Fatalf("expected nil entity for 404, got %+v", e)
	}
}

func TestGetByCodeFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/concept/AB11" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"theCode": "AB11",
			"title":   "Fever, unspecified",
		})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	e, err := c.GetByCode(context.Background(), "AB11")
	if err != nil {
		t.Fatalf("GetByCode: %v", err)
	}
	if e == nil || e.Code != "AB11" {
		t.Fatalf("unexpected entity: %+v", e)
	}
}

func TestTokenFetchedAndCached(t *testing.T) {
	tokenCalls := 0
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.Form.Get("grant_type") != "client_credentials" {
			t.Errorf("grant_type = %q", r.Form.Get("grant_type"))
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok-123", "expires_in": 3600})
	}))
	defer tokenSrv.Close()

	var gotAuth string
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]interface{}{"destinationEntities": []interface{}{}})
	}))
	defer apiSrv.Close()

	c := NewClient(Config{
		BaseURL:      apiSrv.URL,
		TokenURL:     tokenSrv.URL,
		ClientID:     "id",
		ClientSecret: "secret",
	})
	for i := 0; i < 3; i++ {
		if _, err := c.Search(context.Background(), "fever", 5); err != nil {
			t.Fatalf("Search: %v", err)
		}
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if tokenCalls != 1 {
		t.Errorf("token endpoint called %d times, want 1", tokenCalls)
	}
}

func TestHealthReportsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	h := c.Health(context.Background())
	if h["status"] != "unhealthy" {
		t.Errorf("status = %v, want unhealthy", h["status"])
	}
	if h["api_accessible"] != false {
		t.Errorf("api_accessible = %v, want false", h["api_accessible"])
	}
}
