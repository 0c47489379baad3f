// Package icd11 is a client for the WHO ICD-11 linearization API. The API is
// treated as a black box: callers get search and get-by-code over parsed
// entities, and the caller decides how to degrade when the API is down.
package icd11

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Entity is a parsed ICD-11 concept in the shape the terminology layer expects.
type Entity struct {
	System     string                 `json:"system"`
	Code       string                 `json:"code"`
	Display    string                 `json:"display"`
	Definition string                 `json:"definition,omitempty"`
	Language   string                 `json:"language"`
	Source     string                 `json:"source"`
	Version    string                 `json:"version"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Config holds WHO ICD-11 API connection settings.
type Config struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
}

// Client calls the WHO ICD-11 API. Access tokens obtained via the OAuth2
// client-credentials flow are cached until shortly before expiry.
type Client struct {
	cfg    Config
	client *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// systemName is the namespace this provider's concepts are filed under.
const systemName = "icd11"

// releaseVersion is the linearization release parsed out of the base URL path,
// kept as metadata on returned entities.
const releaseVersion = "2025-01"

// NewClient creates an ICD-11 API client with a bounded HTTP client.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// token returns a cached or freshly fetched access token. An empty token with
// nil error means no credentials are configured and requests go unauthenticated.
func (c *Client) token(ctx context.Context) (string, error) {
	if c.cfg.ClientID == "" || c.cfg.ClientSecret == "" {
		return "", nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := url.Values{
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"grant_type":    {"client_credentials"},
		"scope":         {"icdapi_access"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}

	c.accessToken = body.AccessToken
	// Refresh one minute early to avoid using a token at the expiry edge.
	c.tokenExpiry = time.Now().Add(time.Duration(body.ExpiresIn)*time.Second - time.Minute)
	return c.accessToken, nil
}

// Search queries the ICD-11 flexisearch endpoint and returns parsed entities.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]*Entity, error) {
	if limit <= 0 {
		limit = 10
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/search", nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	q := req.URL.Query()
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("useFlexisearch", "true")
	q.Set("flatResults", "true")
	req.URL.RawQuery = q.Encode()

	if err := c.authorize(ctx, req); err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "en")
	req.Header.Set("API-Version", "v2")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("icd11 search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("icd11 search returned status %d", resp.StatusCode)
	}

	var body struct {
		DestinationEntities []map[string]interface{} `json:"destinationEntities"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode icd11 search response: %w", err)
	}

	entities := make([]*Entity, 0, limit)
	for _, raw := range body.DestinationEntities {
		if len(entities) >= limit {
			break
		}
		if e := parseEntity(raw); e != nil {
			entities = append(entities, e)
		}
	}
	return entities, nil
}

// GetByCode fetches a single ICD-11 concept. A nil entity with nil error means
// the code does not exist.
func (c *Client) GetByCode(ctx context.Context, code string) (*Entity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/concept/"+url.PathEscape(code), nil)
	if err != nil {
		return nil, fmt.Errorf("build concept request: %w", err)
	}
	if err := c.authorize(ctx, req); err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "en")
	req.Header.Set("API-Version", "v2")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("icd11 get %s: %w", code, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("icd11 get %s returned status %d", code, resp.StatusCode)
	}

	var raw map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode icd11 concept response: %w", err)
	}
	return parseEntity(raw), nil
}

// Health probes the API with a one-result search and reports connectivity.
func (c *Client) Health(ctx context.Context) map[string]interface{} {
	authState := "not_configured"
	if c.cfg.ClientID != "" {
		authState = "configured"
	}

	results, err := c.Search(ctx, "fever", 1)
	if err != nil {
		return map[string]interface{}{
			"status":         "unhealthy",
			"api_accessible": false,
			"authentication": authState,
			"error":          err.Error(),
			"base_url":       c.cfg.BaseURL,
		}
	}
	return map[string]interface{}{
		"status":             "healthy",
		"api_accessible":     true,
		"authentication":     authState,
		"test_query_results": len(results),
		"base_url":           c.cfg.BaseURL,
	}
}

func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

// parseEntity converts a raw API entity into an Entity. Entities missing a
// code or title are dropped.
func parseEntity(raw map[string]interface{}) *Entity {
	code, _ := raw["theCode"].(string)
	title := stringField(raw, "title")
	if code == "" || title == "" {
		return nil
	}

	metadata := map[string]interface{}{}
	for _, key := range []string{"id", "isLeaf", "parent", "children", "inclusion", "exclusion", "codingNote", "browserUrl", "foundation_uri", "linearization_uri"} {
		if v, ok := raw[key]; ok && !isEmptyValue(v) {
			metaKey := key
			if key == "id" {
				metaKey = "icd11_id"
			}
			metadata[metaKey] = v
		}
	}
	if len(metadata) == 0 {
		metadata = nil
	}

	return &Entity{
		System:     systemName,
		Code:       code,
		Display:    title,
		Definition: stringField(raw, "definition"),
		Language:   "en",
		Source:     "WHO ICD-11",
		Version:    releaseVersion,
		Metadata:   metadata,
	}
}

// stringField reads a field that the API serves either as a plain string or as
// a language-tagged object with an "@value" key.
func stringField(raw map[string]interface{}, key string) string {
	switch v := raw[key].(type) {
	case string:
		return v
	case map[string]interface{}:
		s, _ := v["@value"].(string)
		return s
	default:
		return ""
	}
}

func isEmptyValue(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []interface{}:
		return len(t) == 0
	case bool:
		return !t
	default:
		return false
	}
}
