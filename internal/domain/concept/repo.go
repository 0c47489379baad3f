package concept

import "context"

// SystemSummary describes one stored terminology system.
type SystemSummary struct {
	System   string `json:"system"`
	Count    int    `json:"count"`
	Source   string `json:"source,omitempty"`
	Version  string `json:"version,omitempty"`
	Language string `json:"language,omitempty"`
}

// Repository is the persistence contract for concepts. FindBySystemCode
// returns (nil, nil) when the code is absent.
type Repository interface {
	FindBySystemCode(ctx context.Context, system, code string) (*Concept, error)
	// Search matches query as a case-insensitive substring of code, display
	// or definition. An empty system matches all systems. NAMASTE rows also
	// match on the sanskrit_name, english_name, category and subcategory
	// metadata fields.
	Search(ctx context.Context, system, query string, limit int) ([]*Concept, error)
	ListBySystem(ctx context.Context, system string, limit, offset int) ([]*Concept, error)
	CountBySystem(ctx context.Context, system string) (int, error)
	ListSystems(ctx context.Context) ([]*SystemSummary, error)
	Insert(ctx context.Context, c *Concept) error
}
