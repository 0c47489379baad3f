package mapping

import "context"

// Stats summarizes the mapping store.
type Stats struct {
	Total          int            `json:"total_mappings"`
	ByEquivalence  map[string]int `json:"by_equivalence"`
	BySourceSystem map[string]int `json:"by_source_system"`
	AvgConfidence  float64        `json:"average_confidence"`
}

// ListFilter narrows a mapping listing. Empty system fields match all rows.
type ListFilter struct {
	SourceSystem string
	TargetSystem string
	Limit        int
	Offset       int
}

// Repository is the persistence contract for mappings. FindByTuple returns
// (nil, nil) when no row matches the natural key.
type Repository interface {
	FindBySource(ctx context.Context, system, code string) ([]*Mapping, error)
	// FindByPair returns mappings where (system, code) appears as either the
	// source or the target pair.
	FindByPair(ctx context.Context, system, code string) ([]*Mapping, error)
	FindByTuple(ctx context.Context, sourceSystem, sourceCode, targetSystem, targetCode string) (*Mapping, error)
	Insert(ctx context.Context, m *Mapping) error
	List(ctx context.Context, f ListFilter) ([]*Mapping, int, error)
	Statistics(ctx context.Context) (*Stats, error)
}
