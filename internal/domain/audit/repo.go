package audit

import "context"

// Repository is the persistence contract for the audit trail.
type Repository interface {
	Append(ctx context.Context, rec *Record) error
	Query(ctx context.Context, f Filter) ([]*Record, error)
	CountByAction(ctx context.Context) (map[string]int, error)
	CountActors(ctx context.Context) (int, error)
}
