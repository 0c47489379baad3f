// Package audit is the append-only compliance trail. Mutating and translating
// operations write records here as a side effect; writes are best-effort at
// the call sites, never on the primary success path.
package audit

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Service records and queries audit trail entries.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Record appends one audit entry and returns its identifier.
func (s *Service) Record(ctx context.Context, actor, action, resourceType, resourceID string, detail Detail) (uuid.UUID, error) {
	rec := &Record{
		ID:           uuid.New(),
		Actor:        actor,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Detail:       detail,
	}
	if err := s.repo.Append(ctx, rec); err != nil {
		return uuid.Nil, err
	}
	return rec.ID, nil
}

// TryRecord is the best-effort variant: a failed write is logged and the
// zero UUID returned, never an error.
func (s *Service) TryRecord(ctx context.Context, actor, action, resourceType, resourceID string, detail Detail) uuid.UUID {
	id, err := s.Record(ctx, actor, action, resourceType, resourceID, detail)
	if err != nil {
		log.Warn().Err(err).
			Str("actor", actor).
			Str("action", action).
			Str("resource_type", resourceType).
			Msg("audit write failed")
		return uuid.Nil
	}
	return id
}

// Query returns matching records, most recent first.
func (s *Service) Query(ctx context.Context, f Filter) ([]*Record, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > 500 {
		f.Limit = 500
	}
	return s.repo.Query(ctx, f)
}

// Statistics summarizes the trail: per-action counts, total and distinct actors.
func (s *Service) Statistics(ctx context.Context) (map[string]interface{}, error) {
	byAction, err := s.repo.CountByAction(ctx)
	if err != nil {
		return nil, err
	}
	actors, err := s.repo.CountActors(ctx)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, n := range byAction {
		total += n
	}
	return map[string]interface{}{
		"total_records": total,
		"by_action":     byAction,
		"unique_actors": actors,
	}, nil
}
