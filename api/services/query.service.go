package services

import (
	"context"
	"strings"
	"time"

	"inspections-api/pkg/normalize"
	"inspections-api/pkg/ontology"
	"inspections-api/pkg/shared"
	"inspections-api/pkg/store"
)

// RecentWindow is the trailing period counted as recent by Stats.
const RecentWindow = 30 * 24 * time.Hour

// QueryService serves read-only search and aggregate endpoints.
type QueryService struct {
	store store.Store
	now   func() time.Time
}

func NewQueryService(st store.Store) *QueryService {
	return &QueryService{store: st, now: time.Now}
}

func (s *QueryService) SetClock(now func() time.Time) {
	s.now = now
}

// SearchInspections matches query case-insensitively against the text fields.
// The query is echoed back untrimmed.
func (s *QueryService) SearchInspections(ctx context.Context, query string) (*ontology.SearchResult, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, shared.InvalidInput(shared.MsgQueryRequired)
	}

	rows, err := s.store.Search(ctx, trimmed)
	if err != nil {
		return nil, &shared.StorageError{Op: "search inspections", Err: err}
	}

	results := normalize.DecodeAll(rows)
	return &ontology.SearchResult{
		Results: results,
		Count:   len(results),
		Query:   query,
	}, nil
}

// GetInspectionStats computes every count from the store at call time.
func (s *QueryService) GetInspectionStats(ctx context.Context) (*ontology.Stats, error) {
	now := s.now().UTC()

	total, err := s.store.Count(ctx, store.Filter{})
	if err != nil {
		return nil, &shared.StorageError{Op: "count inspections", Err: err}
	}
	byStatus, err := s.store.CountBy(ctx, store.ColumnStatus)
	if err != nil {
		return nil, &shared.StorageError{Op: "count inspections by status", Err: err}
	}
	byType, err := s.store.CountBy(ctx, store.ColumnType)
	if err != nil {
		return nil, &shared.StorageError{Op: "count inspections by type", Err: err}
	}
	byPriority, err := s.store.CountBy(ctx, store.ColumnPriority)
	if err != nil {
		return nil, &shared.StorageError{Op: "count inspections by priority", Err: err}
	}
	withViolations, err := s.store.Count(ctx, store.Filter{WithViolations: true})
	if err != nil {
		return nil, &shared.StorageError{Op: "count inspections with violations", Err: err}
	}
	recent, err := s.store.Count(ctx, store.Filter{Since: now.Add(-RecentWindow)})
	if err != nil {
		return nil, &shared.StorageError{Op: "count recent inspections", Err: err}
	}

	return &ontology.Stats{
		Total:             total,
		ByStatus:          byStatus,
		ByType:            byType,
		ByPriority:        byPriority,
		WithViolations:    withViolations,
		RecentInspections: recent,
		GeneratedAt:       now,
	}, nil
}
