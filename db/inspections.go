package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"inspections-api/pkg/store"
)

var _ store.Store = (*InspectionStore)(nil)

const inspectionColumns = `id, location, status, inspector, type, priority, violations,
	coordinates_lat, coordinates_lng, notes, date`

// InspectionStore is the sqlite driver of store.Store.
type InspectionStore struct {
	svc *Service
}

func NewInspectionStore(svc *Service) *InspectionStore {
	return &InspectionStore{svc: svc}
}

func (s *InspectionStore) List(ctx context.Context) ([]store.Row, error) {
	rows, err := s.svc.DB.QueryContext(ctx,
		`SELECT `+inspectionColumns+` FROM inspections ORDER BY date DESC, id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query inspections: %w", err)
	}
	return scanRows(rows)
}

func (s *InspectionStore) Get(ctx context.Context, id int64) (store.Row, error) {
	return getInspection(ctx, s.svc.DB, id)
}

func (s *InspectionStore) Insert(ctx context.Context, row store.Row) (store.Row, error) {
	var inserted store.Row
	err := s.svc.Transaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO inspections (location, status, inspector, type, priority, violations, coordinates_lat, coordinates_lng, notes, date)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			row.Location, row.Status, row.Inspector, row.Type, row.Priority, row.Violations,
			nullFloat(row.Lat), nullFloat(row.Lng), row.Notes, row.Date.UTC().Format(store.DateLayout),
		)
		if err != nil {
			return fmt.Errorf("failed to create inspection: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read inspection id: %w", err)
		}
		inserted, err = getInspection(ctx, tx, id)
		return err
	})
	return inserted, err
}

func (s *InspectionStore) Update(ctx context.Context, id int64, changes store.Changes) (store.Row, error) {
	query, args, err := store.UpdateStatement("inspections", id, changes, store.QuestionMark)
	if err != nil {
		return store.Row{}, err
	}

	var updated store.Row
	err = s.svc.Transaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to update inspection: %w", err)
		}
		rowsAffected, _ := result.RowsAffected()
		if rowsAffected == 0 {
			return store.ErrNotFound
		}
		updated, err = getInspection(ctx, tx, id)
		return err
	})
	return updated, err
}

func (s *InspectionStore) Delete(ctx context.Context, id int64) error {
	result, err := s.svc.DB.ExecContext(ctx, "DELETE FROM inspections WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete inspection: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *InspectionStore) Search(ctx context.Context, query string) ([]store.Row, error) {
	conds := make([]string, 0, len(store.SearchColumns))
	args := make([]any, 0, len(store.SearchColumns))
	pattern := store.LikePattern(query)
	for _, col := range store.SearchColumns {
		conds = append(conds, fmt.Sprintf(`fold(%s) LIKE ? ESCAPE '\'`, col))
		args = append(args, pattern)
	}

	rows, err := s.svc.DB.QueryContext(ctx,
		`SELECT `+inspectionColumns+` FROM inspections WHERE `+strings.Join(conds, " OR ")+` ORDER BY date DESC, id DESC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search inspections: %w", err)
	}
	return scanRows(rows)
}

func (s *InspectionStore) CountBy(ctx context.Context, column string) (map[string]int, error) {
	if err := store.ValidateGroupColumn(column); err != nil {
		return nil, err
	}
	rows, err := s.svc.DB.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s, COUNT(*) FROM inspections GROUP BY %s`, column, column),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count inspections by %s: %w", column, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var value string
		var n int
		if err := rows.Scan(&value, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[value] = n
	}
	return counts, rows.Err()
}

func (s *InspectionStore) Count(ctx context.Context, filter store.Filter) (int, error) {
	query := "SELECT COUNT(*) FROM inspections WHERE 1 = 1"
	var args []any
	if filter.WithViolations {
		query += ` AND violations IS NOT NULL AND violations NOT IN ('', '[]', 'null')`
	}
	if !filter.Since.IsZero() {
		query += " AND date >= ?"
		args = append(args, filter.Since.UTC().Format(store.DateLayout))
	}

	var n int
	if err := s.svc.DB.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count inspections: %w", err)
	}
	return n, nil
}

// Reset deletes every row and vacuums the file. AUTOINCREMENT keeps its
// counter in sqlite_sequence, so ids are not reissued.
func (s *InspectionStore) Reset(ctx context.Context) error {
	if _, err := s.svc.DB.ExecContext(ctx, "DELETE FROM inspections"); err != nil {
		return fmt.Errorf("failed to clear inspections: %w", err)
	}
	if _, err := s.svc.DB.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	return nil
}

func (s *InspectionStore) Health(ctx context.Context) error {
	return s.svc.Health(ctx)
}

func (s *InspectionStore) Close() error {
	return s.svc.Close()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getInspection(ctx context.Context, q queryer, id int64) (store.Row, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+inspectionColumns+` FROM inspections WHERE id = ?`, id,
	)
	r, err := scanInspection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Row{}, store.ErrNotFound
	}
	return r, err
}

func scanRows(rows *sql.Rows) ([]store.Row, error) {
	defer rows.Close()

	out := []store.Row{}
	for rows.Next() {
		r, err := scanInspection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate inspections: %w", err)
	}
	return out, nil
}

func scanInspection(scanner interface{ Scan(...any) error }) (store.Row, error) {
	var r store.Row
	var violations sql.NullString
	var lat, lng sql.NullFloat64
	var date string

	err := scanner.Scan(
		&r.ID, &r.Location, &r.Status, &r.Inspector, &r.Type, &r.Priority, &violations,
		&lat, &lng, &r.Notes, &date,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Row{}, err
	}
	if err != nil {
		return store.Row{}, fmt.Errorf("failed to scan inspection: %w", err)
	}

	r.Violations = violations.String
	if lat.Valid {
		r.Lat = &lat.Float64
	}
	if lng.Valid {
		r.Lng = &lng.Float64
	}
	r.Date, err = time.Parse(store.DateLayout, date)
	if err != nil {
		return store.Row{}, fmt.Errorf("failed to parse inspection date %q: %w", date, err)
	}
	return r, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
