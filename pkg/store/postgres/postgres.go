// Package postgres is the pgx-backed store.Store driver.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"inspections-api/pkg/store"
)

var _ store.Store = (*Store)(nil)

const inspectionColumns = `id, location, status, inspector, type, priority, violations,
	coordinates_lat, coordinates_lng, notes, date`

type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// EnsureSchema creates the inspections table if needed.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS inspections (
	id BIGSERIAL PRIMARY KEY,
	location TEXT NOT NULL,
	status TEXT NOT NULL,
	inspector TEXT NOT NULL,
	type TEXT NOT NULL,
	priority TEXT NOT NULL DEFAULT 'Medium' CHECK (priority IN ('Low', 'Medium', 'High')),
	violations TEXT NOT NULL DEFAULT '[]',
	coordinates_lat DOUBLE PRECISION,
	coordinates_lng DOUBLE PRECISION,
	notes TEXT NOT NULL,
	date TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_inspections_date ON inspections(date DESC);`
	if _, err := s.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]store.Row, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+inspectionColumns+` FROM inspections ORDER BY date DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("select inspections: %w", err)
	}
	return collectRows(rows)
}

func (s *Store) Get(ctx context.Context, id int64) (store.Row, error) {
	return getInspection(ctx, s.pool, id)
}

func (s *Store) Insert(ctx context.Context, row store.Row) (store.Row, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO inspections (location, status, inspector, type, priority, violations, coordinates_lat, coordinates_lng, notes, date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id
	`, row.Location, row.Status, row.Inspector, row.Type, row.Priority, row.Violations,
		row.Lat, row.Lng, row.Notes, row.Date.UTC().Format(store.DateLayout)).Scan(&id)
	if err != nil {
		return store.Row{}, fmt.Errorf("insert inspection: %w", err)
	}
	return getInspection(ctx, s.pool, id)
}

func (s *Store) Update(ctx context.Context, id int64, changes store.Changes) (store.Row, error) {
	query, args, err := store.UpdateStatement("inspections", id, changes, store.Dollar)
	if err != nil {
		return store.Row{}, err
	}

	var updated store.Row
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("update inspection: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return store.ErrNotFound
		}
		updated, err = getInspection(ctx, tx, id)
		return err
	})
	return updated, err
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM inspections WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete inspection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Search(ctx context.Context, query string) ([]store.Row, error) {
	// LOWER folds Unicode under the database's UTF-8 locale.
	conds := make([]string, 0, len(store.SearchColumns))
	for _, col := range store.SearchColumns {
		conds = append(conds, fmt.Sprintf(`LOWER(%s) LIKE $1 ESCAPE '\'`, col))
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+inspectionColumns+` FROM inspections WHERE `+strings.Join(conds, " OR ")+` ORDER BY date DESC, id DESC`,
		store.LikePattern(query))
	if err != nil {
		return nil, fmt.Errorf("search inspections: %w", err)
	}
	return collectRows(rows)
}

func (s *Store) CountBy(ctx context.Context, column string) (map[string]int, error) {
	if err := store.ValidateGroupColumn(column); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT %s, COUNT(*) FROM inspections GROUP BY %s`, column, column))
	if err != nil {
		return nil, fmt.Errorf("count inspections by %s: %w", column, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var value string
		var n int64
		if err := rows.Scan(&value, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[value] = int(n)
	}
	return counts, rows.Err()
}

func (s *Store) Count(ctx context.Context, filter store.Filter) (int, error) {
	query := "SELECT COUNT(*) FROM inspections WHERE TRUE"
	var args []any
	if filter.WithViolations {
		query += ` AND violations NOT IN ('', '[]', 'null')`
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since.UTC().Format(store.DateLayout))
		query += fmt.Sprintf(" AND date >= $%d", len(args))
	}

	var n int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count inspections: %w", err)
	}
	return int(n), nil
}

// Reset truncates the table; the id sequence is not restarted.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE inspections`); err != nil {
		return fmt.Errorf("truncate inspections: %w", err)
	}
	return nil
}

func (s *Store) Health(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getInspection(ctx context.Context, q queryRower, id int64) (store.Row, error) {
	r, err := scanInspection(q.QueryRow(ctx,
		`SELECT `+inspectionColumns+` FROM inspections WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Row{}, store.ErrNotFound
	}
	return r, err
}

func collectRows(rows pgx.Rows) ([]store.Row, error) {
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
		return nil, fmt.Errorf("iterate inspections: %w", err)
	}
	return out, nil
}

func scanInspection(row pgx.Row) (store.Row, error) {
	var r store.Row
	var date string
	if err := row.Scan(&r.ID, &r.Location, &r.Status, &r.Inspector, &r.Type, &r.Priority, &r.Violations,
		&r.Lat, &r.Lng, &r.Notes, &date); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Row{}, err
		}
		return store.Row{}, fmt.Errorf("scan inspection: %w", err)
	}
	parsed, err := time.Parse(store.DateLayout, date)
	if err != nil {
		return store.Row{}, fmt.Errorf("parse inspection date %q: %w", date, err)
	}
	r.Date = parsed
	return r, nil
}
