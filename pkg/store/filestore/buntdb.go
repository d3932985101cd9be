// Package filestore persists inspections in a single buntdb append-only file.
// Every read-modify-write runs inside one buntdb read-write transaction, and
// buntdb admits a single writer at a time, so concurrent updates cannot
// corrupt the file.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/tidwall/buntdb"

	"inspections-api/pkg/store"
)

var _ store.Store = (*Store)(nil)

const (
	keyPrefix   = "inspection:"
	keyPattern  = "inspection:*"
	keyLastID   = "meta:last_id"
	indexByDate = "inspections_by_date"
)

type Store struct {
	db   *buntdb.DB
	path string
}

// record is the JSON document stored per key. Date is kept in
// store.DateLayout so the date index orders chronologically.
type record struct {
	ID         int64    `json:"id"`
	Location   string   `json:"location"`
	Status     string   `json:"status"`
	Inspector  string   `json:"inspector"`
	Type       string   `json:"type"`
	Priority   string   `json:"priority"`
	Violations string   `json:"violations"`
	Lat        *float64 `json:"coordinates_lat"`
	Lng        *float64 `json:"coordinates_lng"`
	Notes      string   `json:"notes"`
	Date       string   `json:"date"`
}

// Open opens (or creates) the file at path. ":memory:" keeps everything in
// process.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create file store directory: %w", err)
		}
	}

	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open buntdb: %w", err)
	}

	var cfg buntdb.Config
	if err := db.ReadConfig(&cfg); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read buntdb config: %w", err)
	}
	cfg.SyncPolicy = buntdb.Always
	if err := db.SetConfig(cfg); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set buntdb config: %w", err)
	}

	if err := db.ReplaceIndex(indexByDate, keyPattern, buntdb.IndexJSON("date")); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create date index: %w", err)
	}

	log.Printf("File store initialized: %s", path)
	return &Store{db: db, path: path}, nil
}

func (s *Store) List(ctx context.Context) ([]store.Row, error) {
	return s.collect(func(store.Row) bool { return true })
}

func (s *Store) Get(ctx context.Context, id int64) (store.Row, error) {
	var row store.Row
	err := s.db.View(func(tx *buntdb.Tx) error {
		var err error
		row, err = getRow(tx, id)
		return err
	})
	return row, err
}

func (s *Store) Insert(ctx context.Context, row store.Row) (store.Row, error) {
	err := s.db.Update(func(tx *buntdb.Tx) error {
		last, err := tx.Get(keyLastID)
		if err != nil && !errors.Is(err, buntdb.ErrNotFound) {
			return err
		}
		var lastID int64
		if last != "" {
			if lastID, err = strconv.ParseInt(last, 10, 64); err != nil {
				return fmt.Errorf("corrupt id sequence %q: %w", last, err)
			}
		}
		row.ID = lastID + 1
		if _, _, err := tx.Set(keyLastID, strconv.FormatInt(row.ID, 10), nil); err != nil {
			return err
		}
		return putRow(tx, row)
	})
	if err != nil {
		return store.Row{}, fmt.Errorf("failed to insert inspection: %w", err)
	}
	return row, nil
}

func (s *Store) Update(ctx context.Context, id int64, changes store.Changes) (store.Row, error) {
	if err := changes.Validate(); err != nil {
		return store.Row{}, err
	}
	var row store.Row
	err := s.db.Update(func(tx *buntdb.Tx) error {
		current, err := getRow(tx, id)
		if err != nil {
			return err
		}
		row = changes.Apply(current)
		return putRow(tx, row)
	})
	if err != nil {
		return store.Row{}, err
	}
	return row, nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(key(id))
		if errors.Is(err, buntdb.ErrNotFound) {
			return store.ErrNotFound
		}
		return err
	})
}

func (s *Store) Search(ctx context.Context, query string) ([]store.Row, error) {
	return s.collect(func(r store.Row) bool { return r.Matches(query) })
}

func (s *Store) CountBy(ctx context.Context, column string) (map[string]int, error) {
	if err := store.ValidateGroupColumn(column); err != nil {
		return nil, err
	}
	rows, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, r := range rows {
		counts[r.Field(column)]++
	}
	return counts, nil
}

func (s *Store) Count(ctx context.Context, filter store.Filter) (int, error) {
	rows, err := s.collect(filter.Matches)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Reset removes every inspection and compacts the file. The id sequence is
// kept so ids are never reissued.
func (s *Store) Reset(ctx context.Context) error {
	err := s.db.Update(func(tx *buntdb.Tx) error {
		var keys []string
		if err := tx.AscendKeys(keyPattern, func(k, _ string) bool {
			keys = append(keys, k)
			return true
		}); err != nil {
			return err
		}
		for _, k := range keys {
			if _, err := tx.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to clear file store: %w", err)
	}
	if s.path == ":memory:" {
		return nil
	}
	return s.db.Shrink()
}

func (s *Store) Close() error {
	if s.db != nil {
		log.Println("Closing file store...")
		return s.db.Close()
	}
	return nil
}

// collect walks the date index newest first and keeps rows accepted by keep.
func (s *Store) collect(keep func(store.Row) bool) ([]store.Row, error) {
	rows := []store.Row{}
	var decodeErr error
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.Descend(indexByDate, func(_, value string) bool {
			row, err := decodeRow(value)
			if err != nil {
				decodeErr = err
				return false
			}
			if keep(row) {
				rows = append(rows, row)
			}
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan inspections: %w", err)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	// Equal dates come back in key order; re-sort for the id tie-break.
	store.SortByDateDesc(rows)
	return rows, nil
}

func key(id int64) string {
	return fmt.Sprintf("%s%020d", keyPrefix, id)
}

func getRow(tx *buntdb.Tx, id int64) (store.Row, error) {
	value, err := tx.Get(key(id))
	if errors.Is(err, buntdb.ErrNotFound) {
		return store.Row{}, store.ErrNotFound
	}
	if err != nil {
		return store.Row{}, err
	}
	return decodeRow(value)
}

func putRow(tx *buntdb.Tx, row store.Row) error {
	data, err := json.Marshal(record{
		ID:         row.ID,
		Location:   row.Location,
		Status:     row.Status,
		Inspector:  row.Inspector,
		Type:       row.Type,
		Priority:   row.Priority,
		Violations: row.Violations,
		Lat:        row.Lat,
		Lng:        row.Lng,
		Notes:      row.Notes,
		Date:       row.Date.UTC().Format(store.DateLayout),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal inspection: %w", err)
	}
	_, _, err = tx.Set(key(row.ID), string(data), nil)
	return err
}

func decodeRow(value string) (store.Row, error) {
	var rec record
	if err := json.Unmarshal([]byte(value), &rec); err != nil {
		return store.Row{}, fmt.Errorf("failed to decode inspection: %w", err)
	}
	date, err := time.Parse(store.DateLayout, rec.Date)
	if err != nil {
		return store.Row{}, fmt.Errorf("failed to parse date %q: %w", rec.Date, err)
	}
	return store.Row{
		ID:         rec.ID,
		Location:   rec.Location,
		Status:     rec.Status,
		Inspector:  rec.Inspector,
		Type:       rec.Type,
		Priority:   rec.Priority,
		Violations: rec.Violations,
		Lat:        rec.Lat,
		Lng:        rec.Lng,
		Notes:      rec.Notes,
		Date:       date,
	}, nil
}
