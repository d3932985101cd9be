// Package store defines the persistence boundary for inspection records. The
// service layer only sees the Store interface; drivers live in subpackages
// (and in the db package for sqlite).
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrNotFound is returned by every driver when no row has the requested id.
var ErrNotFound = errors.New("inspection not found")

// DateLayout is the on-disk text form of Row.Date. Fixed width and UTC, so
// lexical order equals chronological order.
const DateLayout = "2006-01-02T15:04:05.000Z"

// Column names of the flat storage representation.
const (
	ColumnID         = "id"
	ColumnLocation   = "location"
	ColumnStatus     = "status"
	ColumnInspector  = "inspector"
	ColumnType       = "type"
	ColumnPriority   = "priority"
	ColumnViolations = "violations"
	ColumnLat        = "coordinates_lat"
	ColumnLng        = "coordinates_lng"
	ColumnNotes      = "notes"
	ColumnDate       = "date"
)

// MutableColumns is the whitelist of columns a Changes set may touch, in the
// order updates are rendered.
var MutableColumns = []string{
	ColumnLocation,
	ColumnStatus,
	ColumnInspector,
	ColumnType,
	ColumnPriority,
	ColumnViolations,
	ColumnLat,
	ColumnLng,
	ColumnNotes,
	ColumnDate,
}

// SearchColumns are matched case-insensitively by Search.
var SearchColumns = []string{
	ColumnLocation,
	ColumnNotes,
	ColumnInspector,
	ColumnStatus,
	ColumnType,
	ColumnPriority,
}

// GroupColumns may be passed to CountBy.
var GroupColumns = []string{ColumnStatus, ColumnType, ColumnPriority}

// Row is the flat storage shape of an inspection.
type Row struct {
	ID         int64     `json:"id"`
	Location   string    `json:"location"`
	Status     string    `json:"status"`
	Inspector  string    `json:"inspector"`
	Type       string    `json:"type"`
	Priority   string    `json:"priority"`
	Violations string    `json:"violations"`
	Lat        *float64  `json:"coordinates_lat"`
	Lng        *float64  `json:"coordinates_lng"`
	Notes      string    `json:"notes"`
	Date       time.Time `json:"date"`
}

// Filter narrows Count. The zero Filter counts every row.
type Filter struct {
	WithViolations bool
	Since          time.Time
}

// Store is the record store used by the inspection services.
type Store interface {
	List(ctx context.Context) ([]Row, error)
	Get(ctx context.Context, id int64) (Row, error)
	Insert(ctx context.Context, row Row) (Row, error)
	Update(ctx context.Context, id int64, changes Changes) (Row, error)
	Delete(ctx context.Context, id int64) error
	Search(ctx context.Context, query string) ([]Row, error)
	CountBy(ctx context.Context, column string) (map[string]int, error)
	Count(ctx context.Context, filter Filter) (int, error)
	Close() error
}

// Resetter is implemented by drivers that can drop every record. Ids are not
// recycled after a reset.
type Resetter interface {
	Reset(ctx context.Context) error
}

// HealthChecker is implemented by drivers with a reachable backend.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// ValidateGroupColumn rejects columns CountBy does not support.
func ValidateGroupColumn(column string) error {
	for _, c := range GroupColumns {
		if c == column {
			return nil
		}
	}
	return fmt.Errorf("unsupported group column %q", column)
}

// SortByDateDesc orders rows most recent first, newest id first on ties.
func SortByDateDesc(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].Date.Equal(rows[j].Date) {
			return rows[i].Date.After(rows[j].Date)
		}
		return rows[i].ID > rows[j].ID
	})
}

// HasViolations reports whether the serialized list holds at least one entry.
func (r Row) HasViolations() bool {
	switch r.Violations {
	case "", "[]", "null":
		return false
	}
	return true
}

// Field returns the text value of a searchable or groupable column.
func (r Row) Field(column string) string {
	switch column {
	case ColumnLocation:
		return r.Location
	case ColumnStatus:
		return r.Status
	case ColumnInspector:
		return r.Inspector
	case ColumnType:
		return r.Type
	case ColumnPriority:
		return r.Priority
	case ColumnNotes:
		return r.Notes
	}
	return ""
}

// LikePattern lowercases query and escapes LIKE wildcards with a backslash,
// for use with "fold(col) LIKE ? ESCAPE '\'" or the LOWER equivalent.
func LikePattern(query string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(query)) + "%"
}

// Matches reports whether any search column contains query, ignoring case.
func (r Row) Matches(query string) bool {
	q := strings.ToLower(query)
	for _, col := range SearchColumns {
		if strings.Contains(strings.ToLower(r.Field(col)), q) {
			return true
		}
	}
	return false
}

// Matches reports whether row passes the filter.
func (f Filter) Matches(r Row) bool {
	if f.WithViolations && !r.HasViolations() {
		return false
	}
	if !f.Since.IsZero() && r.Date.Before(f.Since) {
		return false
	}
	return true
}
