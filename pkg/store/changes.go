package store

import (
	"fmt"
	"strings"
	"time"
)

// Changes is a typed field diff: column name to new value. Values are string
// for text columns, *float64 for the coordinate columns (nil clears) and
// time.Time for date.
type Changes map[string]any

// Validate checks that every key is a mutable column and every value has the
// type that column stores.
func (c Changes) Validate() error {
	for col, v := range c {
		switch col {
		case ColumnLocation, ColumnStatus, ColumnInspector, ColumnType, ColumnPriority, ColumnViolations, ColumnNotes:
			if _, ok := v.(string); !ok {
				return fmt.Errorf("column %s: expected string, got %T", col, v)
			}
		case ColumnLat, ColumnLng:
			if _, ok := v.(*float64); !ok {
				return fmt.Errorf("column %s: expected *float64, got %T", col, v)
			}
		case ColumnDate:
			if _, ok := v.(time.Time); !ok {
				return fmt.Errorf("column %s: expected time.Time, got %T", col, v)
			}
		default:
			return fmt.Errorf("column %s is not mutable", col)
		}
	}
	return nil
}

// Apply merges the diff onto a copy of row. Call Validate first.
func (c Changes) Apply(row Row) Row {
	for col, v := range c {
		switch col {
		case ColumnLocation:
			row.Location = v.(string)
		case ColumnStatus:
			row.Status = v.(string)
		case ColumnInspector:
			row.Inspector = v.(string)
		case ColumnType:
			row.Type = v.(string)
		case ColumnPriority:
			row.Priority = v.(string)
		case ColumnViolations:
			row.Violations = v.(string)
		case ColumnNotes:
			row.Notes = v.(string)
		case ColumnLat:
			row.Lat = copyFloat(v.(*float64))
		case ColumnLng:
			row.Lng = copyFloat(v.(*float64))
		case ColumnDate:
			row.Date = v.(time.Time)
		}
	}
	return row
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// UpdateStatement renders the diff as a parameterized UPDATE for table.
// placeholder returns the bind marker for the n-th argument (1-based), so the
// same builder serves sqlite ("?") and postgres ("$n"). Only whitelisted
// column names reach the SQL text; dates are bound in DateLayout.
func UpdateStatement(table string, id int64, c Changes, placeholder func(n int) string) (string, []any, error) {
	if err := c.Validate(); err != nil {
		return "", nil, err
	}
	if len(c) == 0 {
		return "", nil, fmt.Errorf("no changes to apply")
	}

	sets := make([]string, 0, len(c))
	args := make([]any, 0, len(c)+1)
	for _, col := range MutableColumns {
		v, ok := c[col]
		if !ok {
			continue
		}
		args = append(args, bindValue(v))
		sets = append(sets, fmt.Sprintf("%s = %s", col, placeholder(len(args))))
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = %s", table, strings.Join(sets, ", "), placeholder(len(args)))
	return query, args, nil
}

func bindValue(v any) any {
	switch t := v.(type) {
	case *float64:
		if t == nil {
			return nil
		}
		return *t
	case time.Time:
		return t.UTC().Format(DateLayout)
	}
	return v
}

// QuestionMark is the sqlite placeholder style.
func QuestionMark(int) string { return "?" }

// Dollar is the postgres placeholder style.
func Dollar(n int) string { return fmt.Sprintf("$%d", n) }
