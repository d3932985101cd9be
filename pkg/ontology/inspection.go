package ontology

import (
	"time"
)

// Priority is the urgency level of an inspection.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Priorities lists the accepted priority values in display order.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

// DefaultPriority is applied on create when the payload omits priority.
const DefaultPriority = PriorityMedium

func (p Priority) Valid() bool {
	for _, known := range Priorities {
		if p == known {
			return true
		}
	}
	return false
}

type Inspection struct {
	ID          int64        `json:"id"`
	Location    string       `json:"location"`
	Status      string       `json:"status"`
	Inspector   string       `json:"inspector"`
	Type        string       `json:"type"`
	Priority    Priority     `json:"priority"`
	Violations  []string     `json:"violations"`
	Coordinates *Coordinates `json:"coordinates"`
	Notes       string       `json:"notes"`
	Date        time.Time    `json:"date"`
}

// Coordinates is always a complete pair; an absent position is a nil *Coordinates.
type Coordinates struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

type CreateInspectionRequest struct {
	Location    string       `json:"location" yaml:"location"`
	Status      string       `json:"status" yaml:"status"`
	Inspector   string       `json:"inspector" yaml:"inspector"`
	Type        string       `json:"type" yaml:"type"`
	Priority    Priority     `json:"priority,omitempty" yaml:"priority"`
	Violations  []string     `json:"violations,omitempty" yaml:"violations"`
	Coordinates *Coordinates `json:"coordinates,omitempty" yaml:"coordinates"`
	Notes       string       `json:"notes" yaml:"notes"`
}

// InspectionPatch is a partial update. Nil fields were not supplied.
type InspectionPatch struct {
	Location   *string
	Status     *string
	Inspector  *string
	Type       *string
	Priority   *Priority
	Violations *[]string
	Notes      *string

	// CoordinatesSet distinguishes "coordinates": null (set, Coordinates nil)
	// from an omitted key.
	CoordinatesSet bool
	Coordinates    *Coordinates
}

// Empty reports whether the patch supplies no fields.
func (p InspectionPatch) Empty() bool {
	return p.Location == nil && p.Status == nil && p.Inspector == nil && p.Type == nil &&
		p.Priority == nil && p.Violations == nil && p.Notes == nil && !p.CoordinatesSet
}

type SearchResult struct {
	Results []Inspection `json:"results"`
	Count   int          `json:"count"`
	Query   string       `json:"query"`
}

type Stats struct {
	Total             int            `json:"total"`
	ByStatus          map[string]int `json:"byStatus"`
	ByType            map[string]int `json:"byType"`
	ByPriority        map[string]int `json:"byPriority"`
	WithViolations    int            `json:"withViolations"`
	RecentInspections int            `json:"recentInspections"`
	GeneratedAt       time.Time      `json:"generatedAt"`
}
