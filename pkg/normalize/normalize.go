// Package normalize converts inspections between the API shape (nested
// coordinates, violations list) and the flat store.Row shape.
//
// Decoding collapses a half-present coordinate pair to nil rather than
// failing: if either stored scalar is null the record reads back with
// "coordinates": null. Zero is a valid latitude or longitude and survives the
// round trip.
package normalize

import (
	"encoding/json"
	"fmt"
	"time"

	"inspections-api/pkg/ontology"
	"inspections-api/pkg/store"
)

// EncodeCreate maps a validated create request onto a storage row stamped
// with date. The row id is left for the store to assign.
func EncodeCreate(req *ontology.CreateInspectionRequest, date time.Time) store.Row {
	priority := req.Priority
	if priority == "" {
		priority = ontology.DefaultPriority
	}
	lat, lng := encodeCoordinates(req.Coordinates)

	return store.Row{
		Location:   req.Location,
		Status:     req.Status,
		Inspector:  req.Inspector,
		Type:       req.Type,
		Priority:   string(priority),
		Violations: EncodeViolations(req.Violations),
		Lat:        lat,
		Lng:        lng,
		Notes:      req.Notes,
		Date:       date.UTC(),
	}
}

// EncodePatch builds the field diff for the supplied fields only.
func EncodePatch(p *ontology.InspectionPatch) store.Changes {
	changes := store.Changes{}
	setString := func(col string, v *string) {
		if v != nil {
			changes[col] = *v
		}
	}
	setString(store.ColumnLocation, p.Location)
	setString(store.ColumnStatus, p.Status)
	setString(store.ColumnInspector, p.Inspector)
	setString(store.ColumnType, p.Type)
	setString(store.ColumnNotes, p.Notes)
	if p.Priority != nil {
		changes[store.ColumnPriority] = string(*p.Priority)
	}
	if p.Violations != nil {
		changes[store.ColumnViolations] = EncodeViolations(*p.Violations)
	}
	if p.CoordinatesSet {
		lat, lng := encodeCoordinates(p.Coordinates)
		changes[store.ColumnLat] = lat
		changes[store.ColumnLng] = lng
	}
	return changes
}

// Decode rebuilds the API representation of a stored row.
func Decode(row store.Row) ontology.Inspection {
	return ontology.Inspection{
		ID:          row.ID,
		Location:    row.Location,
		Status:      row.Status,
		Inspector:   row.Inspector,
		Type:        row.Type,
		Priority:    ontology.Priority(row.Priority),
		Violations:  DecodeViolations(row.Violations),
		Coordinates: decodeCoordinates(row.Lat, row.Lng),
		Notes:       row.Notes,
		Date:        row.Date.UTC(),
	}
}

// DecodeAll decodes rows preserving order. The result is never nil.
func DecodeAll(rows []store.Row) []ontology.Inspection {
	out := make([]ontology.Inspection, 0, len(rows))
	for _, r := range rows {
		out = append(out, Decode(r))
	}
	return out
}

// EncodeViolations serializes the list as JSON text; nil encodes as "[]".
func EncodeViolations(v []string) string {
	if v == nil {
		v = []string{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		// []string always marshals
		panic(fmt.Sprintf("normalize: marshal violations: %v", err))
	}
	return string(data)
}

// DecodeViolations parses stored JSON text. Missing, empty, null or
// unparseable values decode to an empty list.
func DecodeViolations(s string) []string {
	out := []string{}
	if s == "" {
		return out
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil || out == nil {
		return []string{}
	}
	return out
}

func encodeCoordinates(c *ontology.Coordinates) (lat, lng *float64) {
	if c == nil {
		return nil, nil
	}
	la, ln := c.Lat, c.Lng
	return &la, &ln
}

func decodeCoordinates(lat, lng *float64) *ontology.Coordinates {
	if lat == nil || lng == nil {
		return nil
	}
	return &ontology.Coordinates{Lat: *lat, Lng: *lng}
}
