// Package validation checks inspection payloads against JSON Schemas built
// from one field table. Create and update share the per-field constraints;
// only the create schema requires fields. Unknown keys are stripped after
// validation and every failing field is reported, not just the first.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"inspections-api/pkg/ontology"
	"inspections-api/pkg/shared"
)

type Mode string

const (
	ModeCreate Mode = "create"
	ModeUpdate Mode = "update"
)

// field describes one accepted payload key.
type field struct {
	name     string
	schema   map[string]any
	required bool
}

func nonEmptyString() map[string]any {
	return map[string]any{"type": "string", "minLength": 1}
}

func priorityEnum() []any {
	out := make([]any, 0, len(ontology.Priorities))
	for _, p := range ontology.Priorities {
		out = append(out, string(p))
	}
	return out
}

// fields is the payload table, in the order errors are reported.
var fields = []field{
	{name: "location", schema: nonEmptyString(), required: true},
	{name: "status", schema: nonEmptyString(), required: true},
	{name: "inspector", schema: nonEmptyString(), required: true},
	{name: "type", schema: nonEmptyString(), required: true},
	{name: "priority", schema: map[string]any{"type": "string", "enum": priorityEnum()}},
	{name: "violations", schema: map[string]any{"type": "array", "items": map[string]any{"type": "string"}}},
	{name: "coordinates", schema: map[string]any{
		"type":     []any{"object", "null"},
		"required": []any{"lat", "lng"},
		"properties": map[string]any{
			"lat": map[string]any{"type": "number"},
			"lng": map[string]any{"type": "number"},
		},
	}},
	{name: "notes", schema: nonEmptyString(), required: true},
}

var requiredKeyword = regexp.MustCompile(`/allOf/(\d+)/required$`)

// Validator holds the compiled create and update schemas.
type Validator struct {
	create *jsonschema.Schema
	update *jsonschema.Schema
	// requiredByIndex maps allOf positions of the create schema to field names.
	requiredByIndex []string
}

// New compiles both schemas.
func New() (*Validator, error) {
	v := &Validator{}

	properties := make(map[string]any, len(fields))
	var allOf []any
	for _, f := range fields {
		properties[f.name] = f.schema
		if f.required {
			// One required clause per field so each missing key is its own error.
			allOf = append(allOf, map[string]any{"required": []any{f.name}})
			v.requiredByIndex = append(v.requiredByIndex, f.name)
		}
	}

	createDoc := map[string]any{"type": "object", "properties": properties, "allOf": allOf}
	updateDoc := map[string]any{"type": "object", "properties": properties}

	var err error
	if v.create, err = compile("inspection-create.json", createDoc); err != nil {
		return nil, err
	}
	if v.update, err = compile("inspection-update.json", updateDoc); err != nil {
		return nil, err
	}
	return v, nil
}

func compile(url string, doc map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal schema %s: %w", url, err)
	}
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource %s: %w", url, err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", url, err)
	}
	return schema, nil
}

// Validate checks payload (a value produced by encoding/json) in the given
// mode. On success it returns a copy holding only known keys, with create
// defaults applied. On failure the error is a *shared.ValidationError.
func (v *Validator) Validate(mode Mode, payload any) (map[string]any, error) {
	schema := v.update
	if mode == ModeCreate {
		schema = v.create
	}

	if err := schema.Validate(payload); err != nil {
		var verr *jsonschema.ValidationError
		if !errors.As(err, &verr) {
			return nil, fmt.Errorf("validate payload: %w", err)
		}
		return nil, &shared.ValidationError{Errors: v.messages(verr)}
	}

	obj := payload.(map[string]any)
	clean := make(map[string]any, len(fields))
	for _, f := range fields {
		if val, ok := obj[f.name]; ok {
			clean[f.name] = val
		}
	}
	if mode == ModeCreate {
		if _, ok := clean["priority"]; !ok {
			clean["priority"] = string(ontology.DefaultPriority)
		}
		if _, ok := clean["violations"]; !ok {
			clean["violations"] = []any{}
		}
	}
	return clean, nil
}

// ValidateCreate validates and converts a create payload.
func (v *Validator) ValidateCreate(payload any) (*ontology.CreateInspectionRequest, error) {
	clean, err := v.Validate(ModeCreate, payload)
	if err != nil {
		return nil, err
	}
	req := &ontology.CreateInspectionRequest{
		Location:   clean["location"].(string),
		Status:     clean["status"].(string),
		Inspector:  clean["inspector"].(string),
		Type:       clean["type"].(string),
		Priority:   ontology.Priority(clean["priority"].(string)),
		Violations: toStrings(clean["violations"].([]any)),
		Notes:      clean["notes"].(string),
	}
	if c, ok := clean["coordinates"]; ok {
		req.Coordinates = toCoordinates(c)
	}
	return req, nil
}

// ValidateUpdate validates and converts a partial update payload.
func (v *Validator) ValidateUpdate(payload any) (*ontology.InspectionPatch, error) {
	clean, err := v.Validate(ModeUpdate, payload)
	if err != nil {
		return nil, err
	}
	patch := &ontology.InspectionPatch{
		Location:  optString(clean, "location"),
		Status:    optString(clean, "status"),
		Inspector: optString(clean, "inspector"),
		Type:      optString(clean, "type"),
		Notes:     optString(clean, "notes"),
	}
	if p := optString(clean, "priority"); p != nil {
		priority := ontology.Priority(*p)
		patch.Priority = &priority
	}
	if raw, ok := clean["violations"]; ok {
		list := toStrings(raw.([]any))
		patch.Violations = &list
	}
	if c, ok := clean["coordinates"]; ok {
		patch.CoordinatesSet = true
		patch.Coordinates = toCoordinates(c)
	}
	return patch, nil
}

// messages flattens the error tree into one message per failing field.
func (v *Validator) messages(root *jsonschema.ValidationError) []string {
	byField := map[string]string{}
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) > 0 {
			for _, c := range e.Causes {
				walk(c)
			}
			return
		}
		name, msg := v.describe(e)
		if _, seen := byField[name]; !seen {
			byField[name] = msg
		}
	}
	walk(root)

	out := make([]string, 0, len(byField))
	for _, f := range fields {
		if msg, ok := byField[f.name]; ok {
			out = append(out, msg)
			delete(byField, f.name)
		}
	}
	// Root-level failures (payload not an object).
	rest := make([]string, 0, len(byField))
	for _, msg := range byField {
		rest = append(rest, msg)
	}
	sort.Strings(rest)
	return append(out, rest...)
}

func (v *Validator) describe(e *jsonschema.ValidationError) (string, string) {
	if m := requiredKeyword.FindStringSubmatch(e.KeywordLocation); m != nil {
		var idx int
		fmt.Sscanf(m[1], "%d", &idx)
		if idx < len(v.requiredByIndex) {
			name := v.requiredByIndex[idx]
			return name, fmt.Sprintf("%q is required", name)
		}
	}

	path := strings.TrimPrefix(e.InstanceLocation, "/")
	name, _, _ := strings.Cut(path, "/")
	if name == "" {
		return "", "payload " + e.Message
	}
	if name == "coordinates" && strings.HasSuffix(e.KeywordLocation, "/required") {
		return name, fmt.Sprintf("%q must contain both lat and lng", name)
	}
	return name, fmt.Sprintf("%q %s", name, e.Message)
}

func optString(m map[string]any, key string) *string {
	if v, ok := m[key]; ok {
		s := v.(string)
		return &s
	}
	return nil
}

func toStrings(items []any) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.(string))
	}
	return out
}

func toCoordinates(v any) *ontology.Coordinates {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return &ontology.Coordinates{Lat: toFloat(obj["lat"]), Lng: toFloat(obj["lng"])}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case json.Number:
		f, _ := n.Float64()
		return f
	}
	return 0
}
