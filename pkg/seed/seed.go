// Package seed loads the bundled sample inspections into a store.
package seed

import (
	"context"
	_ "embed"
	"fmt"
	"log"

	"gopkg.in/yaml.v3"

	"inspections-api/pkg/ontology"
)

//go:embed inspections.yaml
var fixture []byte

type document struct {
	Inspections []ontology.CreateInspectionRequest `yaml:"inspections"`
}

// Creator persists one validated request. *services.InspectionService
// satisfies it.
type Creator interface {
	Create(ctx context.Context, req *ontology.CreateInspectionRequest) (*ontology.Inspection, error)
}

// Fixture returns the bundled sample records.
func Fixture() ([]ontology.CreateInspectionRequest, error) {
	return Parse(fixture)
}

// Parse decodes a seed document.
func Parse(data []byte) ([]ontology.CreateInspectionRequest, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse seed data: %w", err)
	}
	for i, req := range doc.Inspections {
		if req.Location == "" || req.Status == "" || req.Inspector == "" || req.Type == "" || req.Notes == "" {
			return nil, fmt.Errorf("seed record %d is missing a required field", i)
		}
		if req.Priority != "" && !req.Priority.Valid() {
			return nil, fmt.Errorf("seed record %d has unknown priority %q", i, req.Priority)
		}
	}
	return doc.Inspections, nil
}

// Run inserts every fixture record through svc and returns what was stored.
func Run(ctx context.Context, svc Creator) ([]ontology.Inspection, error) {
	reqs, err := Fixture()
	if err != nil {
		return nil, err
	}

	created := make([]ontology.Inspection, 0, len(reqs))
	for i := range reqs {
		inspection, err := svc.Create(ctx, &reqs[i])
		if err != nil {
			return created, fmt.Errorf("failed to seed %q: %w", reqs[i].Location, err)
		}
		created = append(created, *inspection)
	}

	log.Printf("Seeded %d inspections", len(created))
	return created, nil
}
