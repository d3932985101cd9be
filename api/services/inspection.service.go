package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"inspections-api/pkg/normalize"
	"inspections-api/pkg/ontology"
	"inspections-api/pkg/shared"
	"inspections-api/pkg/store"
	"inspections-api/pkg/validation"
)

// EventPublisher is satisfied by *embeddednats.EmbeddedNATS.
type EventPublisher interface {
	PublishWithDedup(subject string, data []byte, msgID string) error
}

type InspectionService struct {
	store     store.Store
	validator *validation.Validator
	events    EventPublisher
	now       func() time.Time
}

// NewInspectionService wires the service. events may be nil, in which case no
// change events are published.
func NewInspectionService(st store.Store, validator *validation.Validator, events EventPublisher) *InspectionService {
	return &InspectionService{
		store:     st,
		validator: validator,
		events:    events,
		now:       time.Now,
	}
}

// SetClock replaces the time source.
func (s *InspectionService) SetClock(now func() time.Time) {
	s.now = now
}

// Store exposes the underlying record store for health checks.
func (s *InspectionService) Store() store.Store {
	return s.store
}

// timestamp is the current time at the precision the store keeps.
func (s *InspectionService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func (s *InspectionService) ListInspections(ctx context.Context) ([]ontology.Inspection, error) {
	rows, err := s.store.List(ctx)
	if err != nil {
		return nil, &shared.StorageError{Op: "list inspections", Err: err}
	}
	return normalize.DecodeAll(rows), nil
}

func (s *InspectionService) GetInspection(ctx context.Context, rawID string) (*ontology.Inspection, error) {
	id, err := ParseID(rawID)
	if err != nil {
		return nil, err
	}
	row, err := s.getRow(ctx, id)
	if err != nil {
		return nil, err
	}
	inspection := normalize.Decode(row)
	return &inspection, nil
}

// CreateInspection validates a raw JSON payload (as decoded into any) and
// persists it with a fresh id and the current date.
func (s *InspectionService) CreateInspection(ctx context.Context, payload any) (*ontology.Inspection, error) {
	req, err := s.validator.ValidateCreate(payload)
	if err != nil {
		return nil, err
	}
	return s.Create(ctx, req)
}

// Create persists an already validated request.
func (s *InspectionService) Create(ctx context.Context, req *ontology.CreateInspectionRequest) (*ontology.Inspection, error) {
	row, err := s.store.Insert(ctx, normalize.EncodeCreate(req, s.timestamp()))
	if err != nil {
		return nil, &shared.StorageError{Op: "create inspection", Err: err}
	}

	inspection := normalize.Decode(row)
	s.publishInspectionEvent(&inspection, shared.EventTypeCreated)
	return &inspection, nil
}

// UpdateInspection applies a partial update. Only supplied fields change;
// date is always refreshed.
func (s *InspectionService) UpdateInspection(ctx context.Context, rawID string, payload any) (*ontology.Inspection, error) {
	id, err := ParseID(rawID)
	if err != nil {
		return nil, err
	}
	if _, err := s.getRow(ctx, id); err != nil {
		return nil, err
	}

	patch, err := s.validator.ValidateUpdate(payload)
	if err != nil {
		return nil, err
	}
	if patch.Empty() {
		log.Printf("Inspection %d: no fields supplied, refreshing date only", id)
	}

	changes := normalize.EncodePatch(patch)
	changes[store.ColumnDate] = s.timestamp()

	row, err := s.store.Update(ctx, id, changes)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("inspection %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return nil, &shared.StorageError{Op: "update inspection", Err: err}
	}

	inspection := normalize.Decode(row)
	s.publishInspectionEvent(&inspection, shared.EventTypeUpdated)
	return &inspection, nil
}

func (s *InspectionService) DeleteInspection(ctx context.Context, rawID string) error {
	id, err := ParseID(rawID)
	if err != nil {
		return err
	}

	err = s.store.Delete(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("inspection %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return &shared.StorageError{Op: "delete inspection", Err: err}
	}

	s.publishInspectionEvent(&ontology.Inspection{ID: id}, shared.EventTypeDeleted)
	return nil
}

// ParseID parses a path id. Anything but a base-10 integer is invalid input.
func ParseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, shared.InvalidInput(shared.MsgInvalidID)
	}
	return id, nil
}

func (s *InspectionService) getRow(ctx context.Context, id int64) (store.Row, error) {
	row, err := s.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return store.Row{}, fmt.Errorf("inspection %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return store.Row{}, &shared.StorageError{Op: "get inspection", Err: err}
	}
	return row, nil
}

func (s *InspectionService) publishInspectionEvent(inspection *ontology.Inspection, eventType string) {
	if s.events == nil {
		return
	}

	event := shared.Event{
		ID:      uuid.New().String(),
		Type:    eventType,
		Subject: shared.InspectionSubject(eventType),
		Data: map[string]interface{}{
			"id": inspection.ID,
		},
		Timestamp: s.now().UTC(),
		Source:    "inspection-service",
	}

	// Add full record for create/update events
	if eventType == shared.EventTypeCreated || eventType == shared.EventTypeUpdated {
		event.Data["inspection"] = inspection
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("Failed to marshal inspection event: %v", err)
		return
	}

	msgID := fmt.Sprintf("%d-%s-%d", inspection.ID, eventType, s.now().UnixNano())

	if err := s.events.PublishWithDedup(event.Subject, data, msgID); err != nil {
		log.Printf("Failed to publish inspection event: %v", err)
	} else {
		log.Printf("Published inspection event: %s on subject: %s", eventType, event.Subject)
	}
}
