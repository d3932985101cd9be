package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/nats-io/nats.go"

	"inspections-api/pkg/shared"
)

// AuditWorker writes one log line per committed inspection change.
type AuditWorker struct {
	*BaseWorker
	record func(shared.Event)
}

func NewAuditWorker(js nats.JetStreamContext) *AuditWorker {
	w := &AuditWorker{
		BaseWorker: NewBaseWorker(
			"AuditWorker",
			js,
			shared.StreamInspections,
			shared.ConsumerAuditLog,
			shared.SubjectInspectionsAll,
		),
	}
	w.record = w.logEvent
	return w
}

func (w *AuditWorker) Start(ctx context.Context) error {
	return w.processMessages(ctx, func(msg *nats.Msg) error {
		return w.handle(msg.Subject, msg.Data)
	})
}

func (w *AuditWorker) handle(subject string, data []byte) error {
	event, err := DecodeEvent(data)
	if err != nil {
		// A payload that never decodes would be redelivered forever; log and ack.
		log.Printf("[%s] Undecodable message on %s: %v", w.Name(), subject, err)
		return nil
	}
	if event.Subject != "" && event.Subject != subject {
		log.Printf("[%s] Event %s published on %s but addressed to %s", w.Name(), event.ID, subject, event.Subject)
	}
	w.record(event)
	return nil
}

func (w *AuditWorker) logEvent(event shared.Event) {
	log.Printf("[%s] inspection %v %s at %s (event %s)",
		w.Name(), event.Data["id"], event.Type, event.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"), event.ID)
}

// DecodeEvent parses a change-feed message.
func DecodeEvent(data []byte) (shared.Event, error) {
	var event shared.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return shared.Event{}, fmt.Errorf("decode event: %w", err)
	}
	if event.Type == "" {
		return shared.Event{}, fmt.Errorf("decode event: missing type")
	}
	return event, nil
}
