package shared

// NATS Subject patterns
const (
	SubjectPrefix = "inspections"

	SubjectInspectionsAll    = "inspections.>"
	SubjectInspectionCreated = "inspections.created"
	SubjectInspectionUpdated = "inspections.updated"
	SubjectInspectionDeleted = "inspections.deleted"
)

// Stream names
const (
	StreamInspections = "INSPECTIONS"
)

// Consumer names
const (
	ConsumerAuditLog = "inspection-audit"
)

// InspectionSubject maps an event type to its subject.
func InspectionSubject(eventType string) string {
	switch eventType {
	case EventTypeCreated:
		return SubjectInspectionCreated
	case EventTypeUpdated:
		return SubjectInspectionUpdated
	case EventTypeDeleted:
		return SubjectInspectionDeleted
	}
	return SubjectPrefix + "." + eventType
}
