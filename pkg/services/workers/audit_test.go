package workers

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inspections-api/pkg/shared"
)

func TestDecodeEvent(t *testing.T) {
	data, err := json.Marshal(shared.Event{
		ID:        "e-1",
		Type:      shared.EventTypeUpdated,
		Subject:   shared.SubjectInspectionUpdated,
		Data:      map[string]interface{}{"id": 7},
		Timestamp: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Source:    "inspection-service",
	})
	require.NoError(t, err)

	event, err := DecodeEvent(data)
	require.NoError(t, err)
	assert.Equal(t, shared.EventTypeUpdated, event.Type)
	assert.Equal(t, float64(7), event.Data["id"])

	_, err = DecodeEvent([]byte(`{"id":"x"}`))
	assert.Error(t, err)
	_, err = DecodeEvent([]byte(`not json`))
	assert.Error(t, err)
}

func TestAuditWorkerHandle(t *testing.T) {
	w := NewAuditWorker(nil)
	assert.Equal(t, "AuditWorker", w.Name())

	var seen []shared.Event
	w.record = func(e shared.Event) { seen = append(seen, e) }

	data := []byte(`{"id":"e-2","type":"deleted","subject":"inspections.deleted","data":{"id":3}}`)
	require.NoError(t, w.handle(shared.SubjectInspectionDeleted, data))
	require.NoError(t, w.handle(shared.SubjectInspectionDeleted, []byte("garbage")))

	require.Len(t, seen, 1)
	assert.Equal(t, "e-2", seen[0].ID)
	assert.NoError(t, w.Stop())
}

func TestInspectionSubject(t *testing.T) {
	assert.Equal(t, "inspections.created", shared.InspectionSubject(shared.EventTypeCreated))
	assert.Equal(t, "inspections.archived", shared.InspectionSubject("archived"))
}
