package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inspections-api/pkg/ontology"
	"inspections-api/pkg/shared"
	"inspections-api/pkg/store"
	"inspections-api/pkg/store/memstore"
	"inspections-api/pkg/validation"
)

type published struct {
	subject string
	event   shared.Event
	msgID   string
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) PublishWithDedup(subject string, data []byte, msgID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	var event shared.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return err
	}
	p.msgs = append(p.msgs, published{subject: subject, event: event, msgID: msgID})
	return nil
}

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	svc    *InspectionService
	store  *memstore.MemoryStore
	events *fakePublisher
	clock  *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	v, err := validation.New()
	require.NoError(t, err)

	f := &fixture{
		store:  memstore.New(),
		events: &fakePublisher{},
		clock:  &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 123_456_789, time.UTC)},
	}
	f.svc = NewInspectionService(f.store, v, f.events)
	f.svc.SetClock(f.clock.Now)
	return f
}

func decode(t *testing.T, raw string) any {
	t.Helper()
	var out any
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}

const siteA = `{"location":"Site A","status":"Pending","inspector":"J. Doe","type":"Air","notes":"check"}`

func (f *fixture) create(t *testing.T, raw string) *ontology.Inspection {
	t.Helper()
	created, err := f.svc.CreateInspection(context.Background(), decode(t, raw))
	require.NoError(t, err)
	return created
}

func TestCreateInspectionDefaults(t *testing.T) {
	f := newFixture(t)

	created := f.create(t, siteA)

	assert.Positive(t, created.ID)
	assert.Equal(t, "Site A", created.Location)
	assert.Equal(t, ontology.PriorityMedium, created.Priority)
	assert.Equal(t, []string{}, created.Violations)
	assert.Nil(t, created.Coordinates)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 123_000_000, time.UTC), created.Date)
}

func TestCreateInspectionIDsAreUnique(t *testing.T) {
	f := newFixture(t)

	seen := map[int64]bool{}
	for i := 0; i < 5; i++ {
		created := f.create(t, siteA)
		assert.False(t, seen[created.ID], "id %d reissued", created.ID)
		seen[created.ID] = true
	}
}

func TestCreateThenGetCoordinates(t *testing.T) {
	f := newFixture(t)

	created := f.create(t, `{"location":"Site A","status":"Pending","inspector":"J. Doe","type":"Air","notes":"check","coordinates":{"lat":40.71,"lng":-74.0}}`)

	got, err := f.svc.GetInspection(context.Background(), formatID(created.ID))
	require.NoError(t, err)
	assert.Equal(t, &ontology.Coordinates{Lat: 40.71, Lng: -74.0}, got.Coordinates)
}

func TestCreateInspectionValidationFailure(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateInspection(context.Background(), decode(t, `{"location":"Site A"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	var verr *shared.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Errors, 4)

	rows, err := f.store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Empty(t, f.events.msgs)
}

func TestGetInspectionInvalidID(t *testing.T) {
	f := newFixture(t)

	for _, raw := range []string{"abc", "", "1.5", "12abc", "0x10"} {
		_, err := f.svc.GetInspection(context.Background(), raw)
		assert.ErrorIs(t, err, shared.ErrInvalidInput, raw)
		assert.NotErrorIs(t, err, shared.ErrNotFound, raw)
		assert.EqualError(t, err, shared.MsgInvalidID)
	}
}

func TestGetInspectionNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetInspection(context.Background(), "404")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestUpdateInspectionChangesOnlySuppliedFields(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, siteA)
	f.clock.Advance(time.Hour)

	updated, err := f.svc.UpdateInspection(context.Background(), formatID(created.ID), decode(t, `{"priority":"High"}`))
	require.NoError(t, err)

	assert.Equal(t, ontology.PriorityHigh, updated.Priority)
	assert.Equal(t, created.Date.Add(time.Hour), updated.Date)

	expected := *created
	expected.Priority = ontology.PriorityHigh
	expected.Date = updated.Date
	assert.Equal(t, expected, *updated)
}

func TestUpdateInspectionEmptyPayloadRefreshesDate(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, siteA)
	f.clock.Advance(90 * time.Second)

	var logs bytes.Buffer
	log.SetOutput(&logs)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	updated, err := f.svc.UpdateInspection(context.Background(), formatID(created.ID), decode(t, `{}`))
	require.NoError(t, err)

	assert.Contains(t, logs.String(), "refreshing date only")
	assert.True(t, updated.Date.After(created.Date))
	expected := *created
	expected.Date = updated.Date
	assert.Equal(t, expected, *updated)
}

func TestUpdateInspectionCoordinates(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, siteA)
	ctx := context.Background()
	id := formatID(created.ID)

	updated, err := f.svc.UpdateInspection(ctx, id, decode(t, `{"coordinates":{"lat":0,"lng":0}}`))
	require.NoError(t, err)
	assert.Equal(t, &ontology.Coordinates{}, updated.Coordinates)

	updated, err = f.svc.UpdateInspection(ctx, id, decode(t, `{"notes":"still here"}`))
	require.NoError(t, err)
	assert.Equal(t, &ontology.Coordinates{}, updated.Coordinates)

	updated, err = f.svc.UpdateInspection(ctx, id, decode(t, `{"coordinates":null}`))
	require.NoError(t, err)
	assert.Nil(t, updated.Coordinates)
}

func TestUpdateInspectionErrors(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, siteA)
	ctx := context.Background()

	_, err := f.svc.UpdateInspection(ctx, "nope", decode(t, `{"priority":"Bogus"}`))
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
	assert.EqualError(t, err, shared.MsgInvalidID)

	_, err = f.svc.UpdateInspection(ctx, "999", decode(t, `{"priority":"Bogus"}`))
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = f.svc.UpdateInspection(ctx, formatID(created.ID), decode(t, `{"priority":"Bogus"}`))
	var verr *shared.ValidationError
	require.True(t, errors.As(err, &verr))

	got, err := f.svc.GetInspection(ctx, formatID(created.ID))
	require.NoError(t, err)
	assert.Equal(t, *created, *got)
}

func TestDeleteInspection(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, siteA)
	ctx := context.Background()
	id := formatID(created.ID)

	require.NoError(t, f.svc.DeleteInspection(ctx, id))

	_, err := f.svc.GetInspection(ctx, id)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.ErrorIs(t, f.svc.DeleteInspection(ctx, id), shared.ErrNotFound)
	assert.ErrorIs(t, f.svc.DeleteInspection(ctx, "x"), shared.ErrInvalidInput)
}

func TestListInspectionsNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	empty, err := f.svc.ListInspections(ctx)
	require.NoError(t, err)
	assert.NotNil(t, empty)

	first := f.create(t, siteA)
	f.clock.Advance(time.Minute)
	second := f.create(t, siteA)
	f.clock.Advance(time.Minute)
	_, err = f.svc.UpdateInspection(ctx, formatID(first.ID), decode(t, `{}`))
	require.NoError(t, err)

	list, err := f.svc.ListInspections(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
}

func TestMutationsPublishEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created := f.create(t, siteA)
	_, err := f.svc.UpdateInspection(ctx, formatID(created.ID), decode(t, `{"status":"Closed"}`))
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteInspection(ctx, formatID(created.ID)))

	require.Len(t, f.events.msgs, 3)

	subjects := []string{f.events.msgs[0].subject, f.events.msgs[1].subject, f.events.msgs[2].subject}
	assert.Equal(t, []string{
		shared.SubjectInspectionCreated,
		shared.SubjectInspectionUpdated,
		shared.SubjectInspectionDeleted,
	}, subjects)

	createdEvent := f.events.msgs[0].event
	assert.Equal(t, shared.EventTypeCreated, createdEvent.Type)
	assert.Equal(t, float64(created.ID), createdEvent.Data["id"])
	assert.Contains(t, createdEvent.Data, "inspection")
	assert.NotEmpty(t, createdEvent.ID)

	assert.NotContains(t, f.events.msgs[2].event.Data, "inspection")
	assert.NotEqual(t, f.events.msgs[0].msgID, f.events.msgs[1].msgID)
}

func TestPublishFailureDoesNotFailRequest(t *testing.T) {
	f := newFixture(t)
	f.events.err = errors.New("nats down")

	created, err := f.svc.CreateInspection(context.Background(), decode(t, siteA))
	require.NoError(t, err)
	assert.Positive(t, created.ID)
}

func TestNilPublisher(t *testing.T) {
	v, err := validation.New()
	require.NoError(t, err)
	svc := NewInspectionService(memstore.New(), v, nil)

	_, err = svc.CreateInspection(context.Background(), decode(t, siteA))
	require.NoError(t, err)
}

type failingStore struct {
	store.Store
}

func (failingStore) List(context.Context) ([]store.Row, error) {
	return nil, errors.New("disk on fire")
}

func (failingStore) Get(context.Context, int64) (store.Row, error) {
	return store.Row{}, errors.New("disk on fire")
}

func TestStorageFailuresAreTagged(t *testing.T) {
	v, err := validation.New()
	require.NoError(t, err)
	svc := NewInspectionService(failingStore{Store: memstore.New()}, v, nil)

	_, err = svc.ListInspections(context.Background())
	assert.ErrorIs(t, err, shared.ErrStorageFailure)
	assert.NotErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.GetInspection(context.Background(), "1")
	assert.ErrorIs(t, err, shared.ErrStorageFailure)
}

func TestParseID(t *testing.T) {
	id, err := ParseID(" 42 ")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = ParseID("9999999999999999999999")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}
