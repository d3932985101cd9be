// Package storetest is a conformance suite every store.Store driver runs
// from its own tests.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inspections-api/pkg/store"
)

// Factory returns an empty store. The suite closes it.
type Factory func(t *testing.T) store.Store

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func float(v float64) *float64 { return &v }

// Row builds a valid row dated offset after a fixed base time.
func Row(location string, offset time.Duration) store.Row {
	return store.Row{
		Location:   location,
		Status:     "Pending",
		Inspector:  "Jane Doe",
		Type:       "Air",
		Priority:   "Medium",
		Violations: "[]",
		Notes:      "routine",
		Date:       base.Add(offset),
	}
}

// Run executes the suite against fresh stores from newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, st store.Store)
	}{
		{"InsertAssignsIncreasingIDs", testInsertAssignsIDs},
		{"GetRoundTripsEveryColumn", testGetRoundTrip},
		{"GetMissing", testGetMissing},
		{"ListOrdersByDateThenID", testListOrder},
		{"UpdateAppliesOnlyChangedColumns", testUpdate},
		{"UpdateClearsCoordinates", testUpdateClearsCoordinates},
		{"UpdateMissing", testUpdateMissing},
		{"UpdateRejectsUnknownColumn", testUpdateRejectsUnknownColumn},
		{"DeleteRemovesRow", testDelete},
		{"IDsAreNotReused", testIDsNotReused},
		{"SearchIsCaseInsensitive", testSearch},
		{"SearchFoldsNonASCII", testSearchUnicode},
		{"SearchTreatsWildcardsLiterally", testSearchWildcards},
		{"CountByGroups", testCountBy},
		{"CountFilters", testCount},
		{"ResetKeepsSequence", testReset},
		{"ConcurrentUpdates", testConcurrentUpdates},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newStore(t)
			t.Cleanup(func() { st.Close() })
			tt.fn(t, st)
		})
	}
}

func insert(t *testing.T, st store.Store, row store.Row) store.Row {
	t.Helper()
	out, err := st.Insert(context.Background(), row)
	require.NoError(t, err)
	return out
}

func testInsertAssignsIDs(t *testing.T, st store.Store) {
	a := insert(t, st, Row("Site A", 0))
	b := insert(t, st, Row("Site B", time.Minute))

	assert.Positive(t, a.ID)
	assert.Greater(t, b.ID, a.ID)
	assert.Equal(t, "Site A", a.Location)
}

func testGetRoundTrip(t *testing.T, st store.Store) {
	row := Row("Facility A", 0)
	row.Priority = "High"
	row.Violations = `["Emission exceeded"]`
	row.Lat = float(40.7128)
	row.Lng = float(-74.006)
	row.Date = base.Add(1500 * time.Millisecond)
	inserted := insert(t, st, row)

	got, err := st.Get(context.Background(), inserted.ID)
	require.NoError(t, err)

	assert.Equal(t, inserted.ID, got.ID)
	assert.Equal(t, "Facility A", got.Location)
	assert.Equal(t, "High", got.Priority)
	assert.Equal(t, `["Emission exceeded"]`, got.Violations)
	require.NotNil(t, got.Lat)
	require.NotNil(t, got.Lng)
	assert.Equal(t, 40.7128, *got.Lat)
	assert.Equal(t, -74.006, *got.Lng)
	assert.True(t, row.Date.Equal(got.Date), "date %s != %s", got.Date, row.Date)
}

func testGetMissing(t *testing.T, st store.Store) {
	_, err := st.Get(context.Background(), 999)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testListOrder(t *testing.T, st store.Store) {
	old := insert(t, st, Row("old", 0))
	newest := insert(t, st, Row("newest", 2*time.Hour))
	tieLow := insert(t, st, Row("tie-low", time.Hour))
	tieHigh := insert(t, st, Row("tie-high", time.Hour))

	rows, err := st.List(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 4)

	ids := []int64{rows[0].ID, rows[1].ID, rows[2].ID, rows[3].ID}
	assert.Equal(t, []int64{newest.ID, tieHigh.ID, tieLow.ID, old.ID}, ids)
}

func testUpdate(t *testing.T, st store.Store) {
	row := Row("Site A", 0)
	row.Lat = float(1.5)
	row.Lng = float(2.5)
	inserted := insert(t, st, row)

	later := base.Add(24 * time.Hour)
	updated, err := st.Update(context.Background(), inserted.ID, store.Changes{
		store.ColumnPriority: "High",
		store.ColumnDate:     later,
	})
	require.NoError(t, err)

	assert.Equal(t, "High", updated.Priority)
	assert.True(t, later.Equal(updated.Date))
	assert.Equal(t, "Site A", updated.Location)
	assert.Equal(t, "routine", updated.Notes)
	require.NotNil(t, updated.Lat)
	assert.Equal(t, 1.5, *updated.Lat)

	got, err := st.Get(context.Background(), inserted.ID)
	require.NoError(t, err)
	assert.Equal(t, "High", got.Priority)
	assert.True(t, later.Equal(got.Date))
}

func testUpdateClearsCoordinates(t *testing.T, st store.Store) {
	row := Row("Site A", 0)
	row.Lat = float(0)
	row.Lng = float(0)
	inserted := insert(t, st, row)

	got, err := st.Get(context.Background(), inserted.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Lat, "zero latitude must survive storage")

	var none *float64
	updated, err := st.Update(context.Background(), inserted.ID, store.Changes{
		store.ColumnLat: none,
		store.ColumnLng: none,
	})
	require.NoError(t, err)
	assert.Nil(t, updated.Lat)
	assert.Nil(t, updated.Lng)
}

func testUpdateMissing(t *testing.T, st store.Store) {
	_, err := st.Update(context.Background(), 42, store.Changes{store.ColumnStatus: "Closed"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testUpdateRejectsUnknownColumn(t *testing.T, st store.Store) {
	inserted := insert(t, st, Row("Site A", 0))

	_, err := st.Update(context.Background(), inserted.ID, store.Changes{"id": int64(7)})
	require.Error(t, err)

	got, err := st.Get(context.Background(), inserted.ID)
	require.NoError(t, err)
	assert.Equal(t, inserted.ID, got.ID)
}

func testDelete(t *testing.T, st store.Store) {
	inserted := insert(t, st, Row("Site A", 0))
	ctx := context.Background()

	require.NoError(t, st.Delete(ctx, inserted.ID))

	_, err := st.Get(ctx, inserted.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, st.Delete(ctx, inserted.ID), store.ErrNotFound)
}

func testIDsNotReused(t *testing.T, st store.Store) {
	first := insert(t, st, Row("a", 0))
	second := insert(t, st, Row("b", 0))
	require.NoError(t, st.Delete(context.Background(), second.ID))

	third := insert(t, st, Row("c", 0))
	assert.Greater(t, third.ID, second.ID)
	assert.NotEqual(t, first.ID, third.ID)
}

func testSearch(t *testing.T, st store.Store) {
	air := insert(t, st, Row("Plant North", time.Hour))
	water := Row("River Mouth", 2*time.Hour)
	water.Type = "Water"
	water.Notes = "no AIR sampling"
	waterRow := insert(t, st, water)
	soil := Row("Field", 0)
	soil.Type = "Soil"
	insert(t, st, soil)

	rows, err := st.Search(context.Background(), "air")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, waterRow.ID, rows[0].ID)
	assert.Equal(t, air.ID, rows[1].ID)

	rows, err = st.Search(context.Background(), "nothing-matches")
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func testSearchUnicode(t *testing.T, st store.Store) {
	ecole := insert(t, st, Row("École Nord", 0))
	insert(t, st, Row("Ecole Sud", time.Minute))

	for _, q := range []string{"école", "ÉCOLE", "cole nord"} {
		rows, err := st.Search(context.Background(), q)
		require.NoError(t, err)
		require.Len(t, rows, 1, q)
		assert.Equal(t, ecole.ID, rows[0].ID, q)
	}
}

func testSearchWildcards(t *testing.T, st store.Store) {
	insert(t, st, Row("Site A", 0))
	pct := Row("Tank 100% full", time.Minute)
	insert(t, st, pct)

	rows, err := st.Search(context.Background(), "%")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Tank 100% full", rows[0].Location)

	rows, err = st.Search(context.Background(), "_")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func testCountBy(t *testing.T, st store.Store) {
	a := Row("a", 0)
	a.Priority = "High"
	insert(t, st, a)
	b := Row("b", 0)
	b.Priority = "Low"
	b.Status = "Completed"
	b.Type = "Water"
	insert(t, st, b)
	insert(t, st, Row("c", 0))

	ctx := context.Background()
	byPriority, err := st.CountBy(ctx, store.ColumnPriority)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"High": 1, "Low": 1, "Medium": 1}, byPriority)

	byStatus, err := st.CountBy(ctx, store.ColumnStatus)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Pending": 2, "Completed": 1}, byStatus)

	byType, err := st.CountBy(ctx, store.ColumnType)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Air": 2, "Water": 1}, byType)

	_, err = st.CountBy(ctx, store.ColumnNotes)
	assert.Error(t, err)
}

func testCount(t *testing.T, st store.Store) {
	withViolations := Row("a", -40*24*time.Hour)
	withViolations.Violations = `["leak"]`
	insert(t, st, withViolations)
	insert(t, st, Row("b", 0))
	empty := Row("c", -time.Hour)
	empty.Violations = ""
	insert(t, st, empty)

	ctx := context.Background()
	total, err := st.Count(ctx, store.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	n, err := st.Count(ctx, store.Filter{WithViolations: true})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = st.Count(ctx, store.Filter{Since: base.Add(-30 * 24 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = st.Count(ctx, store.Filter{Since: base})
	require.NoError(t, err)
	assert.Equal(t, 1, n, "Since is inclusive")
}

func testReset(t *testing.T, st store.Store) {
	resetter, ok := st.(store.Resetter)
	if !ok {
		t.Skip("driver has no Reset")
	}
	ctx := context.Background()
	insert(t, st, Row("a", 0))
	last := insert(t, st, Row("b", 0))

	require.NoError(t, resetter.Reset(ctx))

	rows, err := st.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)

	next := insert(t, st, Row("c", 0))
	assert.Greater(t, next.ID, last.ID)
}

func testConcurrentUpdates(t *testing.T, st store.Store) {
	ctx := context.Background()
	inserted := insert(t, st, Row("Site A", 0))

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := st.Update(ctx, inserted.ID, store.Changes{
				store.ColumnNotes: "note",
				store.ColumnDate:  base.Add(time.Duration(i) * time.Second),
			})
			errs <- err
		}(i)
		go func() {
			defer wg.Done()
			_, err := st.Insert(ctx, Row("Other", 0))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	rows, err := st.List(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 11)

	got, err := st.Get(ctx, inserted.ID)
	require.NoError(t, err)
	assert.Equal(t, "note", got.Notes)
	assert.Equal(t, "Site A", got.Location)
}
