package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inspections-api/pkg/store"
	"inspections-api/pkg/store/storetest"
)

func TestMemoryStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return New() })
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	m := New()
	lat, lng := 1.0, 2.0
	row := storetest.Row("Site A", 0)
	row.Lat, row.Lng = &lat, &lng

	inserted, err := m.Insert(context.Background(), row)
	require.NoError(t, err)

	*inserted.Lat = 99
	lat = 50

	got, err := m.Get(context.Background(), inserted.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, *got.Lat)
}
