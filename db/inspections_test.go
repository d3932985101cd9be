package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inspections-api/pkg/store"
	"inspections-api/pkg/store/storetest"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "inspections.db")
	svc, err := New(cfg)
	require.NoError(t, err)
	return svc
}

func TestInspectionStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return NewInspectionStore(newTestService(t))
	})
}

func TestNewInitializesSchema(t *testing.T) {
	svc := newTestService(t)
	defer svc.Close()

	require.NoError(t, svc.VerifySchema())
	require.NoError(t, svc.Health(context.Background()))
	// Idempotent.
	require.NoError(t, svc.InitializeSchema())
}

func TestVerifySchemaFailsWithoutTable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "empty.db")
	cfg.AutoInitialize = false
	svc, err := New(cfg)
	require.NoError(t, err)
	defer svc.Close()

	assert.Error(t, svc.VerifySchema())
}

func TestPriorityCheckConstraint(t *testing.T) {
	st := NewInspectionStore(newTestService(t))
	defer st.Close()

	row := storetest.Row("Site A", 0)
	row.Priority = "Urgent"
	_, err := st.Insert(context.Background(), row)
	assert.Error(t, err)
}

func TestTransactionRollsBack(t *testing.T) {
	svc := newTestService(t)
	st := NewInspectionStore(svc)
	defer st.Close()
	ctx := context.Background()

	inserted, err := st.Insert(ctx, storetest.Row("Site A", 0))
	require.NoError(t, err)

	// Updating with a priority the CHECK constraint rejects must leave the row untouched.
	_, err = st.Update(ctx, inserted.ID, store.Changes{
		store.ColumnNotes:    "changed",
		store.ColumnPriority: "Urgent",
	})
	require.Error(t, err)

	got, err := st.Get(ctx, inserted.ID)
	require.NoError(t, err)
	assert.Equal(t, "routine", got.Notes)
	assert.Equal(t, "Medium", got.Priority)
}

func TestFoldFunction(t *testing.T) {
	svc := newTestService(t)
	defer svc.Close()

	var folded string
	require.NoError(t, svc.DB.QueryRowContext(context.Background(), `SELECT fold('ÉCOLE Nord')`).Scan(&folded))
	assert.Equal(t, "école nord", folded)
}
