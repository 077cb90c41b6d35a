package firestore

import (
	"context"
	"errors"
	"os"
	"testing"

	xerrors "crm-service/internal/pkg/errors"
	"crm-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against the Firestore emulator when FIRESTORE_EMULATOR_HOST is set.
func setupTestStore(t *testing.T) *DocumentStore {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	s, err := NewDocumentStore(context.Background(), "crm-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestToUpdates(t *testing.T) {
	updates := toUpdates(map[string]interface{}{"company.name": "Acme"})
	require.Len(t, updates, 1)
	assert.Equal(t, "company.name", updates[0].Path)
	assert.Equal(t, "Acme", updates[0].Value)
}

func TestDocumentStore_Emulator(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	collection := "test_" + s.NewID()

	require.NoError(t, s.Set(ctx, collection, "a", map[string]interface{}{"ownerId": "o1"}))
	require.NoError(t, s.Update(ctx, collection, "a", map[string]interface{}{"info.city": "Izmir"}))

	snaps, err := s.Query(ctx, collection, store.Query{Filters: []store.Filter{store.Where("info.city", "Izmir")}})
	require.NoError(t, err)
	require.Len(t, snaps, 1)

	b := s.Batch()
	b.Set(collection, "b", map[string]interface{}{"ownerId": "o2"})
	b.Update(collection, "missing", map[string]interface{}{"ownerId": "x"})
	require.Error(t, b.Commit(ctx))

	_, err = s.Get(ctx, collection, "b")
	assert.True(t, errors.Is(err, xerrors.ErrNotFound))
}
