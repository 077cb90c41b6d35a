package activity

import (
	"context"
	"testing"
	"time"

	"crm-service/internal/domain/activity"
	"crm-service/internal/pkg/actor"
	"crm-service/internal/store"
	"crm-service/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestActivityService_RecordFillsDefaults(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s := memory.New(memory.WithClock(func() time.Time { return now }))
	svc := NewActivityService(s, zap.NewNop())

	ctx := actor.WithID(context.Background(), "agent-7")
	a := &activity.Activity{Type: activity.TypeNote, CustomerID: "c1", Description: "called back"}
	require.NoError(t, svc.Record(ctx, a))

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "agent-7", a.ActorID)
	assert.Equal(t, now, a.CreatedAt)
	assert.Equal(t, 1, s.Count(store.CollectionActivities))
}

func TestActivityService_RejectsMultipleOwners(t *testing.T) {
	svc := NewActivityService(memory.New(), zap.NewNop())
	err := svc.Record(context.Background(), &activity.Activity{
		Type:           activity.TypeNote,
		CustomerID:     "c1",
		ConversationID: "v1",
	})
	assert.Error(t, err)
}

func TestActivityService_ListByOwner(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	svc := NewActivityService(s, zap.NewNop())

	require.NoError(t, svc.Record(ctx, &activity.Activity{Type: activity.TypeNote, CustomerID: "c1"}))
	require.NoError(t, svc.Record(ctx, &activity.Activity{Type: activity.TypeNote, CustomerID: "c2"}))
	require.NoError(t, svc.Record(ctx, &activity.Activity{Type: activity.TypeNote, ConversationID: "v1"}))

	got, err := svc.ListByOwner(ctx, "customerId", []string{"c1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "system", got[0].ActorID)

	got, err = svc.ListByOwner(ctx, "conversationId", []string{"v1", "v2"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
