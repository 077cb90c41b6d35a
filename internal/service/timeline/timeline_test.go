package timeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"crm-service/internal/domain/activity"
	"crm-service/internal/domain/cases"
	"crm-service/internal/domain/conversation"
	"crm-service/internal/domain/customer"
	xerrors "crm-service/internal/pkg/errors"
	activitysvc "crm-service/internal/service/activity"
	"crm-service/internal/store"
	"crm-service/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	t1 = time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	t2 = t1.Add(time.Hour)
	t3 = t2.Add(time.Hour)
	t4 = t3.Add(time.Hour)
	t5 = t4.Add(time.Hour)
)

func setupTimeline(t *testing.T) (*TimelineService, *memory.Store) {
	t.Helper()
	ctx := context.Background()
	s := memory.New()

	put := func(collection, id string, v interface{}) {
		require.NoError(t, s.Set(ctx, collection, id, v))
	}

	put(store.CollectionCustomers, "c1", customer.Customer{ID: "c1", Name: "Ayse", MergedIDs: []string{"old"}})
	put(store.CollectionConversations, "v1", conversation.Conversation{ID: "v1", CustomerID: "c1", Channel: "whatsapp", MergedFrom: []string{"v0"}})
	put(store.CollectionCases, "k1", cases.Case{ID: "k1", CustomerID: "c1"})

	put(store.CollectionActivities, "a1", activity.Activity{ID: "a1", Type: activity.TypeCustomerCreated, CustomerID: "c1", CreatedAt: t1})
	put(store.CollectionMessages, "m2", conversation.Message{ID: "m2", ConversationID: "v1", Direction: conversation.DirectionInbound, Body: "hi", CreatedAt: t2})
	put(store.CollectionActivities, "a3", activity.Activity{ID: "a3", Type: activity.TypeCaseOutcomeRecorded, CaseID: "k1", CreatedAt: t3})
	put(store.CollectionMessages, "m4", conversation.Message{ID: "m4", ConversationID: "v1", Direction: conversation.DirectionOutbound, Body: "hello", CreatedAt: t4})

	// no timestamp: excluded
	put(store.CollectionActivities, "a0", activity.Activity{ID: "a0", Type: activity.TypeNote, CustomerID: "c1"})
	// someone else's
	put(store.CollectionActivities, "ax", activity.Activity{ID: "ax", Type: activity.TypeNote, CustomerID: "c2", CreatedAt: t5})

	return NewTimelineService(s, activitysvc.NewActivityService(s, zap.NewNop()), zap.NewNop()), s
}

func entryIDs(entries []activity.TimelineEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID)
	}
	return out
}

func TestGetUnifiedTimeline_OrdersNewestFirst(t *testing.T) {
	svc, _ := setupTimeline(t)

	entries, err := svc.GetUnifiedTimeline(context.Background(), "c1", activity.TimelineOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"m4", "a3", "m2", "a1"}, entryIDs(entries))
	assert.Equal(t, activity.EntryMessageOutbound, entries[0].Type)
	assert.Equal(t, "whatsapp", entries[0].Channel)
	assert.Equal(t, activity.EntryMessageInbound, entries[2].Type)
	assert.Equal(t, activity.SourceActivity, entries[1].Source)
}

func TestGetUnifiedTimeline_IncludesAbsorbedHistory(t *testing.T) {
	svc, s := setupTimeline(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, store.CollectionActivities, "old1", activity.Activity{
		ID: "old1", Type: activity.TypeNote, CustomerID: "old", CreatedAt: t1.Add(-time.Hour),
	}))
	require.NoError(t, s.Set(ctx, store.CollectionActivities, "v0a", activity.Activity{
		ID: "v0a", Type: activity.TypeNote, ConversationID: "v0", CreatedAt: t1.Add(-2 * time.Hour),
	}))

	entries, err := svc.GetUnifiedTimeline(ctx, "c1", activity.TimelineOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"m4", "a3", "m2", "a1", "old1", "v0a"}, entryIDs(entries))
}

func TestGetUnifiedTimeline_Options(t *testing.T) {
	svc, _ := setupTimeline(t)
	ctx := context.Background()
	no := false

	entries, err := svc.GetUnifiedTimeline(ctx, "c1", activity.TimelineOptions{IncludeMessages: &no})
	require.NoError(t, err)
	assert.Equal(t, []string{"a3", "a1"}, entryIDs(entries))

	entries, err = svc.GetUnifiedTimeline(ctx, "c1", activity.TimelineOptions{Before: &t4, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"a3", "m2"}, entryIDs(entries))

	entries, err = svc.GetUnifiedTimeline(ctx, "c1", activity.TimelineOptions{Types: []string{activity.EntryMessageInbound}})
	require.NoError(t, err)
	assert.Equal(t, []string{"m2"}, entryIDs(entries))
}

func TestGetUnifiedTimeline_UnknownCustomer(t *testing.T) {
	svc, _ := setupTimeline(t)
	_, err := svc.GetUnifiedTimeline(context.Background(), "nope", activity.TimelineOptions{})
	assert.True(t, errors.Is(err, xerrors.ErrNotFound))
}

func TestFilterAndSort_IsStable(t *testing.T) {
	entries := []activity.TimelineEntry{
		{ID: "first", Timestamp: t1},
		{ID: "second", Timestamp: t1},
		{ID: "zero"},
	}
	got := filterAndSort(entries, activity.TimelineOptions{})
	assert.Equal(t, []string{"first", "second"}, entryIDs(got))
}
