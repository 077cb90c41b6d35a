package migration

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"crm-service/internal/domain/conversation"
	"crm-service/internal/domain/customer"
	xerrors "crm-service/internal/pkg/errors"
	activitysvc "crm-service/internal/service/activity"
	"crm-service/internal/store"
	"crm-service/internal/store/memory"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func day(d int) time.Time {
	return time.Date(2024, 2, d, 9, 0, 0, 0, time.UTC)
}

// seedConversations stores a 3-thread identity (bridged email and phone), a
// 2-thread identity (phone in two formats), a singleton and an unkeyed thread.
// Every thread has two messages.
func seedConversations(t *testing.T, s *memory.Store) {
	t.Helper()
	ctx := context.Background()

	convs := []conversation.Conversation{
		{ID: "a1", CreatedAt: day(1), Sender: conversation.Sender{Email: "a@example.com"}},
		{ID: "a2", CreatedAt: day(2), Sender: conversation.Sender{Phone: "0536 592 30 35"}},
		{ID: "a3", CreatedAt: day(3), Sender: conversation.Sender{Email: "A@Example.com", Phone: "+905365923035"}},
		{ID: "b1", CreatedAt: day(5), Sender: conversation.Sender{Phone: "05551112233"}},
		{ID: "b2", CreatedAt: day(4), Sender: conversation.Sender{Phone: "+90 555 111 22 33"}},
		{ID: "s1", CreatedAt: day(6), Sender: conversation.Sender{Email: "solo@example.com"}},
		{ID: "u1", CreatedAt: day(7), Sender: conversation.Sender{Name: "Anonymous"}},
	}
	for i, c := range convs {
		c.Channel = "form"
		c.Status = conversation.StatusOpen
		c.MessageCount = 2
		require.NoError(t, s.Set(ctx, store.CollectionConversations, c.ID, c))
		for j := 0; j < 2; j++ {
			id := fmt.Sprintf("m-%s-%d", c.ID, j)
			require.NoError(t, s.Set(ctx, store.CollectionMessages, id, conversation.Message{
				ID:             id,
				ConversationID: c.ID,
				Direction:      conversation.DirectionInbound,
				Body:           "hello",
				CreatedAt:      c.CreatedAt.Add(time.Duration(i*10+j) * time.Minute),
			}))
		}
	}
}

func newService(s *memory.Store, locker Locker) *MigrationService {
	return NewMigrationService(s, activitysvc.NewActivityService(s, zap.NewNop()), locker, 0, nil, zap.NewNop())
}

func messagesOf(t *testing.T, s store.Client, conversationID string) []conversation.Message {
	t.Helper()
	snaps, err := s.Query(context.Background(), store.CollectionMessages, store.Query{
		Filters: []store.Filter{store.Where("conversationId", conversationID)},
	})
	require.NoError(t, err)
	out := make([]conversation.Message, 0, len(snaps))
	for _, snap := range snaps {
		var m conversation.Message
		require.NoError(t, snap.DataTo(&m))
		out = append(out, m)
	}
	return out
}

func TestGroupConversations_TieBreaksOnID(t *testing.T) {
	same := day(1)
	groups, unkeyed := groupConversations([]*conversation.Conversation{
		{ID: "z", CreatedAt: same, Sender: conversation.Sender{Email: "x@example.com"}},
		{ID: "m", CreatedAt: same, Sender: conversation.Sender{Email: "X@example.com"}},
		{ID: "n", CreatedAt: same},
	}, nil)
	require.Len(t, groups, 1)
	assert.Equal(t, 1, unkeyed)
	assert.Equal(t, "m", groups[0].primary.ID)
	assert.Equal(t, "email:x@example.com", groups[0].key)
}

func TestGroupConversations_JoinsThroughCustomerAlternateContact(t *testing.T) {
	cust := &customer.Customer{
		ID:    "cu1",
		Email: "a@x.com",
		AlternativeContacts: []customer.AlternativeContact{
			{Type: customer.ContactPhone, Value: "905365923035"},
		},
	}
	convs := []*conversation.Conversation{
		{ID: "c1", CreatedAt: day(1), Sender: conversation.Sender{Email: "a@x.com"}},
		{ID: "c2", CreatedAt: day(2), Sender: conversation.Sender{Phone: "0536 592 30 35"}},
	}

	groups, _ := groupConversations(convs, nil)
	assert.Empty(t, groups)

	groups, _ = groupConversations(convs, []*customer.Customer{cust})
	require.Len(t, groups, 1)
	assert.Equal(t, "c1", groups[0].primary.ID)
	assert.Equal(t, []string{"c2"}, ids(groups[0].duplicates))
	assert.Equal(t, "email:a@x.com", groups[0].key)
}

func TestRun_DryRunGroupsByResolvedCustomer(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, store.CollectionCustomers, "cu1", customer.Customer{
		ID:    "cu1",
		Name:  "Ayse",
		Email: "a@x.com",
		AlternativeContacts: []customer.AlternativeContact{
			{Type: customer.ContactPhone, Value: "905365923035"},
		},
	}))
	require.NoError(t, s.Set(ctx, store.CollectionConversations, "c1", conversation.Conversation{
		ID: "c1", CreatedAt: day(1), Sender: conversation.Sender{Email: "a@x.com"},
	}))
	require.NoError(t, s.Set(ctx, store.CollectionConversations, "c2", conversation.Conversation{
		ID: "c2", CreatedAt: day(2), Sender: conversation.Sender{Phone: "0536 592 30 35"},
	}))

	report, err := newService(s, nil).Run(ctx, Options{DryRun: true})
	require.NoError(t, err)
	require.Len(t, report.Groups, 1)
	assert.Equal(t, "c1", report.Groups[0].PrimaryID)
	assert.Equal(t, []string{"c2"}, report.Groups[0].DuplicateIDs)
	assert.Equal(t, 2, s.Count(store.CollectionConversations))
}

func TestRun_GroupsThreeAndTwo(t *testing.T) {
	s := memory.New()
	seedConversations(t, s)

	report, err := newService(s, nil).Run(context.Background(), Options{})
	require.NoError(t, err)

	require.Len(t, report.Groups, 2)
	a, b := report.Groups[0], report.Groups[1]

	assert.Equal(t, "email:a@example.com", a.Key)
	assert.Equal(t, "a1", a.PrimaryID)
	assert.Equal(t, []string{"a2", "a3"}, a.DuplicateIDs)
	assert.Equal(t, 3, a.Size)

	assert.Equal(t, "phone:905551112233", b.Key)
	assert.Equal(t, "b2", b.PrimaryID)
	assert.Equal(t, []string{"b1"}, b.DuplicateIDs)

	assert.Equal(t, 7, report.TotalConversations)
	assert.Equal(t, 1, report.Unkeyed)
	assert.Equal(t, 3, report.ConversationsDeleted)
	assert.Equal(t, 4, s.Count(store.CollectionConversations))
}

func TestRun_ConservesMessages(t *testing.T) {
	s := memory.New()
	seedConversations(t, s)
	before := messagesOf(t, s, "a3")

	_, err := newService(s, nil).Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 14, s.Count(store.CollectionMessages))
	assert.Len(t, messagesOf(t, s, "a1"), 6)
	assert.Len(t, messagesOf(t, s, "b2"), 4)
	assert.Empty(t, messagesOf(t, s, "a3"))

	moved := map[string]time.Time{}
	for _, m := range messagesOf(t, s, "a1") {
		moved[m.ID] = m.CreatedAt
	}
	for _, m := range before {
		assert.Equal(t, m.CreatedAt, moved[m.ID], "message %s keeps its timestamp", m.ID)
	}

	snap, err := s.Get(context.Background(), store.CollectionConversations, "a1")
	require.NoError(t, err)
	var primary conversation.Conversation
	require.NoError(t, snap.DataTo(&primary))
	assert.Equal(t, []string{"a2", "a3"}, primary.MergedFrom)
	assert.Equal(t, 6, primary.MessageCount)
	require.NotNil(t, primary.LastMessageAt)
	assert.Equal(t, before[1].CreatedAt, *primary.LastMessageAt)
}

func TestRun_DryRunMatchesLiveAndWritesNothing(t *testing.T) {
	dry := memory.New()
	seedConversations(t, dry)
	live := memory.New()
	seedConversations(t, live)

	dryReport, err := newService(dry, nil).Run(context.Background(), Options{DryRun: true})
	require.NoError(t, err)
	liveReport, err := newService(live, nil).Run(context.Background(), Options{})
	require.NoError(t, err)

	require.Len(t, dryReport.Groups, len(liveReport.Groups))
	for i := range dryReport.Groups {
		d, l := dryReport.Groups[i], liveReport.Groups[i]
		assert.Equal(t, l.Key, d.Key)
		assert.Equal(t, l.PrimaryID, d.PrimaryID)
		assert.Equal(t, l.DuplicateIDs, d.DuplicateIDs)
		assert.Equal(t, l.MessagesMoved, d.MessagesMoved)
		assert.Empty(t, d.Deleted)
	}
	assert.Equal(t, liveReport.MessagesMoved, dryReport.MessagesMoved)

	assert.Equal(t, 7, dry.Count(store.CollectionConversations))
	assert.Equal(t, 0, dry.Count(store.CollectionActivities))
	assert.Len(t, messagesOf(t, dry, "a3"), 2)
}

func TestRun_GroupFailureIsIsolated(t *testing.T) {
	s := memory.New()
	seedConversations(t, s)
	s.SetCommitHook(func(mutations []store.Mutation) error {
		for _, m := range mutations {
			if m.Collection == store.CollectionMessages && m.Fields["conversationId"] == "b2" {
				return errors.New("injected")
			}
		}
		return nil
	})

	report, err := newService(s, nil).Run(context.Background(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "phone:905551112233")
	assert.Contains(t, err.Error(), "b2")

	assert.Equal(t, 1, report.GroupsMerged)
	assert.Equal(t, 1, report.GroupsFailed)
	assert.NotEmpty(t, report.Groups[1].Error)
	assert.Empty(t, report.Groups[1].Deleted)

	_, err = s.Get(context.Background(), store.CollectionConversations, "b1")
	assert.NoError(t, err)
	assert.Len(t, messagesOf(t, s, "b1"), 2)

	_, err = s.Get(context.Background(), store.CollectionConversations, "a2")
	assert.True(t, errors.Is(err, xerrors.ErrNotFound))
}

func TestRun_LiveRunTakesLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := NewRedisLocker(client)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, LockKey, time.Minute)
	require.NoError(t, err)

	s := memory.New()
	seedConversations(t, s)
	svc := newService(s, locker)

	_, err = svc.Run(ctx, Options{})
	assert.True(t, errors.Is(err, xerrors.ErrLocked))

	_, err = svc.Run(ctx, Options{DryRun: true})
	assert.NoError(t, err)

	require.NoError(t, release(ctx))
	_, err = svc.Run(ctx, Options{})
	require.NoError(t, err)
	assert.False(t, mr.Exists(LockKey))
}
