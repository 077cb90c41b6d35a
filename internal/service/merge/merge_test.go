package merge

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"crm-service/internal/domain/activity"
	"crm-service/internal/domain/cases"
	"crm-service/internal/domain/company"
	"crm-service/internal/domain/conversation"
	"crm-service/internal/domain/customer"
	"crm-service/internal/domain/outcome"
	xerrors "crm-service/internal/pkg/errors"
	activitysvc "crm-service/internal/service/activity"
	"crm-service/internal/store"
	"crm-service/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSyncer struct{ calls []string }

func (f *fakeSyncer) OnCustomerUpdated(ctx context.Context, id string) outcome.Secondary {
	f.calls = append(f.calls, id)
	return outcome.Succeeded(outcome.OpCompanySync, id, "co-1", 1)
}

func at(day int) *time.Time {
	t := time.Date(2024, 1, day, 12, 0, 0, 0, time.UTC)
	return &t
}

// seedPair stores a primary with 3 conversations, 2 cases and 1000 lifetime
// value and a secondary with 2 conversations, 1 case and 500.
func seedPair(t *testing.T, s *memory.Store) {
	t.Helper()
	ctx := context.Background()

	primary := customer.Customer{
		ID: "p", Name: "Ayse Yilmaz", Email: "ayse@example.com", Phone: "905365923035",
		Tags:  []string{"vip"},
		Notes: "prefers whatsapp",
		Stats: customer.Stats{
			ConversationCount: 3, CaseCount: 2, WonCases: 2, LifetimeValue: 1000,
			FirstContactAt: at(10), LastContactAt: at(20),
		},
		Company:   customer.CompanyInfo{Name: "Yilmaz Tekstil"},
		CreatedAt: *at(10),
	}
	secondary := customer.Customer{
		ID: "s", Name: "A. Yilmaz", Email: "a.yilmaz@work.example.com", Phone: "905551112233",
		Tags:  []string{"fair-2024", "vip"},
		Notes: "met at fair",
		AlternativeContacts: []customer.AlternativeContact{
			{Type: customer.ContactEmail, Value: "ayilmaz@home.example.com", Channel: customer.ChannelForm},
		},
		Stats: customer.Stats{
			ConversationCount: 2, CaseCount: 1, WonCases: 1, LifetimeValue: 500,
			FirstContactAt: at(5), LastContactAt: at(15),
		},
		Company:         customer.CompanyInfo{Name: "Other", City: "Bursa"},
		TaxInfo:         customer.TaxInfo{TaxNumber: "1234567890"},
		LinkedCompanyID: "co-1",
		CreatedAt:       *at(5),
	}
	require.NoError(t, s.Set(ctx, store.CollectionCustomers, primary.ID, primary))
	require.NoError(t, s.Set(ctx, store.CollectionCustomers, secondary.ID, secondary))

	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("pv%d", i)
		require.NoError(t, s.Set(ctx, store.CollectionConversations, id, conversation.Conversation{ID: id, CustomerID: "p"}))
	}
	for i := 0; i < 2; i++ {
		id := fmt.Sprintf("sv%d", i)
		require.NoError(t, s.Set(ctx, store.CollectionConversations, id, conversation.Conversation{
			ID: id, CustomerID: "s", Sender: conversation.Sender{Name: "A. Yilmaz"},
		}))
	}
	for _, k := range []cases.Case{
		{ID: "pk0", CustomerID: "p", Status: cases.StatusWon, Value: 600},
		{ID: "pk1", CustomerID: "p", Status: cases.StatusWon, Value: 400},
		{ID: "sk0", CustomerID: "s", Status: cases.StatusWon, Value: 500},
	} {
		require.NoError(t, s.Set(ctx, store.CollectionCases, k.ID, k))
	}
}

func setupMerge(t *testing.T) (*MergeService, *memory.Store, *fakeSyncer) {
	t.Helper()
	s := memory.New()
	seedPair(t, s)
	sync := &fakeSyncer{}
	svc := NewMergeService(s, activitysvc.NewActivityService(s, zap.NewNop()), sync, nil, zap.NewNop())
	return svc, s, sync
}

func countWhere(t *testing.T, s store.Client, collection, customerID string) int {
	t.Helper()
	snaps, err := s.Query(context.Background(), collection, store.Query{
		Filters: []store.Filter{store.Where("customerId", customerID)},
	})
	require.NoError(t, err)
	return len(snaps)
}

func TestMerge_ConservesEverything(t *testing.T) {
	svc, s, sync := setupMerge(t)
	ctx := context.Background()

	res, err := svc.Merge(ctx, "p", "s")
	require.NoError(t, err)
	assert.Equal(t, 2, res.ConversationsMoved)
	assert.Equal(t, 1, res.CasesMoved)

	snap, err := s.Get(ctx, store.CollectionCustomers, "p")
	require.NoError(t, err)
	var merged customer.Customer
	require.NoError(t, snap.DataTo(&merged))

	assert.Equal(t, 5, merged.Stats.ConversationCount)
	assert.Equal(t, 3, merged.Stats.CaseCount)
	assert.Equal(t, 3, merged.Stats.WonCases)
	assert.Equal(t, 1500.0, merged.Stats.LifetimeValue)
	assert.Equal(t, *at(5), *merged.Stats.FirstContactAt)
	assert.Equal(t, *at(20), *merged.Stats.LastContactAt)

	assert.Equal(t, 5, countWhere(t, s, store.CollectionConversations, "p"))
	assert.Equal(t, 3, countWhere(t, s, store.CollectionCases, "p"))
	assert.Equal(t, 0, countWhere(t, s, store.CollectionConversations, "s"))

	_, err = s.Get(ctx, store.CollectionCustomers, "s")
	assert.True(t, errors.Is(err, xerrors.ErrNotFound))

	assert.Equal(t, []string{"vip", "fair-2024"}, merged.Tags)
	assert.True(t, merged.HasContact(customer.ContactEmail, "a.yilmaz@work.example.com"))
	assert.True(t, merged.HasContact(customer.ContactPhone, "0555 111 22 33"))
	assert.True(t, merged.HasContact(customer.ContactEmail, "ayilmaz@home.example.com"))
	for _, alt := range merged.AlternativeContacts[:2] {
		assert.Equal(t, customer.ChannelMerged, alt.Channel)
	}

	assert.Contains(t, merged.Notes, "prefers whatsapp")
	assert.Contains(t, merged.Notes, "merged from A. Yilmaz (s)")
	assert.Contains(t, merged.Notes, "met at fair")

	assert.Equal(t, "Yilmaz Tekstil", merged.Company.Name)
	assert.Equal(t, "Bursa", merged.Company.City)
	assert.Equal(t, "1234567890", merged.TaxInfo.TaxNumber)
	assert.Equal(t, "co-1", merged.LinkedCompanyID)
	assert.Equal(t, []string{"s"}, merged.MergedIDs)

	convSnap, err := s.Get(ctx, store.CollectionConversations, "sv0")
	require.NoError(t, err)
	var conv conversation.Conversation
	require.NoError(t, convSnap.DataTo(&conv))
	assert.Equal(t, "Ayse Yilmaz", conv.Sender.Name)

	acts, err := s.Query(ctx, store.CollectionActivities, store.Query{
		Filters: []store.Filter{store.Where("type", string(activity.TypeCustomerMerged))},
	})
	require.NoError(t, err)
	assert.Len(t, acts, 1)

	assert.Equal(t, []string{"p"}, sync.calls)
	assert.Equal(t, outcome.StatusSucceeded, res.Sync.Status)
}

func TestMerge_FailedCommitWritesNothing(t *testing.T) {
	svc, s, sync := setupMerge(t)
	ctx := context.Background()

	s.SetCommitHook(func([]store.Mutation) error { return errors.New("store unavailable") })

	_, err := svc.Merge(ctx, "p", "s")
	require.Error(t, err)

	_, err = s.Get(ctx, store.CollectionCustomers, "s")
	assert.NoError(t, err)
	assert.Equal(t, 3, countWhere(t, s, store.CollectionConversations, "p"))
	assert.Equal(t, 2, countWhere(t, s, store.CollectionConversations, "s"))
	assert.Equal(t, 1, countWhere(t, s, store.CollectionCases, "s"))
	assert.Equal(t, 0, s.Count(store.CollectionActivities))

	snap, err := s.Get(ctx, store.CollectionCustomers, "p")
	require.NoError(t, err)
	var p customer.Customer
	require.NoError(t, snap.DataTo(&p))
	assert.Equal(t, 3, p.Stats.ConversationCount)
	assert.Empty(t, sync.calls)
}

func TestMerge_OversizedBatchWritesNothing(t *testing.T) {
	s := memory.New(memory.WithMaxBatchOps(4))
	seedPair(t, s)
	svc := NewMergeService(s, activitysvc.NewActivityService(s, zap.NewNop()), nil, nil, zap.NewNop())

	_, err := svc.Merge(context.Background(), "p", "s")
	assert.True(t, errors.Is(err, xerrors.ErrBatchTooLarge))
	assert.Equal(t, 2, countWhere(t, s, store.CollectionConversations, "s"))
}

func TestMerge_FailsFastOnUnknownIDs(t *testing.T) {
	svc, s, _ := setupMerge(t)
	ctx := context.Background()

	_, err := svc.Merge(ctx, "p", "missing")
	assert.True(t, errors.Is(err, xerrors.ErrNotFound))
	_, err = svc.Merge(ctx, "missing", "s")
	assert.True(t, errors.Is(err, xerrors.ErrNotFound))
	_, err = svc.Merge(ctx, "p", "p")
	assert.True(t, errors.Is(err, xerrors.ErrInvalidInput))

	assert.Equal(t, 0, s.Count(store.CollectionActivities))
	assert.Equal(t, 2, s.Count(store.CollectionCustomers))
}

func companyLink(t *testing.T, s store.Client, id string) string {
	t.Helper()
	snap, err := s.Get(context.Background(), store.CollectionCompanies, id)
	require.NoError(t, err)
	var co company.Company
	require.NoError(t, snap.DataTo(&co))
	return co.LinkedCustomerID
}

func TestMerge_ReleasesSecondaryCompanyWhenPrimaryHasOne(t *testing.T) {
	svc, s, _ := setupMerge(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, store.CollectionCompanies, "co-p", company.Company{ID: "co-p", Name: "Yilmaz Tekstil", LinkedCustomerID: "p"}))
	require.NoError(t, s.Set(ctx, store.CollectionCompanies, "co-1", company.Company{ID: "co-1", Name: "Other", LinkedCustomerID: "s"}))
	require.NoError(t, s.Update(ctx, store.CollectionCustomers, "p", map[string]interface{}{"linkedCompanyId": "co-p"}))

	res, err := svc.Merge(ctx, "p", "s")
	require.NoError(t, err)

	assert.Equal(t, "co-1", res.UnlinkedCompanyID)
	assert.Equal(t, "co-p", res.Customer.LinkedCompanyID)
	assert.Equal(t, "p", companyLink(t, s, "co-p"))
	assert.Empty(t, companyLink(t, s, "co-1"))
}

func TestMerge_AdoptedCompanyFollowsMergedCustomer(t *testing.T) {
	svc, s, _ := setupMerge(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, store.CollectionCompanies, "co-1", company.Company{ID: "co-1", Name: "Other", LinkedCustomerID: "s"}))

	res, err := svc.Merge(ctx, "p", "s")
	require.NoError(t, err)

	assert.Empty(t, res.UnlinkedCompanyID)
	assert.Equal(t, "co-1", res.Customer.LinkedCompanyID)
	assert.Equal(t, "p", companyLink(t, s, "co-1"))
}
