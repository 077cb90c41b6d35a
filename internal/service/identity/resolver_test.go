package identity

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"crm-service/internal/domain/customer"
	xerrors "crm-service/internal/pkg/errors"
	"crm-service/internal/store"
	"crm-service/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func seed(t *testing.T, s store.Client, customers ...customer.Customer) {
	t.Helper()
	for _, c := range customers {
		require.NoError(t, s.Set(context.Background(), store.CollectionCustomers, c.ID, c))
	}
}

func TestResolver_Resolve(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seed(t, s,
		customer.Customer{ID: "c1", Name: "Ayse", Email: "ayse@example.com", Phone: "905321112233"},
		customer.Customer{
			ID: "c2", Name: "Mehmet", Email: "mehmet@example.com", Phone: "905551234567",
			AlternativeContacts: []customer.AlternativeContact{
				{Type: customer.ContactPhone, Value: "5365923035", Channel: customer.ChannelWhatsApp},
				{Type: customer.ContactEmail, Value: "Mehmet.Work@Example.com", Channel: customer.ChannelForm},
			},
		},
	)
	r := NewResolver(s, 0, zap.NewNop())

	tests := []struct {
		name   string
		email  string
		phone  string
		wantID string
		match  Match
	}{
		{"email case-insensitive", "AYSE@example.com ", "", "c1", MatchEmail},
		{"primary phone any format", "", "0532 111 22 33", "c1", MatchPhone},
		{"email wins over phone", "ayse@example.com", "05551234567", "c1", MatchEmail},
		{"alternate phone", "", "+90 536 592 30 35", "c2", MatchAlternate},
		{"alternate email", "mehmet.work@example.com", "", "c2", MatchAlternate},
		{"unknown email falls through to phone", "new@example.com", "(0555) 123-45-67", "c2", MatchPhone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.ResolveDetailed(ctx, tt.email, tt.phone)
			require.NoError(t, err)
			require.NotNil(t, res.Customer)
			assert.Equal(t, tt.wantID, res.Customer.ID)
			assert.Equal(t, tt.match, res.Match)
		})
	}
}

func TestResolver_NoMatch(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seed(t, s, customer.Customer{ID: "c1", Email: "a@example.com", Phone: "905321112233"})
	r := NewResolver(s, 0, zap.NewNop())

	_, err := r.Resolve(ctx, "nobody@example.com", "05000000000")
	assert.True(t, errors.Is(err, xerrors.ErrNotFound))

	_, err = r.Resolve(ctx, "", "")
	assert.True(t, errors.Is(err, xerrors.ErrNotFound))
}

func TestResolver_ScanTruncationIsReported(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	for i := 0; i < 5; i++ {
		seed(t, s, customer.Customer{ID: fmt.Sprintf("c%d", i), Phone: fmt.Sprintf("90500000000%d", i)})
	}
	seed(t, s, customer.Customer{
		ID: "c9",
		AlternativeContacts: []customer.AlternativeContact{
			{Type: customer.ContactEmail, Value: "late@example.com"},
		},
	})

	r := NewResolver(s, 3, zap.NewNop())
	res, err := r.ResolveDetailed(ctx, "late@example.com", "")
	require.NoError(t, err)
	assert.Nil(t, res.Customer)
	assert.True(t, res.Truncated)
	assert.Equal(t, 3, res.Scanned)

	r = NewResolver(s, 10, zap.NewNop())
	res, err = r.ResolveDetailed(ctx, "late@example.com", "")
	require.NoError(t, err)
	require.NotNil(t, res.Customer)
	assert.Equal(t, "c9", res.Customer.ID)
	assert.False(t, res.Truncated)
}
